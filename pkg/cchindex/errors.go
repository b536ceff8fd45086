package cchindex

import "errors"

var (
	// ErrInvalidConfig is returned by New when the bit arithmetic of the
	// requested layout is inconsistent, or when a hook configuration is
	// incomplete for the requested operation.
	ErrInvalidConfig = errors.New("cchindex: invalid configuration")

	// ErrNoMemory is returned by Save when an entry's contents do not fit
	// in one cluster. Entry and handle allocation never return it.
	ErrNoMemory = errors.New("cchindex: out of memory")

	// ErrNotFound is returned when a walk reaches an empty slot, or the
	// requested slot holds no value.
	ErrNotFound = errors.New("cchindex: not found")

	// ErrExists is returned by an insert without replace that found the
	// target slot occupied.
	ErrExists = errors.New("cchindex: already exists")

	// ErrIO is returned when cluster I/O fails or a cluster fails its
	// framing checks.
	ErrIO = errors.New("cchindex: cluster i/o failure")
)
