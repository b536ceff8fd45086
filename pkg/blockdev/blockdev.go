//go:build unix

// Package blockdev backs index cluster I/O with a plain file or block
// device.
//
// The device implements the index's storage hooks with positional reads and
// writes, so concurrent offsets never race on a shared file cursor. An
// exclusive flock guards the file against a second process opening the same
// store.
package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// ErrDeviceLocked is returned when the backing file is held by another
// process.
var ErrDeviceLocked = errors.New("blockdev: device is locked by another process")

// Device is a file-backed cluster store.
type Device struct {
	f           *os.File
	clusterSize int
}

// Open opens or creates the backing file and takes an exclusive lock on it.
func Open(path string, clusterSize int) (*Device, error) {
	if clusterSize <= 0 {
		return nil, fmt.Errorf("blockdev: bad cluster size %d", clusterSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrDeviceLocked
		}
		return nil, err
	}

	return &Device{f: f, clusterSize: clusterSize}, nil
}

// StartFullSave implements the storage hooks.
func (d *Device) StartFullSave() error { return nil }

// FinishFullSave flushes the file to stable storage.
func (d *Device) FinishFullSave() error {
	return d.f.Sync()
}

// WriteClusterData writes one whole cluster at the given device offset.
func (d *Device) WriteClusterData(devOffset uint64, buf []byte) error {
	if len(buf) != d.clusterSize {
		return fmt.Errorf("blockdev: write of %d bytes, cluster size is %d", len(buf), d.clusterSize)
	}

	for written := 0; written < len(buf); {
		n, err := unix.Pwrite(int(d.f.Fd()), buf[written:], int64(devOffset)+int64(written))
		if err != nil {
			return err
		}
		written += n
	}

	return nil
}

// ReadClusterData reads one whole cluster from the given device offset.
func (d *Device) ReadClusterData(devOffset uint64, buf []byte) (int, error) {
	if len(buf) != d.clusterSize {
		return 0, fmt.Errorf("blockdev: read of %d bytes, cluster size is %d", len(buf), d.clusterSize)
	}

	read := 0
	for read < len(buf) {
		n, err := unix.Pread(int(d.f.Fd()), buf[read:], int64(devOffset)+int64(read))
		if err != nil {
			return read, err
		}
		if n == 0 {
			return read, io.ErrUnexpectedEOF
		}
		read += n
	}

	return read, nil
}

// Close releases the lock and closes the backing file.
func (d *Device) Close() error {
	if err := unix.Flock(int(d.f.Fd()), unix.LOCK_UN); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}
