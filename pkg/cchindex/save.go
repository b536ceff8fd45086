package cchindex

import (
	"fmt"

	"github.com/koolkhel/cch-index/internal/debug"
)

// Save writes a full image of the index through the storage hooks, one
// cluster per entry, children before parents. It returns the device offset
// of the root cluster, which a later Load takes as its starting point.
//
// The value codec translates each stored value into the opaque 64-bit
// reference kept in lowest clusters; the index does not interpret it.
func (ix *Index[V]) Save() (uint64, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.cfg.Storage == nil || ix.cfg.EncodeValue == nil {
		return 0, ErrInvalidConfig
	}

	if ix.cfg.Tx != nil {
		if err := ix.cfg.Tx.StartTransaction(); err != nil {
			return 0, err
		}
	}
	if err := ix.cfg.Storage.StartFullSave(); err != nil {
		return 0, err
	}

	s := &saver[V]{ix: ix, buf: make([]byte, ix.cfg.ClusterSize)}
	rootOff, err := s.saveEntry(&ix.root, 0, 0)
	if err != nil {
		return 0, err
	}

	if err := ix.cfg.Storage.FinishFullSave(); err != nil {
		return 0, err
	}
	if ix.cfg.Tx != nil {
		if err := ix.cfg.Tx.FinishTransaction(); err != nil {
			return 0, err
		}
	}

	return rootOff, nil
}

// saver carries the bump cluster allocation of one full-image save.
type saver[V any] struct {
	ix   *Index[V]
	buf  []byte
	next uint64
}

// take allocates the next device offset.
func (s *saver[V]) take() uint64 {
	off := s.next
	s.next += uint64(len(s.buf))
	return off
}

// saveEntry writes the subtree rooted at e and returns its cluster offset.
// prefix carries the key bits accumulated on the way down.
func (s *saver[V]) saveEntry(e *Entry[V], level int, prefix uint64) (uint64, error) {
	ix := s.ix

	if e.IsLowest() {
		refs := make([]valueRef, 0, e.refCnt)
		for i, slot := range e.slots {
			if slot == nil {
				continue
			}
			refs = append(refs, valueRef{
				Key: prefix | uint64(i),
				Ref: ix.cfg.EncodeValue(slot.(V)),
			})
		}
		debug.Assert(len(refs) == e.refCnt, "lowest entry %p refcount %d, found %d values", e, e.refCnt, len(refs))

		if err := encodeLowestCluster(s.buf, refs); err != nil {
			return 0, err
		}
		return s.writeCluster(e)
	}

	magic := midClusterMagic
	if e.isRoot() {
		magic = rootClusterMagic
	}

	refs := make([]slotRef, 0, e.refCnt)
	for i := range e.slots {
		child := e.child(i)
		if child == nil {
			continue
		}

		childOff, err := s.saveEntry(child, level+1, prefix|uint64(i)<<ix.levels[level].offset)
		if err != nil {
			return 0, err
		}
		refs = append(refs, slotRef{Slot: uint32(i), Off: childOff})
	}
	debug.Assert(len(refs) == e.refCnt, "entry %p refcount %d, found %d children", e, e.refCnt, len(refs))

	if err := encodeChildCluster(s.buf, magic, refs); err != nil {
		return 0, err
	}
	return s.writeCluster(e)
}

// writeCluster pushes the staged cluster out and marks the entry saved.
func (s *saver[V]) writeCluster(e *Entry[V]) (uint64, error) {
	off := s.take()
	if err := s.ix.cfg.Storage.WriteClusterData(off, s.buf); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrIO, err)
	}

	e.setSaved()
	return off, nil
}

// Load rebuilds the index from a full image previously produced by Save,
// starting at the given root cluster offset. Loaded values are inserted
// under their saved keys; the index should be empty beforehand.
func (ix *Index[V]) Load(start uint64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.cfg.Storage == nil || ix.cfg.DecodeValue == nil {
		return ErrInvalidConfig
	}

	if ix.cfg.Tx != nil {
		if err := ix.cfg.Tx.StartTransaction(); err != nil {
			return err
		}
	}

	magic, slots, _, err := ix.readCluster(start)
	if err != nil {
		return err
	}
	if magic != rootClusterMagic {
		debug.Assert(false, "root cluster at %#x has magic %#x", start, magic)
		return ErrIO
	}

	for _, r := range slots {
		if err := ix.loadSubtree(r.Off); err != nil {
			return err
		}
	}

	if ix.cfg.Tx != nil {
		if err := ix.cfg.Tx.FinishTransaction(); err != nil {
			return err
		}
	}

	return nil
}

// loadSubtree reads the cluster at off and descends into it.
func (ix *Index[V]) loadSubtree(off uint64) error {
	magic, slots, values, err := ix.readCluster(off)
	if err != nil {
		return err
	}

	switch magic {
	case midClusterMagic:
		for _, r := range slots {
			if err := ix.loadSubtree(r.Off); err != nil {
				return err
			}
		}

	case lowestClusterMagic:
		for _, r := range values {
			if _, _, err := ix.insertKey(r.Key, ix.cfg.DecodeValue(r.Ref), false); err != nil {
				return err
			}
		}

	default:
		debug.Assert(false, "cluster at %#x has magic %#x", off, magic)
		return ErrIO
	}

	return nil
}

// readCluster fetches and validates one cluster.
func (ix *Index[V]) readCluster(off uint64) (uint64, []slotRef, []valueRef, error) {
	buf := make([]byte, ix.cfg.ClusterSize)

	n, err := ix.cfg.Storage.ReadClusterData(off, buf)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	if n != len(buf) {
		return 0, nil, nil, ErrIO
	}

	return decodeCluster(buf)
}
