package cchindex

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/koolkhel/cch-index/internal/debug"
)

// Cluster framing. A cluster is the unit the index exchanges with the
// backing store:
//
//	[ magic u64 | count u32 | payload | ... padding ... | crc32 u32 ]
//
// The magic identifies the cluster kind. Root and mid clusters carry
// (slot, child cluster offset) pairs; lowest clusters carry
// (key, value reference) pairs. The CRC32 trailer covers every byte before
// it, padding included.
const (
	rootClusterMagic   uint64 = 0x117700ffc0de0001
	midClusterMagic    uint64 = 0x117700ffc0de0002
	lowestClusterMagic uint64 = 0x117700ffc0de0003
)

const (
	clusterHeaderSize   = 8 + 4
	clusterChecksumSize = 4

	slotRefSize  = 4 + 8
	valueRefSize = 8 + 8
)

// slotRef addresses one child cluster from a root or mid cluster.
type slotRef struct {
	Slot uint32
	Off  uint64
}

// valueRef is one saved value of a lowest cluster: the full key it starts at
// and the opaque reference produced by the value codec.
type valueRef struct {
	Key uint64
	Ref uint64
}

// clusterChecksum computes the trailer checksum: CRC32 of everything before
// the last four bytes.
func clusterChecksum(buf []byte) uint32 {
	return crc32.ChecksumIEEE(buf[:len(buf)-clusterChecksumSize])
}

// sealCluster writes the trailer checksum.
func sealCluster(buf []byte) {
	binary.LittleEndian.PutUint32(buf[len(buf)-clusterChecksumSize:], clusterChecksum(buf))
}

// encodeChildCluster frames a root or mid cluster into buf, which must be a
// whole cluster. Unused space is zeroed.
func encodeChildCluster(buf []byte, magic uint64, refs []slotRef) error {
	debug.Assert(magic == rootClusterMagic || magic == midClusterMagic, "bad child cluster magic %#x", magic)

	need := clusterHeaderSize + len(refs)*slotRefSize + clusterChecksumSize
	if need > len(buf) {
		return ErrNoMemory
	}

	clear(buf)
	binary.LittleEndian.PutUint64(buf[0:], magic)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(refs)))

	p := clusterHeaderSize
	for _, r := range refs {
		binary.LittleEndian.PutUint32(buf[p:], r.Slot)
		binary.LittleEndian.PutUint64(buf[p+4:], r.Off)
		p += slotRefSize
	}

	sealCluster(buf)
	return nil
}

// encodeLowestCluster frames a lowest cluster into buf.
func encodeLowestCluster(buf []byte, refs []valueRef) error {
	need := clusterHeaderSize + len(refs)*valueRefSize + clusterChecksumSize
	if need > len(buf) {
		return ErrNoMemory
	}

	clear(buf)
	binary.LittleEndian.PutUint64(buf[0:], lowestClusterMagic)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(refs)))

	p := clusterHeaderSize
	for _, r := range refs {
		binary.LittleEndian.PutUint64(buf[p:], r.Key)
		binary.LittleEndian.PutUint64(buf[p+8:], r.Ref)
		p += valueRefSize
	}

	sealCluster(buf)
	return nil
}

// decodeCluster validates the framing of buf and returns the cluster's magic
// and decoded payload: slot references for root and mid clusters, value
// references for lowest ones.
func decodeCluster(buf []byte) (magic uint64, slots []slotRef, values []valueRef, err error) {
	if len(buf) < clusterHeaderSize+clusterChecksumSize {
		return 0, nil, nil, ErrIO
	}

	stored := binary.LittleEndian.Uint32(buf[len(buf)-clusterChecksumSize:])
	if stored != clusterChecksum(buf) {
		debug.Assert(false, "cluster checksum mismatch: stored %#x, computed %#x", stored, clusterChecksum(buf))
		return 0, nil, nil, ErrIO
	}

	magic = binary.LittleEndian.Uint64(buf[0:])
	count := int(binary.LittleEndian.Uint32(buf[8:]))
	body := buf[clusterHeaderSize : len(buf)-clusterChecksumSize]

	switch magic {
	case rootClusterMagic, midClusterMagic:
		if count*slotRefSize > len(body) {
			return 0, nil, nil, ErrIO
		}
		slots = make([]slotRef, count)
		for i := range slots {
			p := i * slotRefSize
			slots[i] = slotRef{
				Slot: binary.LittleEndian.Uint32(body[p:]),
				Off:  binary.LittleEndian.Uint64(body[p+4:]),
			}
		}

	case lowestClusterMagic:
		if count*valueRefSize > len(body) {
			return 0, nil, nil, ErrIO
		}
		values = make([]valueRef, count)
		for i := range values {
			p := i * valueRefSize
			values[i] = valueRef{
				Key: binary.LittleEndian.Uint64(body[p:]),
				Ref: binary.LittleEndian.Uint64(body[p+8:]),
			}
		}

	default:
		debug.Assert(false, "unknown cluster magic %#x", magic)
		return 0, nil, nil, ErrIO
	}

	return magic, slots, values, nil
}
