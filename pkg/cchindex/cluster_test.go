package cchindex

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestClusterFraming(t *testing.T) {
	const clusterSize = 4096

	Convey("Given a lowest cluster", t, func() {
		buf := make([]byte, clusterSize)
		refs := []valueRef{
			{Key: 0x0102030401020304, Ref: 0x04030201},
			{Key: 0x1, Ref: 0x1},
			{Key: 0xdeadbeefdeadbeef, Ref: 0xdeadbeef},
		}

		So(encodeLowestCluster(buf, refs), ShouldBeNil)

		Convey("It decodes back to the same pairs", func() {
			magic, slots, values, err := decodeCluster(buf)
			So(err, ShouldBeNil)
			So(magic, ShouldEqual, lowestClusterMagic)
			So(slots, ShouldBeNil)
			So(values, ShouldResemble, refs)
		})

		Convey("A flipped payload byte fails the checksum", func() {
			buf[20] ^= 0xff

			_, _, _, err := decodeCluster(buf)
			So(err, ShouldEqual, ErrIO)
		})

		Convey("A flipped padding byte fails the checksum too", func() {
			buf[clusterSize-8] ^= 0xff

			_, _, _, err := decodeCluster(buf)
			So(err, ShouldEqual, ErrIO)
		})
	})

	Convey("Given root and mid clusters", t, func() {
		buf := make([]byte, clusterSize)
		refs := []slotRef{
			{Slot: 0, Off: 4096},
			{Slot: 17, Off: 8192},
			{Slot: 255, Off: 12288},
		}

		for _, magic := range []uint64{rootClusterMagic, midClusterMagic} {
			So(encodeChildCluster(buf, magic, refs), ShouldBeNil)

			gotMagic, slots, values, err := decodeCluster(buf)
			So(err, ShouldBeNil)
			So(gotMagic, ShouldEqual, magic)
			So(values, ShouldBeNil)
			So(slots, ShouldResemble, refs)
		}
	})

	Convey("Given an empty cluster", t, func() {
		buf := make([]byte, clusterSize)
		So(encodeChildCluster(buf, rootClusterMagic, nil), ShouldBeNil)

		magic, slots, values, err := decodeCluster(buf)
		So(err, ShouldBeNil)
		So(magic, ShouldEqual, rootClusterMagic)
		So(slots, ShouldBeEmpty)
		So(values, ShouldBeNil)
	})

	Convey("Given garbage", t, func() {
		Convey("A truncated buffer is rejected", func() {
			_, _, _, err := decodeCluster(make([]byte, 8))
			So(err, ShouldEqual, ErrIO)
		})

		Convey("An unknown magic is rejected even with a valid checksum", func() {
			buf := make([]byte, clusterSize)
			So(encodeLowestCluster(buf, nil), ShouldBeNil)
			buf[0] ^= 0xff
			sealCluster(buf)

			_, _, _, err := decodeCluster(buf)
			So(err, ShouldEqual, ErrIO)
		})
	})

	Convey("Given a cluster too small for its payload", t, func() {
		tiny := make([]byte, clusterHeaderSize+clusterChecksumSize+valueRefSize)
		refs := []valueRef{{Key: 1, Ref: 1}, {Key: 2, Ref: 2}}

		So(encodeLowestCluster(tiny, refs), ShouldEqual, ErrNoMemory)
	})
}
