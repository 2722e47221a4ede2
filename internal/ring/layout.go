package ring

import (
	"math/bits"
	"unsafe"
)

// RingOffsets is the byte-offset block for one ring, the Go mirror of
// the ring_offsets struct in async_call_info.
type RingOffsets struct {
	Head         uint32
	Tail         uint32
	Capacity     uint32
	CapacityMask uint32
	Entries      uint32
}

// header is the layout of the head/tail/capacity/capacity_mask quartet
// for both rings, placed at the front of the shared region so both
// sides can reach them without walking past the entries arrays.
type header struct {
	sqHead, sqTail, sqCapacity, sqCapacityMask uint32
	cqHead, cqTail, cqCapacity, cqCapacityMask uint32
}

// Layout is the Go analogue of async_call_info: the frozen byte offsets
// for every field of both rings, plus the region's total size.
type Layout struct {
	TotalSize  uintptr
	SQCapacity uint32
	CQCapacity uint32
	SQOffsets  RingOffsets
	CQOffsets  RingOffsets
}

// ComputeLayout lays out a header, then the SQ entries array, then the CQ
// entries array, each aligned to its element's alignment, and rounds
// both requested capacities up to the next power of two so the
// capacity mask stays a simple bitwise AND.
func ComputeLayout(sqRequested, cqRequested uint32) Layout {
	sqCap := roundUpPow2(sqRequested)
	cqCap := roundUpPow2(cqRequested)

	headerSize := unsafe.Sizeof(header{})
	sqEntrySize := unsafe.Sizeof(SQEntry{})
	cqEntrySize := unsafe.Sizeof(CQEntry{})
	entryAlign := uintptr(unsafe.Alignof(SQEntry{}))

	sqArrayOff := alignUp(headerSize, entryAlign)
	sqArraySize := uintptr(sqCap) * sqEntrySize
	cqArrayOff := alignUp(sqArrayOff+sqArraySize, uintptr(unsafe.Alignof(CQEntry{})))
	cqArraySize := uintptr(cqCap) * cqEntrySize
	total := alignUp(cqArrayOff+cqArraySize, pageSize)

	var h header
	return Layout{
		TotalSize:  total,
		SQCapacity: sqCap,
		CQCapacity: cqCap,
		SQOffsets: RingOffsets{
			Head:         uint32(unsafe.Offsetof(h.sqHead)),
			Tail:         uint32(unsafe.Offsetof(h.sqTail)),
			Capacity:     uint32(unsafe.Offsetof(h.sqCapacity)),
			CapacityMask: uint32(unsafe.Offsetof(h.sqCapacityMask)),
			Entries:      uint32(sqArrayOff),
		},
		CQOffsets: RingOffsets{
			Head:         uint32(unsafe.Offsetof(h.cqHead)),
			Tail:         uint32(unsafe.Offsetof(h.cqTail)),
			Capacity:     uint32(unsafe.Offsetof(h.cqCapacity)),
			CapacityMask: uint32(unsafe.Offsetof(h.cqCapacityMask)),
			Entries:      uint32(cqArrayOff),
		},
	}
}

const pageSize = 4096

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

func roundUpPow2(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len32(v-1)
}
