package ring

import (
	"sync/atomic"
	"unsafe"
)

// SQRing is the submission ring accessor. The user side is the sole
// producer (Reserve/Publish); the executor side is the sole consumer
// (PeekTail/EntryAt/ReleaseHead). head/tail/capacity/capacity_mask live
// inside the shared region itself so both sides can poll them without a
// syscall.
type SQRing struct {
	head    *atomic.Uint32
	tail    *atomic.Uint32
	entries unsafe.Pointer
	cap     uint32
	mask    uint32
}

func mapUint32(base unsafe.Pointer, off uint32) *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(uintptr(base) + uintptr(off)))
}

// NewSQRing derives ring accessors from a region base address and the
// offsets ComputeLayout produced. initialize is true only on the side
// performing setup; every other side (including the executor in this
// single-process model) attaches to header fields already written.
func NewSQRing(base unsafe.Pointer, off RingOffsets, capacity uint32, initialize bool) *SQRing {
	r := &SQRing{
		head:    mapUint32(base, off.Head),
		tail:    mapUint32(base, off.Tail),
		entries: unsafe.Pointer(uintptr(base) + uintptr(off.Entries)),
	}
	capPtr := mapUint32(base, off.Capacity)
	maskPtr := mapUint32(base, off.CapacityMask)
	if initialize {
		capPtr.Store(capacity)
		maskPtr.Store(capacity - 1)
		r.head.Store(0)
		r.tail.Store(0)
	}
	r.cap = capPtr.Load()
	r.mask = maskPtr.Load()
	return r
}

func (r *SQRing) entryAt(idx uint32) *SQEntry {
	slot := idx & r.mask
	return (*SQEntry)(unsafe.Pointer(uintptr(r.entries) + uintptr(slot)*unsafe.Sizeof(SQEntry{})))
}

// Capacity returns the ring's fixed, power-of-two entry count.
func (r *SQRing) Capacity() uint32 { return r.cap }

// Reserve returns the slot the producer should fill next and the index
// to pass to Publish, or ok=false if the ring is full
// (tail-head == capacity).
func (r *SQRing) Reserve() (slot *SQEntry, idx uint32, ok bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= r.cap {
		return nil, 0, false
	}
	return r.entryAt(tail), tail, true
}

// Publish makes the entry written at idx visible to the consumer.
// Callers must have fully written the entry's fields first; Publish
// fences those plain writes before storing the new tail with release
// semantics, so the consumer never observes a half-written entry.
func (r *SQRing) Publish(idx uint32) {
	fence()
	r.tail.Store(idx + 1)
}

// PeekTail acquire-loads the published tail for the consumer side.
func (r *SQRing) PeekTail() uint32 { return r.tail.Load() }

// Head returns the consumer's last published head.
func (r *SQRing) Head() uint32 { return r.head.Load() }

// EntryAt returns the entry at the given absolute index for the consumer
// to read. Must only be called for idx in [Head(), PeekTail()).
func (r *SQRing) EntryAt(idx uint32) *SQEntry { return r.entryAt(idx) }

// ReleaseHead publishes a (possibly coalesced) head advance: the
// caller may drain several entries before calling this once, rather
// than after every single entry.
func (r *SQRing) ReleaseHead(newHead uint32) { r.head.Store(newHead) }
