package ring

import (
	"sync/atomic"
	"unsafe"
)

// CQRing is the completion ring accessor, symmetric to SQRing with roles
// swapped: the executor is the sole producer (Reserve/Publish), the user
// is the sole consumer (PeekTail/EntryAt/ReleaseHead).
type CQRing struct {
	head    *atomic.Uint32
	tail    *atomic.Uint32
	entries unsafe.Pointer
	cap     uint32
	mask    uint32
}

// NewCQRing mirrors NewSQRing for the completion ring.
func NewCQRing(base unsafe.Pointer, off RingOffsets, capacity uint32, initialize bool) *CQRing {
	r := &CQRing{
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

func (r *CQRing) entryAt(idx uint32) *CQEntry {
	slot := idx & r.mask
	return (*CQEntry)(unsafe.Pointer(uintptr(r.entries) + uintptr(slot)*unsafe.Sizeof(CQEntry{})))
}

// Capacity returns the ring's fixed, power-of-two entry count.
func (r *CQRing) Capacity() uint32 { return r.cap }

// Reserve (executor/producer side) returns the slot for the next
// completion, or ok=false if the CQ is full. The executor's
// postCompletion retries on ok=false until the user frees a slot, so a
// full CQ never overwrites an unconsumed completion.
func (r *CQRing) Reserve() (slot *CQEntry, idx uint32, ok bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= r.cap {
		return nil, 0, false
	}
	return r.entryAt(tail), tail, true
}

// Publish makes the completion written at idx visible to the user,
// fencing the Result/UserData writes before the tail advance so the
// user never observes a half-written completion.
func (r *CQRing) Publish(idx uint32) {
	fence()
	r.tail.Store(idx + 1)
}

// PeekTail acquire-loads the published tail for the user/consumer side.
func (r *CQRing) PeekTail() uint32 { return r.tail.Load() }

// Head returns the user's last published head.
func (r *CQRing) Head() uint32 { return r.head.Load() }

// EntryAt returns the completion at the given absolute index.
func (r *CQRing) EntryAt(idx uint32) *CQEntry { return r.entryAt(idx) }

// ReleaseHead publishes a (possibly coalesced) head advance.
func (r *CQRing) ReleaseHead(newHead uint32) { r.head.Store(newHead) }
