package ring

import "sync/atomic"

// barrierDummy is used for atomic operations that provide memory barrier
// semantics. On x86-64, atomic.AddInt64 compiles to LOCK XADD, which has
// full fence semantics.
var barrierDummy int64

// fence issues a full memory fence. atomic.Uint32's Load/Store already
// carry the acquire/release semantics the index protocol needs, so this
// is only called around the *plain* (non-atomic) field writes inside an
// SqEntry/CqEntry, to guarantee those writes are visible to the other
// side before the index publish that hands the slot over.
func fence() {
	atomic.AddInt64(&barrierDummy, 0)
}
