// Package queue provides a pooled buffer allocator used by the
// benchmark command, avoiding per-operation allocations for transfer
// sizes the demo harness generates.
package queue

import (
	"sync"

	"github.com/lattice-os/asynccall/internal/constants"
)

// globalPool is the shared buffer pool, bucketed by the sizes
// constants.BufferBucket64k/256k/1m define. Uses the pointer-to-slice
// pattern to avoid sync.Pool interface allocation overhead.
var globalPool = struct {
	pool64k  sync.Pool
	pool256k sync.Pool
	pool1m   sync.Pool
}{
	pool64k:  sync.Pool{New: func() any { b := make([]byte, constants.BufferBucket64k); return &b }},
	pool256k: sync.Pool{New: func() any { b := make([]byte, constants.BufferBucket256k); return &b }},
	pool1m:   sync.Pool{New: func() any { b := make([]byte, constants.BufferBucket1m); return &b }},
}

// GetBuffer returns a pooled buffer of at least the requested size.
// Caller must call PutBuffer when done. Requests larger than the 1MB
// bucket allocate directly and are not pooled.
func GetBuffer(size uint32) []byte {
	switch {
	case size <= constants.BufferBucket64k:
		return (*globalPool.pool64k.Get().(*[]byte))[:size]
	case size <= constants.BufferBucket256k:
		return (*globalPool.pool256k.Get().(*[]byte))[:size]
	case size <= constants.BufferBucket1m:
		return (*globalPool.pool1m.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// PutBuffer returns a buffer to the pool. The buffer's capacity
// determines which pool it goes to; buffers with a non-standard
// capacity (including the unpooled over-1MB case) are dropped.
func PutBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case constants.BufferBucket64k:
		globalPool.pool64k.Put(&buf)
	case constants.BufferBucket256k:
		globalPool.pool256k.Put(&buf)
	case constants.BufferBucket1m:
		globalPool.pool1m.Put(&buf)
	}
}
