// Package shmem implements the Shared-Region Allocator: a page-aligned
// MAP_SHARED mapping double-viewed as a kernel-side and a user-side
// accessor.
package shmem

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a single contiguous, page-aligned shared-memory buffer. In
// this single-process model KernelView and UserView resolve to the same
// backing address, but they are separate accessors so call sites read
// as if addressing two distinct address spaces: a caller that wants
// genuine cross-process sharing only needs to change how the mapping is
// obtained (e.g. mapping a memfd inherited across fork), not any caller
// of KernelView/UserView.
type Region struct {
	addr unsafe.Pointer
	size int
	once sync.Once
}

// Allocate rounds size up to a page and mmaps an anonymous, zero-filled,
// shared, non-executable region.
func Allocate(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shmem: size must be positive, got %d", size)
	}
	rounded := alignUp(size, unix.Getpagesize())

	b, err := unix.Mmap(-1, 0, rounded, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("shmem: mmap failed: %w", err)
	}

	return &Region{addr: unsafe.Pointer(&b[0]), size: rounded}, nil
}

// KernelView returns the executor-side accessor for the region.
func (r *Region) KernelView() unsafe.Pointer { return r.addr }

// UserView returns the caller-side accessor for the region.
func (r *Region) UserView() unsafe.Pointer { return r.addr }

// Size returns the region's total size in bytes, rounded up to a page.
func (r *Region) Size() int { return r.size }

// Unmap releases the mapping. Idempotent: a second call is a no-op, so a
// racing teardown path can never double-unmap the same pages.
func (r *Region) Unmap() error {
	var err error
	r.once.Do(func() {
		b := unsafe.Slice((*byte)(r.addr), r.size)
		err = unix.Munmap(b)
	})
	return err
}

func alignUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}
