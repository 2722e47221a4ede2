package backend

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/lattice-os/asynccall/internal/interfaces"
)

// engine is the pluggable transport a RealFile uses to perform its
// ReadAt/WriteAt. The default build uses blocking pread/pwrite in the
// calling goroutine; building with -tags iouring swaps in a real
// io_uring-backed engine instead.
type engine interface {
	readAt(ctx context.Context, f *os.File, p []byte, off int64) (int, error)
	writeAt(ctx context.Context, f *os.File, p []byte, off int64) (int, error)
}

// RealFile is an os-file-backed File. Unlike Memory it may legitimately
// short-transfer the way a real pread/pwrite can.
type RealFile struct {
	f      *os.File
	size   atomic.Int64
	engine engine
}

// OpenRealFile opens path with the given flag/perm and wraps it as a File.
func OpenRealFile(path string, flag int, perm os.FileMode) (*RealFile, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	rf := &RealFile{f: f, engine: newEngine()}
	rf.size.Store(info.Size())
	return rf, nil
}

// ReadAt implements interfaces.File.
func (r *RealFile) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	return r.engine.readAt(ctx, r.f, p, off)
}

// WriteAt implements interfaces.File.
func (r *RealFile) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := r.engine.writeAt(ctx, r.f, p, off)
	if end := off + int64(n); end > r.size.Load() {
		r.size.Store(end)
	}
	return n, err
}

// Size implements interfaces.File.
func (r *RealFile) Size() int64 {
	return r.size.Load()
}

// Close implements interfaces.File.
func (r *RealFile) Close() error {
	return r.f.Close()
}

// AllowsPartialTransfer implements interfaces.PartialTransferPolicy.
func (r *RealFile) AllowsPartialTransfer() bool {
	return true
}

var (
	_ interfaces.File                 = (*RealFile)(nil)
	_ interfaces.PartialTransferPolicy = (*RealFile)(nil)
)
