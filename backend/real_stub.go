//go:build !iouring

package backend

import (
	"context"
	"os"
)

// stubEngine performs ordinary blocking pread/pwrite. Safe on every
// platform Go's os package supports; used unless built with -tags iouring.
type stubEngine struct{}

func newEngine() engine { return stubEngine{} }

func (stubEngine) readAt(_ context.Context, f *os.File, p []byte, off int64) (int, error) {
	return f.ReadAt(p, off)
}

func (stubEngine) writeAt(_ context.Context, f *os.File, p []byte, off int64) (int, error) {
	return f.WriteAt(p, off)
}
