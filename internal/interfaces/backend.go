// Package interfaces defines the abstract collaborators the executor
// depends on but does not implement.
package interfaces

import "context"

// File is the abstract asynchronous file object the executor dispatches
// READ and WRITE operations against. It is intentionally similar to
// io.ReaderAt/io.WriterAt for familiarity, but threads a context so a
// real backend (e.g. one submitting through io_uring) can honor
// cancellation when the owning process tears down mid-operation.
type File interface {
	// ReadAt reads len(p) bytes into p starting at offset off. It returns
	// the number of bytes read (0 <= n <= len(p)) and any error
	// encountered. Implementations may return n < len(p) without error
	// only at end of file.
	ReadAt(ctx context.Context, p []byte, off int64) (n int, err error)

	// WriteAt writes len(p) bytes from p at offset off. It returns the
	// number of bytes written (0 <= n <= len(p)). A fixed-size file may
	// stop short at its end without an error; the executor consults
	// PartialTransferPolicy to decide whether such a short write counts
	// as success.
	WriteAt(ctx context.Context, p []byte, off int64) (n int, err error)

	// Size returns the current size of the file in bytes.
	Size() int64

	// Close releases any resources held by the file. After Close, no
	// other method may be called.
	Close() error
}

// PartialTransferPolicy is an optional interface a File may implement to
// report whether it permits partial transfers short of an outright
// error. The executor uses it to decide how strictly to interpret a
// short ReadAt/WriteAt.
type PartialTransferPolicy interface {
	File
	AllowsPartialTransfer() bool
}
