package asynccall

import (
	"context"
	"sync"

	"github.com/lattice-os/asynccall/internal/interfaces"
)

// MockFile provides a mock implementation of interfaces.File for
// testing executors and callers without touching real storage. It
// tracks method calls for verification and can be configured to inject
// errors on demand.
type MockFile struct {
	mu     sync.RWMutex
	data   []byte
	size   int64
	closed bool

	readCalls  int
	writeCalls int

	// ReadErr/WriteErr, when non-nil, are returned by every ReadAt/WriteAt
	// call instead of performing the transfer, until set back to nil.
	ReadErr  error
	WriteErr error

	partial bool
}

// NewMockFile creates a new mock file with the given size, zero-filled.
func NewMockFile(size int64) *MockFile {
	return &MockFile{
		data: make([]byte, size),
		size: size,
	}
}

// ReadAt implements interfaces.File.
func (m *MockFile) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls++

	if m.closed {
		return 0, ErrNotFound
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	if off >= m.size {
		return 0, nil
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	n := copy(p, m.data[off:off+int64(len(p))])
	return n, nil
}

// WriteAt implements interfaces.File.
func (m *MockFile) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++

	if m.closed {
		return 0, ErrNotFound
	}
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	if off >= m.size {
		return 0, ErrInvalidParameters
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	n := copy(m.data[off:off+int64(len(p))], p)
	return n, nil
}

// Size implements interfaces.File.
func (m *MockFile) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Close implements interfaces.File.
func (m *MockFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// AllowsPartialTransfer implements interfaces.PartialTransferPolicy.
func (m *MockFile) AllowsPartialTransfer() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.partial
}

// SetAllowsPartialTransfer configures the policy AllowsPartialTransfer
// reports, for exercising executor code paths under both policies.
func (m *MockFile) SetAllowsPartialTransfer(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partial = v
}

// IsClosed returns true if Close has been called.
func (m *MockFile) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// CallCounts returns the number of times each method has been called.
func (m *MockFile) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"read":  m.readCalls,
		"write": m.writeCalls,
	}
}

// Reset resets all call counters.
func (m *MockFile) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls = 0
	m.writeCalls = 0
}

// Compile-time interface checks.
var (
	_ interfaces.File                  = (*MockFile)(nil)
	_ interfaces.PartialTransferPolicy = (*MockFile)(nil)
)
