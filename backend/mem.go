// Package backend provides File implementations usable as the
// collaborator an asynccall executor dispatches READ/WRITE operations
// against.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/lattice-os/asynccall/internal/interfaces"
)

// Memory is a RAM-backed File. It never short-transfers except at EOF,
// which makes it the deterministic backend the test suite's round-trip
// and checksum scenarios rely on.
type Memory struct {
	data []byte
	size int64
	mu   sync.RWMutex
}

// NewMemory creates a new memory-backed file of the given size.
func NewMemory(size int64) *Memory {
	return &Memory{
		data: make([]byte, size),
		size: size,
	}
}

// ReadAt implements interfaces.File.
func (m *Memory) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 {
		return 0, fmt.Errorf("read at negative offset %d", off)
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
func (m *Memory) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 {
		return 0, fmt.Errorf("write at negative offset %d", off)
	}
	if off >= m.size {
		return 0, fmt.Errorf("write beyond end of file")
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	n := copy(m.data[off:off+int64(len(p))], p)
	return n, nil
}

// Size implements interfaces.File.
func (m *Memory) Size() int64 {
	return m.size
}

// Close implements interfaces.File.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

// AllowsPartialTransfer implements interfaces.PartialTransferPolicy.
// Memory never partial-transfers short of end of file.
func (m *Memory) AllowsPartialTransfer() bool {
	return false
}

var (
	_ interfaces.File                 = (*Memory)(nil)
	_ interfaces.PartialTransferPolicy = (*Memory)(nil)
)
