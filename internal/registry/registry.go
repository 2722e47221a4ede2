// Package registry implements the Process Table: a mutex-guarded,
// process-ID-keyed map of live executor contexts, standing in for the
// kernel's own process table, which this module has no reason to
// reimplement.
package registry

import "sync"

// Table is a process-ID-keyed table of live entries of type V.
type Table[V any] struct {
	mu    sync.Mutex
	byPID map[int64]V
}

// New creates an empty table.
func New[V any]() *Table[V] {
	return &Table[V]{byPID: make(map[int64]V)}
}

// Register inserts v under pid. It returns ok=false without modifying
// the table if pid is already registered, satisfying the "second
// setup_async_call for the same process fails" invariant.
func (t *Table[V]) Register(pid int64, v V) (stored V, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byPID[pid]; exists {
		var zero V
		return zero, false
	}
	t.byPID[pid] = v
	return v, true
}

// Unregister removes pid from the table, returning the removed entry.
func (t *Table[V]) Unregister(pid int64) (removed V, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.byPID[pid]
	if ok {
		delete(t.byPID, pid)
	}
	return v, ok
}

// Lookup returns the entry registered for pid, if any.
func (t *Table[V]) Lookup(pid int64) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.byPID[pid]
	return v, ok
}

// Len returns the number of registered entries.
func (t *Table[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byPID)
}
