// Package executor implements the Submission Executor: the goroutine
// that drains a process's submission ring, dispatches NOP/READ/WRITE
// against registered files, and posts completions.
package executor

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sync/semaphore"

	"github.com/lattice-os/asynccall/internal/constants"
	"github.com/lattice-os/asynccall/internal/interfaces"
	"github.com/lattice-os/asynccall/internal/logging"
	"github.com/lattice-os/asynccall/internal/ring"
)

// State represents the executor's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Observer receives executor-level observations, satisfied by the
// top-level Metrics type without the executor importing it.
type Observer interface {
	ObserveNop(latencyNs uint64)
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveQueueDepth(depth uint32)
}

type noOpObserver struct{}

func (noOpObserver) ObserveNop(uint64)                 {}
func (noOpObserver) ObserveRead(uint64, uint64, bool)  {}
func (noOpObserver) ObserveWrite(uint64, uint64, bool) {}
func (noOpObserver) ObserveQueueDepth(uint32)          {}

// Config configures a Context.
type Config struct {
	ProcessID   int64
	SQ          *ring.SQRing
	CQ          *ring.CQRing
	MaxInFlight int64 // bounds concurrent READ/WRITE dispatch; defaults to CQ capacity
	Logger      *logging.Logger
	Observer    Observer

	// RegionBase/RegionSize bound the shared region a submission's
	// user_buf_addr may point into. An address range fully inside
	// [RegionBase, RegionBase+RegionSize) is used directly; anything
	// else is treated as the caller's own process memory and is
	// validated by fault recovery instead. Both zero disables the
	// region fast path without affecting correctness.
	RegionBase unsafe.Pointer
	RegionSize uintptr
}

// Context is the per-process executor: it drains SQ entries, dispatches
// NOP/READ/WRITE against registered files, and posts completions to CQ.
type Context struct {
	processID int64
	sq        *ring.SQRing
	cq        *ring.CQRing
	sem       *semaphore.Weighted

	regionBase unsafe.Pointer
	regionSize uintptr

	filesMu sync.RWMutex
	files   map[int32]interfaces.File

	logger   *logging.Logger
	observer Observer

	state atomic.Int32
	alive atomic.Bool // cleared under teardownMu by Stop; gates every completion write

	// teardownMu makes "check alive, then write a completion" atomic with
	// respect to Stop clearing alive: Stop takes the write lock only after
	// every postCompletion call already past its check has finished
	// writing, so no completion can land after Stop returns and the
	// caller goes on to unmap the region.
	teardownMu sync.RWMutex

	wg       sync.WaitGroup // in-flight READ/WRITE dispatches
	cancel   context.CancelFunc
	loopDone chan struct{} // closed when drainLoop returns
}

// Spawn creates a Context and starts its drain loop in a background
// goroutine. Stop must be called exactly once to release the goroutine.
func Spawn(parent context.Context, cfg Config) *Context {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = int64(cfg.CQ.Capacity())
	}

	observer := cfg.Observer
	if observer == nil {
		observer = noOpObserver{}
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Context{
		processID:  cfg.ProcessID,
		sq:         cfg.SQ,
		cq:         cfg.CQ,
		sem:        semaphore.NewWeighted(maxInFlight),
		regionBase: cfg.RegionBase,
		regionSize: cfg.RegionSize,
		files:      make(map[int32]interfaces.File),
		logger:     cfg.Logger,
		observer:   observer,
		cancel:     cancel,
		loopDone:   make(chan struct{}),
	}
	c.alive.Store(true)

	go c.drainLoop(ctx)
	return c
}

// OpenFile registers f under fd so subsequent READ/WRITE submissions
// naming fd dispatch against it.
func (c *Context) OpenFile(fd int32, f interfaces.File) {
	c.filesMu.Lock()
	defer c.filesMu.Unlock()
	c.files[fd] = f
}

// CloseFile unregisters and closes the file registered under fd, if
// any.
func (c *Context) CloseFile(fd int32) error {
	c.filesMu.Lock()
	f, ok := c.files[fd]
	delete(c.files, fd)
	c.filesMu.Unlock()

	if !ok {
		return nil
	}
	return f.Close()
}

func (c *Context) fileFor(fd int32) (interfaces.File, bool) {
	c.filesMu.RLock()
	defer c.filesMu.RUnlock()
	f, ok := c.files[fd]
	return f, ok
}

// Stop signals the drain loop to stop accepting new submissions, waits
// up to grace for in-flight READ/WRITE dispatches to finish posting
// their completions, then marks the executor stopped. In-flight
// operations are never cancelled outright; Stop only bounds how long
// it waits for them.
func (c *Context) Stop(grace time.Duration) {
	c.state.Store(int32(StateDraining))
	deadline := time.Now().Add(grace)

	// Wait for the SQ to empty before cancelling the drain loop: the
	// caller is assumed to have stopped submitting, so once head==tail
	// no further entry will be dispatched and wg's count is final.
	for time.Now().Before(deadline) {
		if c.sq.Head() == c.sq.PeekTail() {
			break
		}
		time.Sleep(constants.IdlePollInterval)
	}

	c.cancel()
	// Wait for drainLoop to return: it reads the SQ indices, which live in
	// the region the caller unmaps as soon as Stop returns.
	<-c.loopDone

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	select {
	case <-done:
	case <-time.After(remaining):
		if c.logger != nil {
			c.logger.Warn("teardown grace period expired with operations still in flight", "process_id", c.processID)
		}
	}

	// Clear alive under the write lock so any postCompletion call already
	// past its read-locked alive check finishes its write first; any call
	// that acquires the read lock after this point sees alive == false and
	// discards instead of writing into a region the caller may unmap as
	// soon as Stop returns.
	c.teardownMu.Lock()
	c.alive.Store(false)
	c.teardownMu.Unlock()

	c.state.Store(int32(StateStopped))
}

// State returns the executor's current lifecycle state.
func (c *Context) State() State {
	return State(c.state.Load())
}

// drainLoop is the executor's main loop: drain up to
// constants.MaxEntriesPerRound SQ entries, dispatch each, yield.
func (c *Context) drainLoop(ctx context.Context) {
	defer close(c.loopDone)
	for {
		// Drain whatever is already in the SQ before checking ctx: Stop
		// cancels ctx once the SQ is empty or its grace period has run
		// out, and an entry still queued at that point is still
		// dispatched here rather than silently skipped.
		head := c.sq.Head()
		tail := c.sq.PeekTail()
		c.observer.ObserveQueueDepth(tail - head)

		processed := 0
		for processed < constants.MaxEntriesPerRound && head != tail {
			entry := *c.sq.EntryAt(head)
			head++
			// Dispatch before releasing the head: dispatch has already
			// taken its own copy of entry and, for READ/WRITE, already
			// incremented the in-flight wait group by the time the slot
			// is released. Stop relies on that ordering to tell whether
			// draining the SQ is complete.
			c.dispatch(ctx, entry)
			c.sq.ReleaseHead(head)
			processed++
		}

		if processed == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(constants.IdlePollInterval):
			}
		} else {
			runtime.Gosched()
		}
	}
}

// dispatch executes one submission entry and posts its completion. NOP
// completes inline; READ/WRITE run on their own goroutine, bounded by
// the in-flight semaphore, so independent operations overlap.
func (c *Context) dispatch(ctx context.Context, entry ring.SQEntry) {
	start := time.Now()

	switch entry.Opcode {
	case ring.OpNop:
		c.postCompletion(ctx, entry.UserData, 0)
		c.observer.ObserveNop(uint64(time.Since(start).Nanoseconds()))

	case ring.OpRead, ring.OpWrite:
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return // context cancelled while waiting for an in-flight slot
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer c.sem.Release(1)
			c.dispatchTransfer(ctx, entry, start)
		}()

	default:
		c.postCompletion(ctx, entry.UserData, -int32(syscall.EINVAL))
	}
}

func (c *Context) dispatchTransfer(ctx context.Context, entry ring.SQEntry, start time.Time) {
	if !c.alive.Load() {
		return // abandoned during teardown; drop rather than touch the file or the region
	}

	f, ok := c.fileFor(entry.Fd)
	if !ok {
		c.postCompletion(ctx, entry.UserData, -int32(syscall.EBADF))
		c.observeTransfer(entry, 0, start, false)
		return
	}

	if entry.BufSize == 0 {
		c.postCompletion(ctx, entry.UserData, 0)
		c.observeTransfer(entry, 0, start, true)
		return
	}

	if entry.UserBufAddr == 0 {
		c.postCompletion(ctx, entry.UserData, -int32(syscall.EFAULT))
		c.observeTransfer(entry, 0, start, false)
		return
	}

	buf, ok := c.userBuffer(entry.UserBufAddr, entry.BufSize)
	if !ok {
		c.postCompletion(ctx, entry.UserData, -int32(syscall.EFAULT))
		c.observeTransfer(entry, 0, start, false)
		return
	}

	n, err := c.transfer(ctx, f, entry, buf)
	if err == errFault {
		c.postCompletion(ctx, entry.UserData, -int32(syscall.EFAULT))
		c.observeTransfer(entry, uint64(n), start, false)
		return
	}

	if err != nil {
		result := -int32(syscall.EIO)
		if errnoErr, ok := err.(syscall.Errno); ok {
			result = -int32(errnoErr)
		}
		c.postCompletion(ctx, entry.UserData, result)
		c.observeTransfer(entry, uint64(n), start, false)
		return
	}

	if uint32(n) < entry.BufSize {
		if policy, ok := f.(interfaces.PartialTransferPolicy); !ok || !policy.AllowsPartialTransfer() {
			c.postCompletion(ctx, entry.UserData, -int32(syscall.EIO))
			c.observeTransfer(entry, uint64(n), start, false)
			return
		}
	}

	c.postCompletion(ctx, entry.UserData, int32(n))
	c.observeTransfer(entry, uint64(n), start, true)
}

// errFault marks a transfer that faulted on the user buffer rather than
// failing inside the backend file.
var errFault = errors.New("executor: user buffer fault")

// userBuffer reconstructs the []byte a submission's user_buf_addr/buf_size
// describes. A range fully inside the mapped shared region is safe to
// project directly; anything outside it is assumed to be the caller's own
// process memory (the bulk-transfer path, where a caller submits its own
// heap buffer rather than a region offset) and is deferred to transfer's
// fault-recovery wrapper instead of being trusted here, since there is no
// portable way to ask the runtime whether an arbitrary address is backed
// by a mapped page short of touching it.
func (c *Context) userBuffer(addr uint64, size uint32) (buf []byte, ok bool) {
	start := uintptr(addr)
	end := start + uintptr(size)
	if end < start {
		return nil, false // overflow: buf_size wraps the address space
	}

	if c.regionBase != nil {
		regionStart := uintptr(c.regionBase)
		regionEnd := regionStart + c.regionSize
		if start >= regionStart && end <= regionEnd {
			return unsafe.Slice((*byte)(unsafe.Pointer(start)), size), true
		}
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(start)), size), true
}

// transfer runs the file operation with the runtime's fault-on-memory-
// access behavior enabled for this goroutine, so a user_buf_addr that
// straddles an unmapped page surfaces as errFault instead of crashing the
// process. SetPanicOnFault only affects faults taken while it is set, so
// it is always restored before returning.
func (c *Context) transfer(ctx context.Context, f interfaces.File, entry ring.SQEntry, buf []byte) (n int, err error) {
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)

	defer func() {
		if r := recover(); r != nil {
			n, err = 0, errFault
		}
	}()

	if entry.Opcode == ring.OpRead {
		return f.ReadAt(ctx, buf, int64(entry.Offset))
	}
	return f.WriteAt(ctx, buf, int64(entry.Offset))
}

func (c *Context) observeTransfer(entry ring.SQEntry, n uint64, start time.Time, success bool) {
	latencyNs := uint64(time.Since(start).Nanoseconds())
	if entry.Opcode == ring.OpRead {
		c.observer.ObserveRead(n, latencyNs, success)
	} else {
		c.observer.ObserveWrite(n, latencyNs, success)
	}
}

// postCompletion publishes a completion, retrying while the CQ is full
// so a slow consumer backs up the executor rather than a completion
// being dropped. It gives up if ctx is done first, and discards the
// completion entirely once the context has been marked dead by Stop
// rather than writing into a region the caller may already be unmapping.
func (c *Context) postCompletion(ctx context.Context, userData uint64, result int32) {
	c.teardownMu.RLock()
	defer c.teardownMu.RUnlock()

	if !c.alive.Load() {
		return
	}

	for {
		slot, idx, ok := c.cq.Reserve()
		if ok {
			slot.UserData = userData
			slot.Result = result
			c.cq.Publish(idx)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(constants.IdlePollInterval):
		}
	}
}
