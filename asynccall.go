// Package asynccall implements the async-call subsystem: a per-process
// shared-memory submission/completion ring pair and the executor that
// drains it, modeled after io_uring's setup_async_call contract.
package asynccall

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"github.com/lattice-os/asynccall/internal/constants"
	"github.com/lattice-os/asynccall/internal/executor"
	"github.com/lattice-os/asynccall/internal/interfaces"
	"github.com/lattice-os/asynccall/internal/logging"
	"github.com/lattice-os/asynccall/internal/registry"
	"github.com/lattice-os/asynccall/internal/ring"
	"github.com/lattice-os/asynccall/internal/shmem"
)

// bufAddr returns buf's backing address as the integer form SQEntry's
// UserBufAddr field stores. The executor reconstructs a []byte from
// this address and BufSize, so buf must outlive the submission's
// completion.
func bufAddr(buf []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}

// processTable is the global Process Table: every live Handle, keyed by
// the ProcessID it was set up for. A second Setup for the same
// ProcessID fails with ErrAlreadyExists rather than silently replacing
// the first.
var processTable = registry.New[*Handle]()

// Config configures a call to Setup.
type Config struct {
	// ProcessID identifies the owning process. Must be nonzero and
	// unique among live Handles.
	ProcessID int64

	// SubmissionCapacity and CompletionCapacity are the requested ring
	// capacities in entries. Rounded up to the next power of two; must
	// lie within [constants.MinRingCapacity, constants.MaxRingCapacity].
	SubmissionCapacity uint32
	CompletionCapacity uint32

	// MaxInFlight bounds concurrent READ/WRITE dispatch. Zero defaults
	// to CompletionCapacity (after rounding), the largest safe bound
	// given the completion back-pressure scheme.
	MaxInFlight int64

	// TeardownGrace bounds how long Close waits for in-flight
	// operations to drain before abandoning them. Zero defaults to
	// constants.DefaultTeardownGrace.
	TeardownGrace time.Duration

	// Logger receives executor diagnostics. Nil uses the package
	// default logger.
	Logger *logging.Logger

	// Observer receives per-operation metrics observations. Nil
	// attaches a fresh MetricsObserver, retrievable via Handle.Metrics.
	Observer Observer
}

// DefaultConfig returns a Config with the default ring capacities for
// the given process.
func DefaultConfig(processID int64) Config {
	return Config{
		ProcessID:          processID,
		SubmissionCapacity: constants.DefaultSubmissionCapacity,
		CompletionCapacity: constants.DefaultCompletionCapacity,
		TeardownGrace:      constants.DefaultTeardownGrace,
	}
}

// Handle is the live async-call context for one process: the
// shared-memory region, its ring accessors, and the executor draining
// them.
type Handle struct {
	processID int64
	region    *shmem.Region
	layout    ring.Layout
	sq        *ring.SQRing
	cq        *ring.CQRing
	executor  *executor.Context
	metrics   *Metrics
	logger    *logging.Logger
	grace     time.Duration
}

// Setup allocates the shared region, lays out the submission and
// completion rings inside it, and starts the executor that drains
// submissions for ProcessID. It is the Go equivalent of a
// setup_async_call syscall.
func Setup(ctx context.Context, cfg Config) (*Handle, error) {
	if cfg.ProcessID == 0 {
		return nil, NewError("SETUP", ErrCodeInvalidParameters, "ProcessID must be nonzero")
	}
	if cfg.SubmissionCapacity < constants.MinRingCapacity || cfg.SubmissionCapacity > constants.MaxRingCapacity {
		return nil, NewProcessError("SETUP", cfg.ProcessID, ErrCodeInvalidParameters, "SubmissionCapacity out of range")
	}
	if cfg.CompletionCapacity < constants.MinRingCapacity || cfg.CompletionCapacity > constants.MaxRingCapacity {
		return nil, NewProcessError("SETUP", cfg.ProcessID, ErrCodeInvalidParameters, "CompletionCapacity out of range")
	}

	grace := cfg.TeardownGrace
	if grace <= 0 {
		grace = constants.DefaultTeardownGrace
	}

	layout := ring.ComputeLayout(cfg.SubmissionCapacity, cfg.CompletionCapacity)

	region, err := shmem.Allocate(int(layout.TotalSize))
	if err != nil {
		return nil, WrapError("SETUP", err)
	}

	sq := ring.NewSQRing(region.UserView(), layout.SQOffsets, layout.SQCapacity, true)
	cq := ring.NewCQRing(region.UserView(), layout.CQOffsets, layout.CQCapacity, true)

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithProcess(cfg.ProcessID)

	metrics := NewMetrics()
	observer := cfg.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	ec := executor.Spawn(ctx, executor.Config{
		ProcessID:   cfg.ProcessID,
		SQ:          sq,
		CQ:          cq,
		MaxInFlight: cfg.MaxInFlight,
		Logger:      logger,
		Observer:    observer,
		RegionBase:  region.KernelView(),
		RegionSize:  uintptr(region.Size()),
	})

	h := &Handle{
		processID: cfg.ProcessID,
		region:    region,
		layout:    layout,
		sq:        sq,
		cq:        cq,
		executor:  ec,
		metrics:   metrics,
		logger:    logger,
		grace:     grace,
	}

	if _, ok := processTable.Register(cfg.ProcessID, h); !ok {
		ec.Stop(grace)
		region.Unmap()
		return nil, NewProcessError("SETUP", cfg.ProcessID, ErrCodeAlreadyExists, "async-call context already exists for process")
	}

	logger.Info("async-call context set up", "sq_capacity", layout.SQCapacity, "cq_capacity", layout.CQCapacity)
	return h, nil
}

// Lookup returns the live Handle registered for processID, if any.
func Lookup(processID int64) (*Handle, bool) {
	return processTable.Lookup(processID)
}

// ProcessID returns the process this Handle was set up for.
func (h *Handle) ProcessID() int64 { return h.processID }

// SubmissionCapacity returns the submission ring's entry capacity.
func (h *Handle) SubmissionCapacity() uint32 { return h.layout.SQCapacity }

// CompletionCapacity returns the completion ring's entry capacity.
func (h *Handle) CompletionCapacity() uint32 { return h.layout.CQCapacity }

// Submit reserves a submission slot, fills it, and publishes it. It
// returns ok=false without blocking if the SQ is full rather than
// waiting for room. buf may be empty for a NOP. The SQ has a single
// producer and Submit takes no lock: calls on the same Handle must not
// run concurrently from more than one goroutine.
func (h *Handle) Submit(opcode ring.Opcode, fd int32, offset uint64, buf []byte, userData uint64) (bool, error) {
	if opcode != ring.OpNop && opcode != ring.OpRead && opcode != ring.OpWrite {
		return false, NewProcessError("SUBMIT", h.processID, ErrCodeInvalidParameters, fmt.Sprintf("unknown opcode %d", opcode))
	}

	slot, idx, ok := h.sq.Reserve()
	if !ok {
		return false, nil
	}

	slot.Opcode = opcode
	slot.Fd = fd
	slot.Offset = offset
	slot.BufSize = uint32(len(buf))
	slot.UserData = userData
	slot.Flags = 0
	if len(buf) > 0 {
		slot.UserBufAddr = bufAddr(buf)
	} else {
		slot.UserBufAddr = 0
	}

	h.sq.Publish(idx)
	return true, nil
}

// PollCompletion returns the next completion in the CQ, if one is
// available, without blocking.
func (h *Handle) PollCompletion() (ring.CQEntry, bool) {
	head := h.cq.Head()
	tail := h.cq.PeekTail()
	if head == tail {
		return ring.CQEntry{}, false
	}
	e := *h.cq.EntryAt(head)
	h.cq.ReleaseHead(head + 1)
	return e, true
}

// PollCompletions drains up to max completions from the CQ without
// blocking.
func (h *Handle) PollCompletions(max int) []ring.CQEntry {
	var out []ring.CQEntry
	for len(out) < max {
		e, ok := h.PollCompletion()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

// OpenFile registers f under fd so subsequent READ/WRITE submissions
// naming fd dispatch against it. There is no real kernel file table
// behind fd, so OpenFile takes an already-open File rather than a
// path.
func (h *Handle) OpenFile(fd int32, f interfaces.File) {
	h.executor.OpenFile(fd, f)
}

// CloseFile unregisters and closes the file registered under fd.
func (h *Handle) CloseFile(fd int32) error {
	return h.executor.CloseFile(fd)
}

// Metrics returns this Handle's metrics instance.
func (h *Handle) Metrics() *Metrics { return h.metrics }

// MetricsSnapshot returns a point-in-time snapshot of this Handle's
// metrics.
func (h *Handle) MetricsSnapshot() MetricsSnapshot { return h.metrics.Snapshot() }

// Close tears down the async-call context: it stops the executor
// (waiting up to the configured TeardownGrace for in-flight operations
// to complete), unregisters the process, and unmaps the shared region.
func (h *Handle) Close() error {
	h.executor.Stop(h.grace)
	h.metrics.Stop()
	processTable.Unregister(h.processID)
	return h.region.Unmap()
}
