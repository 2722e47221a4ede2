// Command asynccall-bench drives a single async-call context with a
// steady stream of WRITE/READ submissions against a memory-backed file
// and reports throughput and latency once it's done, or on signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lattice-os/asynccall"
	"github.com/lattice-os/asynccall/backend"
	"github.com/lattice-os/asynccall/internal/logging"
	"github.com/lattice-os/asynccall/internal/queue"
	"github.com/lattice-os/asynccall/internal/ring"
)

func main() {
	var (
		sizeStr     = flag.String("size", "64M", "size of the backing memory file (e.g., 64M, 1G)")
		blockStr    = flag.String("block", "64K", "per-operation transfer size")
		sqCapacity  = flag.Uint("sq", 256, "submission ring capacity in entries")
		cqCapacity  = flag.Uint("cq", 256, "completion ring capacity in entries")
		duration    = flag.Duration("duration", 5*time.Second, "how long to run before reporting and exiting")
		verbose     = flag.Bool("v", false, "verbose output")
		processID   = flag.Int64("pid", int64(os.Getpid()), "ProcessID to set up the async-call context under")
	)
	flag.Parse()

	size, err := humanize.ParseBytes(*sizeStr)
	if err != nil {
		log.Fatalf("invalid -size %q: %v", *sizeStr, err)
	}
	block, err := humanize.ParseBytes(*blockStr)
	if err != nil {
		log.Fatalf("invalid -block %q: %v", *blockStr, err)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg := asynccall.DefaultConfig(*processID)
	cfg.SubmissionCapacity = uint32(*sqCapacity)
	cfg.CompletionCapacity = uint32(*cqCapacity)
	cfg.Logger = logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := asynccall.Setup(ctx, cfg)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	f := backend.NewMemory(int64(size))
	h.OpenFile(1, f)
	defer h.CloseFile(1)

	logger.Info("async-call context set up",
		"process_id", *processID,
		"file_size", humanize.Bytes(size),
		"block_size", humanize.Bytes(block),
		"sq_capacity", h.SubmissionCapacity(),
		"cq_capacity", h.CompletionCapacity())

	fmt.Printf("Backing file: %s, block size: %s\n", humanize.Bytes(size), humanize.Bytes(block))
	fmt.Printf("Rings: sq=%d cq=%d\n", h.SubmissionCapacity(), h.CompletionCapacity())
	fmt.Printf("Running for %s. Send SIGUSR1 (kill -USR1 %d) to dump goroutine stacks.\n", *duration, os.Getpid())

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runDone := make(chan struct{})
	go runWorkload(h, int64(size), uint32(block), runDone)

	select {
	case <-time.After(*duration):
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-runDone:
	}

	snap := h.MetricsSnapshot()
	fmt.Printf("\n--- results ---\n")
	fmt.Printf("writes: %d (%s), reads: %d (%s)\n",
		snap.WriteOps, humanize.Bytes(snap.WriteBytes),
		snap.ReadOps, humanize.Bytes(snap.ReadBytes))
	fmt.Printf("write bandwidth: %s/s, read bandwidth: %s/s\n",
		humanize.Bytes(uint64(snap.WriteBandwidth)), humanize.Bytes(uint64(snap.ReadBandwidth)))
	fmt.Printf("avg latency: %s, p50: %s, p99: %s, p99.9: %s\n",
		time.Duration(snap.AvgLatencyNs), time.Duration(snap.LatencyP50Ns),
		time.Duration(snap.LatencyP99Ns), time.Duration(snap.LatencyP999Ns))
	if snap.ErrorRate > 0 {
		fmt.Printf("error rate: %.2f%%\n", snap.ErrorRate)
	}
}

// runWorkload submits a steady stream of alternating WRITE/READ
// operations at random offsets until Submit returns an error, and
// closes done when it returns. It does not watch any context or signal;
// main stops waiting on it when the duration or a signal ends the run.
// Buffers come from the
// shared pool; each one is only returned once its completion has been
// observed, since the executor holds a raw pointer into it until then.
func runWorkload(h *asynccall.Handle, fileSize int64, block uint32, done chan struct{}) {
	defer close(done)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	inFlight := make(map[uint64][]byte)
	var tag uint64

	for {
		for _, e := range h.PollCompletions(64) {
			if buf, ok := inFlight[e.UserData]; ok {
				delete(inFlight, e.UserData)
				queue.PutBuffer(buf)
			}
		}

		buf := queue.GetBuffer(block)
		rng.Read(buf)

		offset := uint64(rng.Int63n(fileSize - int64(block) + 1))
		opcode := ring.OpWrite
		if tag%2 == 1 {
			opcode = ring.OpRead
		}

		ok, err := h.Submit(opcode, 1, offset, buf, tag)
		if err != nil {
			queue.PutBuffer(buf)
			return
		}
		if !ok {
			queue.PutBuffer(buf)
			continue
		}

		inFlight[tag] = buf
		tag++
	}
}
