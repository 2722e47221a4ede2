package executor

import (
	"context"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/lattice-os/asynccall/internal/ring"
)

// memFile is a minimal interfaces.File used only by this package's
// tests, kept separate from the top-level MockFile to avoid an import
// cycle (executor is internal, asynccall is the importer).
type memFile struct {
	data []byte
}

func newMemFile(size int) *memFile { return &memFile{data: make([]byte, size)} }

func (m *memFile) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, nil
	}
	n := copy(p, m.data[off:])
	return n, nil
}

func (m *memFile) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, nil
	}
	n := copy(m.data[off:], p)
	return n, nil
}

func (m *memFile) Size() int64 { return int64(len(m.data)) }
func (m *memFile) Close() error { return nil }

func newTestRings(t *testing.T, sqCap, cqCap uint32) (*ring.SQRing, *ring.CQRing) {
	t.Helper()
	l := ring.ComputeLayout(sqCap, cqCap)
	buf := make([]byte, l.TotalSize)
	base := unsafe.Pointer(&buf[0])
	sq := ring.NewSQRing(base, l.SQOffsets, l.SQCapacity, true)
	cq := ring.NewCQRing(base, l.CQOffsets, l.CQCapacity, true)
	t.Cleanup(func() { _ = buf })
	return sq, cq
}

func submitNop(t *testing.T, sq *ring.SQRing, userData uint64) {
	t.Helper()
	slot, idx, ok := sq.Reserve()
	if !ok {
		t.Fatal("SQ full, cannot submit")
	}
	slot.Opcode = ring.OpNop
	slot.UserData = userData
	sq.Publish(idx)
}

func waitForCompletion(t *testing.T, cq *ring.CQRing, timeout time.Duration) ring.CQEntry {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		head := cq.Head()
		tail := cq.PeekTail()
		if head != tail {
			e := *cq.EntryAt(head)
			cq.ReleaseHead(head + 1)
			return e
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for completion")
	return ring.CQEntry{}
}

func TestNopSubmissionCompletes(t *testing.T) {
	sq, cq := newTestRings(t, 4, 4)
	ctx := Spawn(context.Background(), Config{ProcessID: 1, SQ: sq, CQ: cq})
	defer ctx.Stop(time.Second)

	submitNop(t, sq, 0xabc)

	e := waitForCompletion(t, cq, time.Second)
	if e.UserData != 0xabc || e.Result != 0 {
		t.Errorf("got %+v, want {UserData:0xabc Result:0}", e)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	sq, cq := newTestRings(t, 4, 4)
	ec := Spawn(context.Background(), Config{ProcessID: 1, SQ: sq, CQ: cq})
	defer ec.Stop(time.Second)

	f := newMemFile(4096)
	ec.OpenFile(3, f)

	payload := []byte("hello asynccall")
	buf := make([]byte, len(payload))
	copy(buf, payload)

	slot, idx, ok := sq.Reserve()
	if !ok {
		t.Fatal("SQ full")
	}
	slot.Opcode = ring.OpWrite
	slot.Fd = 3
	slot.Offset = 0
	slot.UserBufAddr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	slot.BufSize = uint32(len(buf))
	slot.UserData = 1
	sq.Publish(idx)

	e := waitForCompletion(t, cq, time.Second)
	if e.Result != int32(len(payload)) {
		t.Fatalf("write completion result = %d, want %d", e.Result, len(payload))
	}

	readBuf := make([]byte, len(payload))
	slot, idx, ok = sq.Reserve()
	if !ok {
		t.Fatal("SQ full")
	}
	slot.Opcode = ring.OpRead
	slot.Fd = 3
	slot.Offset = 0
	slot.UserBufAddr = uint64(uintptr(unsafe.Pointer(&readBuf[0])))
	slot.BufSize = uint32(len(readBuf))
	slot.UserData = 2
	sq.Publish(idx)

	e = waitForCompletion(t, cq, time.Second)
	if e.Result != int32(len(payload)) {
		t.Fatalf("read completion result = %d, want %d", e.Result, len(payload))
	}
	if string(readBuf) != string(payload) {
		t.Errorf("read back %q, want %q", readBuf, payload)
	}
}

func TestUnknownFdYieldsEbadf(t *testing.T) {
	sq, cq := newTestRings(t, 4, 4)
	ec := Spawn(context.Background(), Config{ProcessID: 1, SQ: sq, CQ: cq})
	defer ec.Stop(time.Second)

	buf := make([]byte, 8)
	slot, idx, ok := sq.Reserve()
	if !ok {
		t.Fatal("SQ full")
	}
	slot.Opcode = ring.OpRead
	slot.Fd = 99
	slot.UserBufAddr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	slot.BufSize = uint32(len(buf))
	slot.UserData = 7
	sq.Publish(idx)

	e := waitForCompletion(t, cq, time.Second)
	if e.Result != -9 { // -EBADF
		t.Errorf("result = %d, want -EBADF(-9)", e.Result)
	}
}

func TestInvalidOpcodeYieldsEinval(t *testing.T) {
	sq, cq := newTestRings(t, 4, 4)
	ec := Spawn(context.Background(), Config{ProcessID: 1, SQ: sq, CQ: cq})
	defer ec.Stop(time.Second)

	slot, idx, ok := sq.Reserve()
	if !ok {
		t.Fatal("SQ full")
	}
	slot.Opcode = ring.Opcode(99)
	slot.UserData = 42
	sq.Publish(idx)

	e := waitForCompletion(t, cq, time.Second)
	if e.Result != -22 { // -EINVAL
		t.Errorf("result = %d, want -EINVAL(-22)", e.Result)
	}
}

func TestPostCompletionDiscardedAfterStop(t *testing.T) {
	sq, cq := newTestRings(t, 4, 4)
	ec := Spawn(context.Background(), Config{ProcessID: 1, SQ: sq, CQ: cq})

	ec.Stop(time.Second)

	tailBefore := cq.PeekTail()
	ec.postCompletion(context.Background(), 0xdead, 0)
	if cq.PeekTail() != tailBefore {
		t.Error("postCompletion wrote a completion after Stop marked the context dead")
	}
}

func TestUserBufferFaultRecoversAsEfault(t *testing.T) {
	sq, cq := newTestRings(t, 4, 4)
	ec := Spawn(context.Background(), Config{ProcessID: 1, SQ: sq, CQ: cq})
	defer ec.Stop(time.Second)

	f := newMemFile(4096)
	ec.OpenFile(3, f)

	guard, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatalf("mmap guard page: %v", err)
	}
	defer unix.Munmap(guard)

	slot, idx, ok := sq.Reserve()
	if !ok {
		t.Fatal("SQ full")
	}
	slot.Opcode = ring.OpRead
	slot.Fd = 3
	slot.UserBufAddr = uint64(uintptr(unsafe.Pointer(&guard[0])))
	slot.BufSize = 64
	slot.UserData = 9
	sq.Publish(idx)

	e := waitForCompletion(t, cq, time.Second)
	if e.Result != -14 { // -EFAULT
		t.Errorf("result = %d, want -EFAULT(-14)", e.Result)
	}
}

func TestStopWaitsForInFlightWrite(t *testing.T) {
	sq, cq := newTestRings(t, 4, 4)
	ec := Spawn(context.Background(), Config{ProcessID: 1, SQ: sq, CQ: cq})

	f := newMemFile(4096)
	ec.OpenFile(3, f)

	buf := make([]byte, 16)
	slot, idx, ok := sq.Reserve()
	if !ok {
		t.Fatal("SQ full")
	}
	slot.Opcode = ring.OpWrite
	slot.Fd = 3
	slot.UserBufAddr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	slot.BufSize = uint32(len(buf))
	slot.UserData = 5
	sq.Publish(idx)

	ec.Stop(2 * time.Second)

	if ec.State() != StateStopped {
		t.Errorf("State() = %v, want StateStopped", ec.State())
	}

	head := cq.Head()
	tail := cq.PeekTail()
	if head == tail {
		t.Error("expected the in-flight write's completion to have been posted before Stop returned")
	}
}
