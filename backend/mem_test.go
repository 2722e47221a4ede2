package backend

import (
	"context"
	"testing"
)

func TestNewMemory(t *testing.T) {
	size := int64(1024)
	mem := NewMemory(size)

	if mem.Size() != size {
		t.Errorf("Size() = %d, want %d", mem.Size(), size)
	}
	if len(mem.data) != int(size) {
		t.Errorf("data length = %d, want %d", len(mem.data), size)
	}
}

func TestMemoryReadWrite(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(1024)
	defer mem.Close()

	testData := []byte("hello, asynccall")
	n, err := mem.WriteAt(ctx, testData, 0)
	if err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if n != len(testData) {
		t.Errorf("WriteAt wrote %d bytes, want %d", n, len(testData))
	}

	readBuf := make([]byte, len(testData))
	n, err = mem.ReadAt(ctx, readBuf, 0)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if n != len(testData) {
		t.Errorf("ReadAt read %d bytes, want %d", n, len(testData))
	}
	if string(readBuf) != string(testData) {
		t.Errorf("ReadAt got %q, want %q", readBuf, testData)
	}
}

func TestMemoryBoundaryConditions(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(100)
	defer mem.Close()

	buf := make([]byte, 50)
	n, err := mem.ReadAt(ctx, buf, 80)
	if err != nil {
		t.Errorf("ReadAt at boundary failed: %v", err)
	}
	if n != 20 {
		t.Errorf("ReadAt at boundary read %d bytes, want 20", n)
	}

	if _, err := mem.WriteAt(ctx, []byte("test"), 98); err != nil {
		t.Errorf("WriteAt near end failed: %v", err)
	}

	if _, err := mem.WriteAt(ctx, []byte("test"), 101); err == nil {
		t.Error("WriteAt beyond end should fail")
	}
}

func TestMemoryAllowsPartialTransfer(t *testing.T) {
	mem := NewMemory(10)
	defer mem.Close()

	if mem.AllowsPartialTransfer() {
		t.Error("Memory should not allow partial transfer")
	}
}
