package backend

import (
	"context"
	"math/rand"
	"testing"
)

func BenchmarkMemoryReadAt(b *testing.B) {
	ctx := context.Background()
	mem := NewMemory(64 << 20)
	buf := make([]byte, 4096)

	b.SetBytes(int64(len(buf)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		offset := int64(rand.Intn(64<<20 - len(buf)))
		mem.ReadAt(ctx, buf, offset)
	}
}

func BenchmarkMemoryWriteAt(b *testing.B) {
	ctx := context.Background()
	mem := NewMemory(64 << 20)
	buf := make([]byte, 4096)
	rand.Read(buf)

	b.SetBytes(int64(len(buf)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		offset := int64(rand.Intn(64<<20 - len(buf)))
		mem.WriteAt(ctx, buf, offset)
	}
}
