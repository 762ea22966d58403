package items

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkMemoryBackend_List(b *testing.B) {
	ctx := context.Background()
	backend := NewMemoryBackend(MemoryOptions{})
	for i := range 100 {
		if _, err := backend.Add(ctx, fmt.Sprintf("item-%d", i), "details"); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := backend.List(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
