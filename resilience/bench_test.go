package resilience

import (
	"context"
	"testing"
	"time"
)

// BenchmarkRetry_Execute_Success measures the retry wrapper on the happy path.
func BenchmarkRetry_Execute_Success(b *testing.B) {
	r := NewRetry(RetryConfig{MaxAttempts: 3})
	ctx := context.Background()
	op := func(ctx context.Context) error { return nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Execute(ctx, op)
	}
}

// BenchmarkTimeout_Execute measures the goroutine-per-call timeout wrapper.
func BenchmarkTimeout_Execute(b *testing.B) {
	t := NewTimeout(TimeoutConfig{Timeout: time.Second})
	ctx := context.Background()
	op := func(ctx context.Context) error { return nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = t.Execute(ctx, op)
	}
}

// BenchmarkRun measures a full fetch-shaped call through the executor.
func BenchmarkRun(b *testing.B) {
	e := NewExecutor(WithRetry(NewRetry(FetchRetryConfig())), WithTimeout(time.Second))
	ctx := context.Background()
	op := func(ctx context.Context) (int, error) { return 1, nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Run(ctx, e, op)
	}
}
