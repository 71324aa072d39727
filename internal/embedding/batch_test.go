package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestConcurrentBatchEmpty(t *testing.T) {
	out, err := concurrentBatch(context.Background(), nil, 4, func(context.Context, string) ([]float32, error) {
		t.Fatal("embedOne should not be called for an empty batch")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("want empty output, got %d entries", len(out))
	}
}

func TestConcurrentBatchSmallStaysSequential(t *testing.T) {
	var maxConcurrent, current int32
	texts := []string{"a", "b", "c"}
	out, err := concurrentBatch(context.Background(), texts, 8, func(context.Context, string) ([]float32, error) {
		n := atomic.AddInt32(&current, 1)
		if n > atomic.LoadInt32(&maxConcurrent) {
			atomic.StoreInt32(&maxConcurrent, n)
		}
		atomic.AddInt32(&current, -1)
		return []float32{1}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(texts) {
		t.Fatalf("want %d results, got %d", len(texts), len(out))
	}
	if maxConcurrent > 1 {
		t.Fatalf("small batch should not fan out, saw concurrency %d", maxConcurrent)
	}
}

func TestConcurrentBatchLargePreservesOrder(t *testing.T) {
	texts := make([]string, 25)
	for i := range texts {
		texts[i] = string(rune('a' + i%26))
	}
	out, err := concurrentBatch(context.Background(), texts, 4, func(_ context.Context, s string) ([]float32, error) {
		return []float32{float32(s[0])}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range texts {
		if out[i][0] != float32(s[0]) {
			t.Fatalf("result %d out of order: want %v, got %v", i, s[0], out[i][0])
		}
	}
}

func TestConcurrentBatchPropagatesFirstError(t *testing.T) {
	texts := make([]string, 20)
	wantErr := errors.New("embed failed")
	_, err := concurrentBatch(context.Background(), texts, 4, func(context.Context, string) ([]float32, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("want %v, got %v", wantErr, err)
	}
}
