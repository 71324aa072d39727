package embedding

import (
	"context"
	"math"
	"testing"
)

func TestFallbackDeterministic(t *testing.T) {
	svc := NewFallback(64)
	ctx := context.Background()

	a, err := svc.Embed(ctx, "show git status")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := svc.Embed(ctx, "show git status")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("len(a) = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("fallback embedding is not deterministic at index %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestFallbackUnitNorm(t *testing.T) {
	svc := NewFallback(32)
	v, err := svc.Embed(context.Background(), "arbitrary text")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) > 1e-3 {
		t.Fatalf("norm = %v, want ~1.0", norm)
	}
}

func TestFallbackBatch(t *testing.T) {
	svc := NewFallback(16)
	vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len(vecs) = %d, want 3", len(vecs))
	}
}
