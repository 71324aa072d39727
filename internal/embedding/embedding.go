// Package embedding maps text to fixed-dimension unit vectors through a
// pluggable backend: a deterministic hash-based fallback, a remote HTTP
// service, or (behind the "onnx" build tag) a local ONNX model.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/flexigpt/skillcore-go/spec"
)

// Service is the embedding contract every backend implements. embed_batch
// is the hot path during indexing; callers should prefer it over repeated
// Embed calls.
type Service interface {
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// normalize L2-normalizes v in place and returns it, so cosine similarity
// reduces to a dot product downstream.
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// validateDimension is a hard invariant check: every vector produced by a
// Service must have exactly the service's declared dimension.
func validateDimension(v []float32, want int) error {
	if len(v) != want {
		return spec.NewError(spec.KindIndexConflict, "embedding.validateDimension",
			fmt.Errorf("vector has %d dims, service declares %d", len(v), want))
	}
	return nil
}
