package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// FallbackService is a deterministic hash-based pseudo-embedding. It shares
// the Service interface with real backends but must never be mixed into
// the same index as one: its vectors carry no semantic content, only a
// stable per-text fingerprint useful for tests and degraded environments.
type FallbackService struct {
	dim int
}

// NewFallback returns a FallbackService producing unit vectors of dim
// dimensions.
func NewFallback(dim int) *FallbackService {
	if dim <= 0 {
		dim = 768
	}
	return &FallbackService{dim: dim}
}

func (s *FallbackService) Dimension() int { return s.dim }

func (s *FallbackService) Embed(_ context.Context, text string) ([]float32, error) {
	return normalize(hashVector(text, s.dim)), nil
}

func (s *FallbackService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// hashVector expands repeated sha256 digests of text into dim float32
// lanes, giving a stable, cheap, content-sensitive vector.
func hashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	block := 0
	var digest [32]byte
	for i := 0; i < dim; i++ {
		lane := i % 8
		if lane == 0 {
			digest = sha256.Sum256([]byte{byte(block), byte(block >> 8)})
			digest = sha256.Sum256(append(digest[:], text...))
			block++
		}
		bits := binary.BigEndian.Uint32(digest[lane*4 : lane*4+4])
		// Map to [-1, 1).
		v[i] = float32(int32(bits))/float32(1<<31)
	}
	return v
}
