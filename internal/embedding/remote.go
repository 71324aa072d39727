package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flexigpt/skillcore-go/spec"
)

// RemoteService calls a co-located HTTP embedding service. No
// remote-embedding client library exists anywhere in the retrieved
// example corpus, so this is built directly on net/http (see DESIGN.md).
type RemoteService struct {
	endpoint string
	dim      int
	timeout  time.Duration
	client   *http.Client
}

// RemoteOption configures a RemoteService.
type RemoteOption func(*RemoteService)

// WithHTTPClient overrides the default http.Client (e.g. for test doubles).
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *RemoteService) { r.client = c }
}

// NewRemote returns a RemoteService posting to endpoint, enforcing timeout
// per request as the per-call embedding deadline.
func NewRemote(endpoint string, dim int, timeout time.Duration, opts ...RemoteOption) *RemoteService {
	r := &RemoteService{
		endpoint: endpoint,
		dim:      dim,
		timeout:  timeout,
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RemoteService) Dimension() int { return r.dim }

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

func (r *RemoteService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (r *RemoteService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, spec.NewError(spec.KindInternal, "embedding.RemoteService.EmbedBatch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, spec.NewError(spec.KindInternal, "embedding.RemoteService.EmbedBatch", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.RemoteService.EmbedBatch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.RemoteService.EmbedBatch",
			fmt.Errorf("remote embedding service returned status %d", resp.StatusCode))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.RemoteService.EmbedBatch", err)
	}
	if len(out.Vectors) != len(texts) {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.RemoteService.EmbedBatch",
			fmt.Errorf("expected %d vectors, got %d", len(texts), len(out.Vectors)))
	}
	for i, v := range out.Vectors {
		if err := validateDimension(v, r.dim); err != nil {
			return nil, err
		}
		out.Vectors[i] = normalize(v)
	}
	return out.Vectors, nil
}
