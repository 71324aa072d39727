// Package skillcore wires the Skill Discovery & Indexing, Hybrid Semantic
// Router, Live-Wire Watcher, and Immune System components into the four
// operations an embedding host drives: route, sync, submit candidate, and
// record feedback.
package skillcore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flexigpt/skillcore-go/internal/config"
	"github.com/flexigpt/skillcore-go/internal/embedding"
	"github.com/flexigpt/skillcore-go/internal/feedback"
	"github.com/flexigpt/skillcore-go/internal/immune"
	"github.com/flexigpt/skillcore-go/internal/index"
	"github.com/flexigpt/skillcore-go/internal/manifest"
	"github.com/flexigpt/skillcore-go/internal/router"
	"github.com/flexigpt/skillcore-go/internal/sandbox"
	syncengine "github.com/flexigpt/skillcore-go/internal/sync"
	"github.com/flexigpt/skillcore-go/internal/validator"
	"github.com/flexigpt/skillcore-go/internal/watcher"
	"github.com/flexigpt/skillcore-go/spec"
)

// Registry is the assembled core: every component wired together per
// config.Config, exposing the four query-surface operations.
type Registry struct {
	cfg config.Config

	manifest *manifest.Store
	index    *index.Index
	embedder embedding.Service
	feedback *feedback.Store
	router   *router.Router
	sync     *syncengine.Engine
	watcher  *watcher.Watcher
	immune   *immune.Controller

	logger *slog.Logger
}

// Open assembles a Registry from cfg. The caller is responsible for calling
// Close when done.
func Open(cfg config.Config, opts ...Option) (*Registry, error) {
	reg := &Registry{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(reg)
	}

	reg.manifest = manifest.New(cfg.ManifestPath)

	idx, err := index.Open(cfg.IndexDBPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("skillcore: open index: %w", err)
	}
	reg.index = idx

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("skillcore: build embedder: %w", err)
	}
	reg.embedder = embedder

	reg.feedback = feedback.New()
	reg.router = router.New(reg.index, reg.embedder, reg.feedback,
		router.WithLogger(reg.logger),
		router.WithMinScore(cfg.RouterMinScore),
	)

	reg.sync = syncengine.New(cfg.SkillsRoot, reg.manifest, reg.index, reg.embedder,
		syncengine.WithLogger(reg.logger),
		syncengine.WithInvalidator(reg.router),
	)

	sb := sandbox.New(sandbox.WithTimeout(cfg.SandboxTimeout))
	reg.immune = immune.New(cfg.QuarantineRoot, cfg.SkillsRoot, sb, reg.sync, immune.WithLogger(reg.logger))

	var fv validator.FileValidator
	reg.watcher = watcher.New(cfg.SkillsRoot, reg.sync,
		watcher.WithLogger(reg.logger),
		watcher.WithDebounce(cfg.WatcherDebounce),
		watcher.WithValidator(fv),
	)

	return reg, nil
}

// Option configures a Registry during Open.
type Option func(*Registry)

// WithLogger overrides every component's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func buildEmbedder(cfg config.Config) (embedding.Service, error) {
	var inner embedding.Service
	switch cfg.EmbeddingBackend {
	case config.BackendRemote:
		if cfg.RemoteEmbeddingURL == "" {
			return nil, fmt.Errorf("REMOTE_EMBEDDING_URL is required for the remote embedding backend")
		}
		inner = embedding.NewRemote(cfg.RemoteEmbeddingURL, cfg.EmbeddingDim, 10*time.Second)
	case config.BackendLocal:
		return nil, fmt.Errorf("local embedding backend requires the onnx build tag; rebuild with -tags onnx,cgo")
	default:
		inner = embedding.NewFallback(cfg.EmbeddingDim)
	}

	sig := embedding.Signature{
		Provider:   string(cfg.EmbeddingBackend),
		Dimension:  cfg.EmbeddingDim,
		Truncation: 512,
	}
	return embedding.NewCached(inner, sig, 1024), nil
}

// Bootstrap runs an initial full sync so the index reflects the skills root
// before the watcher takes over incremental maintenance.
func (r *Registry) Bootstrap(ctx context.Context) (spec.SyncResult, error) {
	return r.sync.Sync(ctx, nil)
}

// StartWatching begins the Live-Wire Watcher's event loop.
func (r *Registry) StartWatching(ctx context.Context) error {
	return r.watcher.Start(ctx)
}

// StopWatching halts the Live-Wire Watcher.
func (r *Registry) StopWatching() {
	r.watcher.Stop()
}

// Route answers one routing query against the current index.
func (r *Registry) Route(ctx context.Context, q spec.Query) ([]spec.RankedCandidate, error) {
	return r.router.Route(ctx, q)
}

// Sync runs one incremental sync, restricted to changeset when non-empty.
func (r *Registry) Sync(ctx context.Context, changeset []string) (spec.SyncResult, error) {
	return r.sync.Sync(ctx, changeset)
}

// Reindex drops and fully rebuilds the index.
func (r *Registry) Reindex(ctx context.Context) (spec.SyncResult, error) {
	return r.sync.Reindex(ctx)
}

// SubmitCandidate runs a quarantined skill through the Immune System's
// admission pipeline, promoting it into the skills root on success.
func (r *Registry) SubmitCandidate(ctx context.Context, skillName string) (spec.ImmuneReport, error) {
	return r.immune.SubmitCandidate(ctx, skillName)
}

// RecordFeedback applies a routing feedback signal for candidateID under
// the query fingerprint derived from q.
func (r *Registry) RecordFeedback(q spec.Query, candidateID string, signal spec.FeedbackSignal) {
	r.router.RecordFeedback(q, candidateID, signal)
}

// Close releases the index's underlying database handle. The watcher, if
// started, should be stopped before calling Close.
func (r *Registry) Close() error {
	return r.index.Close()
}
