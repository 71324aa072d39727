// Package sync drives the Sync Engine: diffing the filesystem against the
// manifest, then scanning, embedding, and indexing the minimal mutation
// set inside one committed transaction.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flexigpt/skillcore-go/internal/embedding"
	"github.com/flexigpt/skillcore-go/internal/index"
	"github.com/flexigpt/skillcore-go/internal/manifest"
	"github.com/flexigpt/skillcore-go/internal/scanner"
	"github.com/flexigpt/skillcore-go/spec"
)

// Invalidator is notified after a successful commit so caches downstream of
// the index (the router's result cache) can be dropped.
type Invalidator interface {
	InvalidateAll()
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithInvalidator registers a cache invalidator to notify after commit.
func WithInvalidator(inv Invalidator) Option {
	return func(e *Engine) { e.invalidator = inv }
}

// Engine is the Sync Engine. It is the sole owner of the Manifest and
// drives the Index's mutations; the Router only ever reads the index.
type Engine struct {
	root        string
	manifest    *manifest.Store
	index       *index.Index
	embedder    embedding.Service
	logger      *slog.Logger
	invalidator Invalidator
}

// New builds an Engine rooted at root, backed by mf and idx, embedding new
// content through embedder.
func New(root string, mf *manifest.Store, idx *index.Index, embedder embedding.Service, opts ...Option) *Engine {
	e := &Engine{
		root:     root,
		manifest: mf,
		index:    idx,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync runs one incremental sync. changeset, when non-empty, restricts the
// scan to skill directories touched by one of the given paths; an empty
// changeset scans the whole root.
func (e *Engine) Sync(ctx context.Context, changeset []string) (spec.SyncResult, error) {
	return e.run(ctx, changeset, false)
}

// Reindex drops the index and rebuilds it from a full scan: the "[Heavy]
// reindex" path, as opposed to Sync's "[Fast]" incremental diff.
func (e *Engine) Reindex(ctx context.Context) (spec.SyncResult, error) {
	if err := e.index.Drop(); err != nil {
		return spec.SyncResult{}, spec.NewError(spec.KindSyncAborted, "sync.Reindex", err)
	}
	return e.run(ctx, nil, true)
}

// scopePrefixes derives the set of skill-directory prefixes (each ending in
// a path separator) touched by changeset, for restricting deletion
// detection to the directories a scoped sync actually scanned. changeset
// entries must already be relative to the skills root.
func scopePrefixes(changeset []string) []string {
	seen := make(map[string]bool)
	var prefixes []string
	for _, p := range changeset {
		p = filepath.Clean(p)
		first := strings.SplitN(p, string(filepath.Separator), 2)[0]
		if first == "" || first == "." {
			continue
		}
		prefix := first + string(filepath.Separator)
		if !seen[prefix] {
			seen[prefix] = true
			prefixes = append(prefixes, prefix)
		}
	}
	return prefixes
}

func (e *Engine) run(ctx context.Context, changeset []string, clean bool) (spec.SyncResult, error) {
	start := time.Now()

	if _, err := e.manifest.Load(); err != nil {
		return spec.SyncResult{}, spec.NewError(spec.KindSyncAborted, "sync.run", err)
	}

	res, err := scanner.Scan(e.root, changeset)
	if err != nil {
		return spec.SyncResult{}, spec.NewError(spec.KindSyncAborted, "sync.run", err)
	}

	current := make(map[string]string)
	toolsByPath := make(map[string][]spec.Tool)
	for _, sk := range res.Skills {
		for _, tool := range sk.Tools {
			rel, relErr := filepath.Rel(e.root, tool.SourcePath)
			if relErr != nil {
				rel = tool.SourcePath
			}
			current[rel] = tool.ContentHash
			toolsByPath[rel] = append(toolsByPath[rel], tool)
		}
	}

	var diff manifest.Diff
	switch {
	case clean:
		for path := range current {
			diff.Added = append(diff.Added, path)
		}
	case len(changeset) > 0:
		// A scoped sync only scans the touched skill directories, so
		// `current` holds just their paths. Deletion detection must be
		// scoped to those same directories too, or every manifest path
		// outside the changeset looks deleted.
		diff = e.manifest.DiffScoped(current, scopePrefixes(changeset))
	default:
		diff = e.manifest.Diff(current)
	}

	// Deletes precede inserts so a file whose tool count shrinks never
	// leaves a stale tool-id behind.
	deletedPaths := append([]string(nil), diff.Deleted...)
	for _, path := range deletedPaths {
		if _, err := e.index.DeleteBySource(path); err != nil {
			return spec.SyncResult{}, spec.NewError(spec.KindSyncAborted, "sync.run", err)
		}
	}

	touched := append(append([]string(nil), diff.Added...), diff.Modified...)
	for _, path := range touched {
		if _, err := e.index.DeleteBySource(path); err != nil {
			return spec.SyncResult{}, spec.NewError(spec.KindSyncAborted, "sync.run", err)
		}
	}

	var descriptions []string
	var tools []spec.Tool
	for _, path := range touched {
		for _, tool := range toolsByPath[path] {
			descriptions = append(descriptions, tool.Description)
			tools = append(tools, tool)
		}
	}

	if len(tools) > 0 {
		vectors, err := e.embedder.EmbedBatch(ctx, descriptions)
		if err != nil {
			return spec.SyncResult{}, spec.NewError(spec.KindSyncAborted, "sync.run", err)
		}
		for i, tool := range tools {
			rel, relErr := filepath.Rel(e.root, tool.SourcePath)
			if relErr != nil {
				rel = tool.SourcePath
			}
			entry := spec.IndexEntry{
				ID:          tool.ID(),
				Content:     tool.Description,
				Vector:      vectors[i],
				SourcePath:  rel,
				ContentHash: tool.ContentHash,
				Keywords:    tool.Keywords,
				Tool:        tool,
			}
			if err := e.index.Upsert(entry); err != nil {
				return spec.SyncResult{}, spec.NewError(spec.KindSyncAborted, "sync.run", err)
			}
		}
	}

	updates := make(map[string]string, len(touched))
	for _, path := range touched {
		updates[path] = current[path]
	}
	if err := e.manifest.Commit(updates, diff.Deleted); err != nil {
		return spec.SyncResult{}, spec.NewError(spec.KindSyncAborted, "sync.run", err)
	}

	if e.invalidator != nil {
		e.invalidator.InvalidateAll()
	}

	result := spec.SyncResult{
		Added:        len(diff.Added),
		Modified:     len(diff.Modified),
		Deleted:      len(diff.Deleted),
		Total:        len(current),
		Duration:     time.Since(start),
		SkippedFiles: res.Skipped,
	}
	e.logger.Info("sync complete", "added", result.Added, "modified", result.Modified, "deleted", result.Deleted, "total", result.Total)
	return result, nil
}

// ExportSnapshot dumps the current index's manifest-backed view as JSON for
// external tooling, grounded on the original CLI's index export command.
func (e *Engine) ExportSnapshot(w interface{ Write([]byte) (int, error) }) error {
	m, err := e.manifest.Load()
	if err != nil {
		return spec.NewError(spec.KindInternal, "sync.ExportSnapshot", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// ExportSnapshotToFile writes ExportSnapshot's output to path.
func (e *Engine) ExportSnapshotToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return spec.NewError(spec.KindInternal, "sync.ExportSnapshotToFile", err)
	}
	defer f.Close()
	if err := e.ExportSnapshot(f); err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	return nil
}
