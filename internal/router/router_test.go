package router

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/flexigpt/skillcore-go/internal/embedding"
	"github.com/flexigpt/skillcore-go/internal/feedback"
	"github.com/flexigpt/skillcore-go/internal/index"
	"github.com/flexigpt/skillcore-go/spec"
)

func newTestRouter(t *testing.T, dim int) (*Router, *index.Index, embedding.Service) {
	t.Helper()
	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"), dim)
	if err != nil {
		t.Fatalf("index.Open() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	embedder := embedding.NewFallback(dim)
	r := New(idx, embedder, feedback.New(), WithMinScore(0))
	return r, idx, embedder
}

func upsertTool(t *testing.T, idx *index.Index, embedder embedding.Service, tool spec.Tool) {
	t.Helper()
	vec, err := embedder.Embed(context.Background(), tool.Description)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	err = idx.Upsert(spec.IndexEntry{
		ID:       tool.ID(),
		Content:  tool.Description,
		Vector:   vec,
		Keywords: tool.Keywords,
		Tool:     tool,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func TestRouteBootstrap(t *testing.T) {
	r, idx, embedder := newTestRouter(t, 32)
	upsertTool(t, idx, embedder, spec.Tool{
		SkillName:   "git",
		Name:        "status",
		Description: "Show git status",
		Keywords:    []string{"git", "status"},
	})

	got, err := r.Route(context.Background(), spec.Query{Text: "what's changed in the repo", K: 3})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "git.status" {
		t.Fatalf("Route() = %+v", got)
	}
}

func TestRouteDifferentKDoesNotShareCacheEntry(t *testing.T) {
	r, idx, embedder := newTestRouter(t, 32)
	for _, name := range []string{"status", "log", "diff", "blame", "stash", "bisect"} {
		upsertTool(t, idx, embedder, spec.Tool{
			SkillName:   "git",
			Name:        name,
			Description: "git " + name + " operation over the repository",
			Keywords:    []string{"git", name},
		})
	}

	small, err := r.Route(context.Background(), spec.Query{Text: "repository operation", K: 3})
	if err != nil {
		t.Fatalf("Route(k=3) error = %v", err)
	}
	if len(small) != 3 {
		t.Fatalf("Route(k=3) returned %d results, want 3", len(small))
	}

	large, err := r.Route(context.Background(), spec.Query{Text: "repository operation", K: 6})
	if err != nil {
		t.Fatalf("Route(k=6) error = %v", err)
	}
	if len(large) != 6 {
		t.Fatalf("Route(k=6) returned %d results, want 6 (got a cached k=3 result instead)", len(large))
	}
}

func TestRouteEmptyIndexReturnsEmptyNotError(t *testing.T) {
	r, _, _ := newTestRouter(t, 16)
	got, err := r.Route(context.Background(), spec.Query{Text: "anything"})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Route() = %+v, want empty", got)
	}
}

func TestRouteRejectsEmptyQuery(t *testing.T) {
	r, _, _ := newTestRouter(t, 16)
	_, err := r.Route(context.Background(), spec.Query{Text: "  "})
	if spec.KindOf(err) != spec.KindInputValidation {
		t.Fatalf("kind = %v, want InputValidation", spec.KindOf(err))
	}
}

func TestRouteHybridBoostPrefersExplicitKeywordMatch(t *testing.T) {
	r, idx, embedder := newTestRouter(t, 32)
	upsertTool(t, idx, embedder, spec.Tool{
		SkillName: "git", Name: "commit",
		Description: "Create a commit",
		Keywords:    []string{"git", "commit"},
	})
	upsertTool(t, idx, embedder, spec.Tool{
		SkillName: "writer", Name: "draft",
		Description: "Write a commit message draft",
		Keywords:    []string{"writer", "prose"},
	})

	got, err := r.Route(context.Background(), spec.Query{
		Text:     "commit my changes",
		Keywords: []string{"git", "commit"},
		K:        2,
	})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if len(got) == 0 || got[0].ID != "git.commit" {
		t.Fatalf("Route() = %+v, want git.commit first", got)
	}
}

func TestRouteTwoCallsIdentical(t *testing.T) {
	r, idx, embedder := newTestRouter(t, 16)
	upsertTool(t, idx, embedder, spec.Tool{SkillName: "git", Name: "status", Description: "Show git status", Keywords: []string{"git"}})

	q := spec.Query{Text: "git status", K: 3}
	first, err := r.Route(context.Background(), q)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	second, err := r.Route(context.Background(), q)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if len(first) != len(second) || (len(first) > 0 && first[0].ID != second[0].ID) {
		t.Fatalf("back-to-back calls differ: %+v vs %+v", first, second)
	}
}

func TestRecordFeedbackInvalidatesCache(t *testing.T) {
	r, idx, embedder := newTestRouter(t, 16)
	upsertTool(t, idx, embedder, spec.Tool{SkillName: "git", Name: "status", Description: "Show git status", Keywords: []string{"git"}})

	q := spec.Query{Text: "git status"}
	if _, err := r.Route(context.Background(), q); err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	r.RecordFeedback(q, "git.status", spec.FeedbackPositive)

	r.cacheMu.Lock()
	n := len(r.cache)
	r.cacheMu.Unlock()
	if n != 0 {
		t.Fatalf("cache not invalidated after feedback, has %d entries", n)
	}
}
