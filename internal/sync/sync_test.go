package sync

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/flexigpt/skillcore-go/internal/embedding"
	"github.com/flexigpt/skillcore-go/internal/index"
	"github.com/flexigpt/skillcore-go/internal/manifest"
)

const gitSkillMD = `---
name: git
description: Git repository operations
---
`

const statusScript = `#!/bin/sh
# description: Show git status
# keywords: git, status
git status
`

func setupRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "git", "scripts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "git", "SKILL.md"), []byte(gitSkillMD), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "status.sh"), []byte(statusScript), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return root
}

const docsSkillMD = `---
name: docs
description: Documentation lookup operations
---
`

const searchScript = `#!/bin/sh
# description: Search the docs tree
# keywords: docs, search
grep -r "$1" docs/
`

func addDocsSkill(t *testing.T, root string) {
	t.Helper()
	dir := filepath.Join(root, "docs", "scripts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "SKILL.md"), []byte(docsSkillMD), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "search.sh"), []byte(searchScript), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
}

func newEngine(t *testing.T, root string) (*Engine, *index.Index, *manifest.Store) {
	t.Helper()
	mf := manifest.New(filepath.Join(t.TempDir(), "manifest.json"))
	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"), 32)
	if err != nil {
		t.Fatalf("index.Open() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	embedder := embedding.NewFallback(32)
	return New(root, mf, idx, embedder), idx, mf
}

func TestSyncBootstrap(t *testing.T) {
	root := setupRoot(t)
	engine, idx, _ := newEngine(t, root)

	result, err := engine.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.Added != 1 || result.Modified != 0 || result.Deleted != 0 || result.Total != 1 {
		t.Fatalf("result = %+v", result)
	}
	n, err := idx.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("index count = %d, want 1", n)
	}
}

func TestSyncIsIdempotentOnStableFilesystem(t *testing.T) {
	root := setupRoot(t)
	engine, _, _ := newEngine(t, root)

	if _, err := engine.Sync(context.Background(), nil); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	result, err := engine.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if result.Added != 0 || result.Modified != 0 || result.Deleted != 0 {
		t.Fatalf("second sync result = %+v, want all zero", result)
	}
}

func TestSyncDetectsModification(t *testing.T) {
	root := setupRoot(t)
	engine, _, _ := newEngine(t, root)

	if _, err := engine.Sync(context.Background(), nil); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}

	modified := `#!/bin/sh
# description: List modified files in the repository
# keywords: git, status
git status
`
	scriptPath := filepath.Join(root, "git", "scripts", "status.sh")
	if err := os.WriteFile(scriptPath, []byte(modified), 0o755); err != nil {
		t.Fatalf("rewrite script: %v", err)
	}

	result, err := engine.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.Modified != 1 {
		t.Fatalf("result = %+v, want Modified=1", result)
	}
}

func TestSyncDeletePropagation(t *testing.T) {
	root := setupRoot(t)
	engine, idx, _ := newEngine(t, root)

	if _, err := engine.Sync(context.Background(), nil); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	if err := os.RemoveAll(filepath.Join(root, "git")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	result, err := engine.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.Deleted != 1 {
		t.Fatalf("result = %+v, want Deleted=1", result)
	}
	n, err := idx.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("index count = %d, want 0 after delete", n)
	}
}

func TestSyncScopedChangesetPreservesOtherSkills(t *testing.T) {
	root := setupRoot(t)
	addDocsSkill(t, root)
	engine, idx, _ := newEngine(t, root)

	if _, err := engine.Sync(context.Background(), nil); err != nil {
		t.Fatalf("bootstrap Sync() error = %v", err)
	}
	n, err := idx.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("index count after bootstrap = %d, want 2", n)
	}

	modified := `#!/bin/sh
# description: List modified files in the repository
# keywords: git, status
git status
`
	scriptPath := filepath.Join(root, "git", "scripts", "status.sh")
	if err := os.WriteFile(scriptPath, []byte(modified), 0o755); err != nil {
		t.Fatalf("rewrite script: %v", err)
	}

	rel, err := filepath.Rel(root, scriptPath)
	if err != nil {
		t.Fatalf("Rel() error = %v", err)
	}
	result, err := engine.Sync(context.Background(), []string{rel})
	if err != nil {
		t.Fatalf("scoped Sync() error = %v", err)
	}
	if result.Modified != 1 || result.Deleted != 0 {
		t.Fatalf("result = %+v, want Modified=1 Deleted=0", result)
	}

	n, err = idx.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("index count after scoped sync = %d, want 2 (docs skill must survive)", n)
	}
}

func TestExportSnapshot(t *testing.T) {
	root := setupRoot(t)
	engine, _, _ := newEngine(t, root)
	if _, err := engine.Sync(context.Background(), nil); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	var buf bytes.Buffer
	if err := engine.ExportSnapshot(&buf); err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected non-empty snapshot")
	}
}
