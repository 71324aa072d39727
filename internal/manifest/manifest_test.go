package manifest

import (
	"path/filepath"
	"testing"
)

func TestStoreLoadEmpty(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "manifest.json"))

	m, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty manifest, got %v", m)
	}
}

func TestStoreCommitAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	s := New(path)

	if _, err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Commit(map[string]string{"git/scripts/status.sh": "abc123"}, nil); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	reloaded := New(path)
	m, err := reloaded.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m["git/scripts/status.sh"] != "abc123" {
		t.Fatalf("reloaded manifest = %v", m)
	}
}

func TestStoreDiff(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "manifest.json"))
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Commit(map[string]string{
		"a": "h1",
		"b": "h2",
	}, nil); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	d := s.Diff(map[string]string{
		"a": "h1",      // unchanged
		"b": "h2-new",  // modified
		"c": "h3",      // added
	})

	if len(d.Added) != 1 || d.Added[0] != "c" {
		t.Fatalf("Added = %v", d.Added)
	}
	if len(d.Modified) != 1 || d.Modified[0] != "b" {
		t.Fatalf("Modified = %v", d.Modified)
	}
	if len(d.Deleted) != 0 {
		t.Fatalf("Deleted = %v", d.Deleted)
	}
}

func TestStoreDiffDeleted(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "manifest.json"))
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Commit(map[string]string{"a": "h1"}, nil); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	d := s.Diff(map[string]string{})
	if len(d.Deleted) != 1 || d.Deleted[0] != "a" {
		t.Fatalf("Deleted = %v", d.Deleted)
	}
}

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("same content"))
	b := HashBytes([]byte("same content"))
	if a != b {
		t.Fatalf("HashBytes not deterministic: %q vs %q", a, b)
	}
	c := HashBytes([]byte("different content"))
	if a == c {
		t.Fatalf("HashBytes collided on distinct input")
	}
}
