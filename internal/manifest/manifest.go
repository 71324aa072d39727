// Package manifest persists the file->content-hash map the Sync Engine
// diffs the filesystem against, and commits updates atomically.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flexigpt/skillcore-go/spec"
)

// Diff is the three-way split produced by comparing a manifest snapshot
// against the current set of on-disk files.
type Diff struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Store owns the on-disk manifest file and serializes commits to it.
// Reads (Load) never block on a concurrent commit beyond the mutex's own
// critical section; the previous manifest remains valid if a commit is
// interrupted before the final rename.
type Store struct {
	path string

	mu       sync.RWMutex
	snapshot spec.Manifest
}

// New returns a Store backed by path. The manifest is not loaded from disk
// until Load is called.
func New(path string) *Store {
	return &Store{path: path, snapshot: spec.Manifest{}}
}

// Load reads the last committed manifest from disk, or returns an empty
// map if no manifest has ever been committed.
func (s *Store) Load() (spec.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.snapshot = spec.Manifest{}
			return cloneManifest(s.snapshot), nil
		}
		return nil, spec.NewError(spec.KindInternal, "manifest.Load", err)
	}

	m := spec.Manifest{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, spec.NewError(spec.KindInternal, "manifest.Load", fmt.Errorf("corrupt manifest: %w", err))
		}
	}
	s.snapshot = m
	return cloneManifest(m), nil
}

// Diff compares currentFiles (relative path -> content hash) against the
// last loaded snapshot. Every snapshot path absent from currentFiles is
// treated as deleted, so currentFiles must reflect a scan of the whole
// root; for a scan restricted to a subset of directories, use DiffScoped.
func (s *Store) Diff(currentFiles map[string]string) Diff {
	return s.DiffScoped(currentFiles, nil)
}

// DiffScoped behaves like Diff, but only considers a snapshot path deleted
// when it also falls under one of scopePrefixes (each a path prefix ending
// in a path separator). A nil scopePrefixes considers every snapshot path,
// matching Diff's whole-root behavior.
//
// This is what makes a changeset-scoped sync safe: currentFiles only holds
// paths from the touched skill directories, so without scoping, every
// manifest path outside the changeset would look deleted.
func (s *Store) DiffScoped(currentFiles map[string]string, scopePrefixes []string) Diff {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d Diff
	for path, hash := range currentFiles {
		prev, ok := s.snapshot[path]
		switch {
		case !ok:
			d.Added = append(d.Added, path)
		case prev != hash:
			d.Modified = append(d.Modified, path)
		}
	}
	for path := range s.snapshot {
		if _, ok := currentFiles[path]; ok {
			continue
		}
		if scopePrefixes != nil && !underAnyPrefix(path, scopePrefixes) {
			continue
		}
		d.Deleted = append(d.Deleted, path)
	}
	return d
}

func underAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Commit replaces the on-disk manifest atomically: updates are merged in,
// deletions are removed, and the result is written to a temp file and
// renamed over the target so a crash mid-write never corrupts the
// previous, still-valid manifest.
func (s *Store) Commit(updates map[string]string, deletions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneManifest(s.snapshot)
	for path, hash := range updates {
		next[path] = hash
	}
	for _, path := range deletions {
		delete(next, path)
	}

	if err := writeAtomic(s.path, next); err != nil {
		return spec.NewError(spec.KindInternal, "manifest.Commit", err)
	}
	s.snapshot = next
	return nil
}

func writeAtomic(path string, m spec.Manifest) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func cloneManifest(m spec.Manifest) spec.Manifest {
	out := make(spec.Manifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// HashFile computes the content hash used throughout the manifest and
// index: sha256, hex-encoded. The function is fixed per installation;
// switching it invalidates every existing manifest and index entry.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes is HashFile's in-memory counterpart, used when the scanner
// already holds the file's bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
