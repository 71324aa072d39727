// Package config loads the environment-driven settings recognized by the
// skill registry and routing core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// EmbeddingBackend is the closed set of embedding service selections.
type EmbeddingBackend string

const (
	BackendLocal    EmbeddingBackend = "local"
	BackendRemote   EmbeddingBackend = "remote"
	BackendFallback EmbeddingBackend = "fallback"
)

// Config holds every environment-configurable knob named in the core's
// external interface. Zero values are filled in by FromEnv's defaults.
type Config struct {
	SkillsRoot     string
	QuarantineRoot string
	IndexDBPath    string
	ManifestPath   string

	EmbeddingBackend EmbeddingBackend
	EmbeddingDim     int
	RemoteEmbeddingURL string

	WatcherDebounce time.Duration
	SandboxTimeout  time.Duration
	RouterMinScore  float64
}

// Default returns the baseline configuration before environment overrides.
func Default() Config {
	return Config{
		EmbeddingBackend: BackendFallback,
		EmbeddingDim:     768,
		WatcherDebounce:  time.Second,
		SandboxTimeout:   10 * time.Second,
		RouterMinScore:   0.3,
	}
}

// FromEnv loads a Config from the process environment, applying Default()
// for anything unset. SKILLS_ROOT is the only required variable; its
// absence is returned as an error rather than defaulted, matching the
// core's external-interface contract.
func FromEnv() (Config, error) {
	cfg := Default()

	root := os.Getenv("SKILLS_ROOT")
	if root == "" {
		return Config{}, fmt.Errorf("config: SKILLS_ROOT is required")
	}
	cfg.SkillsRoot = root

	cfg.QuarantineRoot = os.Getenv("QUARANTINE_ROOT")
	if cfg.QuarantineRoot == "" {
		cfg.QuarantineRoot = filepath.Join(filepath.Dir(root), "quarantine")
	}

	cfg.IndexDBPath = os.Getenv("INDEX_DB_PATH")
	if cfg.IndexDBPath == "" {
		cfg.IndexDBPath = filepath.Join(filepath.Dir(root), "skillcore-index.db")
	}

	cfg.ManifestPath = os.Getenv("MANIFEST_PATH")
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = filepath.Join(filepath.Dir(root), "skillcore-manifest.json")
	}

	cfg.RemoteEmbeddingURL = os.Getenv("REMOTE_EMBEDDING_URL")

	if v := os.Getenv("EMBEDDING_BACKEND"); v != "" {
		switch EmbeddingBackend(v) {
		case BackendLocal, BackendRemote, BackendFallback:
			cfg.EmbeddingBackend = EmbeddingBackend(v)
		default:
			return Config{}, fmt.Errorf("config: unsupported EMBEDDING_BACKEND %q", v)
		}
	}

	if v := os.Getenv("EMBEDDING_DIM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: invalid EMBEDDING_DIM %q", v)
		}
		cfg.EmbeddingDim = n
	}

	if v := os.Getenv("WATCHER_DEBOUNCE_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("config: invalid WATCHER_DEBOUNCE_MS %q", v)
		}
		cfg.WatcherDebounce = time.Duration(n) * time.Millisecond
	}

	if v := os.Getenv("SANDBOX_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("config: invalid SANDBOX_TIMEOUT_MS %q", v)
		}
		cfg.SandboxTimeout = time.Duration(n) * time.Millisecond
	}

	if v := os.Getenv("ROUTER_MIN_SCORE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return Config{}, fmt.Errorf("config: invalid ROUTER_MIN_SCORE %q", v)
		}
		cfg.RouterMinScore = f
	}

	return cfg, nil
}
