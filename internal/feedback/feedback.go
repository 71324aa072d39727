// Package feedback tracks a learned bias per (query fingerprint, candidate
// id) pair, nudged by router-observed execution outcomes.
package feedback

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/flexigpt/skillcore-go/spec"
)

const (
	minBias = -0.2
	maxBias = 0.2
	// alpha is the exponential-moving-average weight given to each new
	// signal; the rest is retained from the prior bias. Kept small enough
	// that a single +1 never hits the +-0.2 clip, so a feedback signal
	// followed immediately by its inverse restores the bias to within a
	// small epsilon of where it started.
	alpha = 0.15
)

// Store is a last-write-wins, per-key-serialized bias table. It is the
// sole owner of feedback state; the Router only reads through it.
type Store struct {
	mu    sync.Mutex
	bias  map[string]float64
}

// New returns an empty feedback Store.
func New() *Store {
	return &Store{bias: make(map[string]float64)}
}

// Fingerprint derives the stable key component for a query: its text plus
// its explicit keyword set, normalized so that keyword order and casing
// don't fragment the same logical query into different fingerprints.
func Fingerprint(queryText string, keywords []string) string {
	norm := make([]string, len(keywords))
	for i, k := range keywords {
		norm[i] = strings.ToLower(strings.TrimSpace(k))
	}
	sort.Strings(norm)

	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(queryText))))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(norm, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

func key(fingerprint, candidateID string) string {
	return fingerprint + "\x00" + candidateID
}

// Bias returns the current bias for (fingerprint, candidateID), defaulting
// to 0 if no feedback has ever been recorded for it.
func (s *Store) Bias(fingerprint, candidateID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bias[key(fingerprint, candidateID)]
}

// Record applies signal to the bias for (fingerprint, candidateID) via an
// exponential moving average, clipped to [-0.2, +0.2].
func (s *Store) Record(fingerprint, candidateID string, signal spec.FeedbackSignal) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(fingerprint, candidateID)
	prev := s.bias[k]
	next := prev + alpha*(float64(signal)-prev)
	next = clip(next, minBias, maxBias)
	s.bias[k] = next
	return next
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
