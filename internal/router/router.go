// Package router implements the hybrid semantic ranking algorithm: vector
// similarity fused with keyword boosts and learned feedback bias, behind a
// TTL'd result cache.
package router

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flexigpt/skillcore-go/internal/embedding"
	"github.com/flexigpt/skillcore-go/internal/feedback"
	"github.com/flexigpt/skillcore-go/internal/index"
	"github.com/flexigpt/skillcore-go/spec"
)

const (
	defaultK           = 5
	oversampleFactor   = 2
	keywordBonusPerHit = 0.1
	keywordBonusCap    = 0.3
	verbBonus          = 0.05
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "in": true,
	"on": true, "for": true, "and": true, "or": true, "is": true, "my": true,
	"what's": true, "whats": true, "it": true, "with": true,
}

// Option configures a Router.
type Option func(*Router)

// WithLogger overrides the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMinScore overrides the default minimum composite score floor.
func WithMinScore(min float64) Option {
	return func(r *Router) { r.minScore = min }
}

// WithCacheTTL overrides the result cache's time-to-live.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Router) { r.cacheTTL = ttl }
}

// WithCacheSize overrides the result cache's maximum entry count.
func WithCacheSize(n int) Option {
	return func(r *Router) { r.cacheSize = n }
}

// Router fuses the Vector + Keyword Index with a feedback store into a
// ranked candidate list. The Router never mutates the index; it holds only
// read-snapshots.
type Router struct {
	idx       *index.Index
	embedder  embedding.Service
	feedback  *feedback.Store
	logger    *slog.Logger
	minScore  float64
	cacheTTL  time.Duration
	cacheSize int

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	result    []spec.RankedCandidate
	expiresAt time.Time
}

// New builds a Router over idx and embedder, using store for feedback
// bias lookups and recordings.
func New(idx *index.Index, embedder embedding.Service, store *feedback.Store, opts ...Option) *Router {
	r := &Router{
		idx:       idx,
		embedder:  embedder,
		feedback:  store,
		logger:    slog.Default(),
		minScore:  0.3,
		cacheTTL:  5 * time.Minute,
		cacheSize: 256,
		cache:     make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route translates q into a ranked candidate list. A NotFound error from
// the underlying index (empty table, bootstrap state) is swallowed into an
// empty result, per the propagation policy; every other error kind
// surfaces with its kind preserved.
func (r *Router) Route(ctx context.Context, q spec.Query) ([]spec.RankedCandidate, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, spec.NewError(spec.KindInputValidation, "router.Route", errors.New("query text must not be empty"))
	}
	if q.K < 0 {
		return nil, spec.NewError(spec.KindInputValidation, "router.Route", errors.New("k must not be negative"))
	}

	k := q.K
	if k == 0 {
		k = defaultK
	}
	minScore := r.minScore
	if q.MinScore != nil {
		minScore = *q.MinScore
	}

	keywords := mergeKeywords(q.Keywords, extractKeywords(q.Text))
	cacheKey := buildCacheKey(q.Domain, q.Text, keywords, k, minScore)

	if cached, ok := r.cacheGet(cacheKey); ok {
		return cached, nil
	}

	vec, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "router.Route", err)
	}

	hits, err := r.idx.SearchHybrid(vec, keywords, k*oversampleFactor)
	if err != nil {
		if spec.KindOf(err) == spec.KindNotFound {
			return []spec.RankedCandidate{}, nil
		}
		return nil, err
	}

	kwSet := toSet(keywords)
	candidates := make([]spec.RankedCandidate, 0, len(hits))
	for _, h := range hits {
		sim := 1 / (1 + h.Distance)
		kwBonus := keywordBonus(h.Entry.Keywords, kwSet)
		vBonus := verbBonusFor(h.Entry.Tool.Name, kwSet)
		fp := feedback.Fingerprint(q.Text, keywords)
		fb := r.feedback.Bias(fp, h.Entry.ID)

		composite := clip(sim+kwBonus+vBonus+fb, 0, 1)
		candidates = append(candidates, spec.RankedCandidate{
			ID:           h.Entry.ID,
			Score:        composite,
			Similarity:   sim,
			KeywordBonus: kwBonus,
			VerbBonus:    vBonus,
			Feedback:     fb,
			Tool:         h.Entry.Tool,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Similarity > candidates[j].Similarity
	})

	filtered := candidates[:0]
	for _, c := range candidates {
		if c.Score >= minScore {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) > k {
		filtered = filtered[:k]
	}

	out := append([]spec.RankedCandidate(nil), filtered...)
	r.cacheSet(cacheKey, out)
	return out, nil
}

// RecordFeedback updates the bias for (query, candidateID) and invalidates
// any cached result for that query, since its ranking may now differ.
func (r *Router) RecordFeedback(q spec.Query, candidateID string, signal spec.FeedbackSignal) {
	keywords := mergeKeywords(q.Keywords, extractKeywords(q.Text))
	fp := feedback.Fingerprint(q.Text, keywords)
	r.feedback.Record(fp, candidateID, signal)
	r.invalidateQuery(q.Text)
}

// InvalidateAll drops every cached result. Called by the sync engine after
// any index-mutating commit.
func (r *Router) InvalidateAll() {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cache = make(map[string]cacheEntry)
}

func (r *Router) invalidateQuery(text string) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	prefix := strings.ToLower(strings.TrimSpace(text)) + "\x00"
	for k := range r.cache {
		if strings.HasPrefix(k, prefix) {
			delete(r.cache, k)
		}
	}
}

func (r *Router) cacheGet(key string) ([]spec.RankedCandidate, bool) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	e, ok := r.cache[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.result, true
}

func (r *Router) cacheSet(key string, result []spec.RankedCandidate) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if len(r.cache) >= r.cacheSize {
		for k := range r.cache {
			delete(r.cache, k)
			break
		}
	}
	r.cache[key] = cacheEntry{result: result, expiresAt: time.Now().Add(r.cacheTTL)}
}

func buildCacheKey(domain, text string, keywords []string, k int, minScore float64) string {
	sorted := append([]string(nil), keywords...)
	sort.Strings(sorted)
	return strings.ToLower(strings.TrimSpace(text)) + "\x00" + domain + "\x00" + strings.Join(sorted, ",") +
		"\x00" + strconv.Itoa(k) + "\x00" + strconv.FormatFloat(minScore, 'g', -1, 64)
}

func extractKeywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"")
		if f == "" || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func mergeKeywords(explicit, derived []string) []string {
	seen := make(map[string]bool, len(explicit)+len(derived))
	var out []string
	for _, kw := range append(append([]string(nil), explicit...), derived...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

func toSet(keywords []string) map[string]bool {
	set := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		set[kw] = true
	}
	return set
}

func keywordBonus(entryKeywords []string, query map[string]bool) float64 {
	n := 0
	for _, kw := range entryKeywords {
		if query[strings.ToLower(kw)] {
			n++
		}
	}
	bonus := keywordBonusPerHit * float64(n)
	if bonus > keywordBonusCap {
		return keywordBonusCap
	}
	return bonus
}

func verbBonusFor(toolName string, query map[string]bool) float64 {
	verb := strings.SplitN(toolName, "_", 2)[0]
	if query[strings.ToLower(verb)] {
		return verbBonus
	}
	return 0
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
