package embedding

import (
	"container/list"
	"context"
	"sync"
)

// Signature identifies the provenance of cached vectors: provider identity,
// model identity, dimension, and any truncation setting. A CachedService's
// signature is fixed at construction and recorded with each entry; lookups
// key on the text alone and do not compare signatures, so the cache never
// drops entries on its own when a provider changes: that takes a new
// CachedService or a call to Invalidate.
type Signature struct {
	Provider   string
	Model      string
	Dimension  int
	Truncation int
}

type cacheEntry struct {
	key  string
	sig  Signature
	vec  []float32
}

// CachedService wraps a Service with a single-slot last-query cache plus a
// bounded LRU, matching the last-mile cache most semantic-search backends
// in the retrieved corpus place in front of an embedding call.
type CachedService struct {
	inner Service
	sig   Signature

	mu       sync.Mutex
	lastKey  string
	lastVec  []float32
	lru      *list.List
	lruIndex map[string]*list.Element
	capacity int
}

// NewCached wraps inner with a cache of the given LRU capacity (entries
// beyond the single-slot fast path).
func NewCached(inner Service, sig Signature, capacity int) *CachedService {
	if capacity <= 0 {
		capacity = 64
	}
	return &CachedService{
		inner:    inner,
		sig:      sig,
		lru:      list.New(),
		lruIndex: make(map[string]*list.Element),
		capacity: capacity,
	}
}

func (c *CachedService) Dimension() int { return c.inner.Dimension() }

func (c *CachedService) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.lookup(text); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(text, v)
	return v, nil
}

func (c *CachedService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.lookup(t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for i, idx := range missIdx {
		out[idx] = vecs[i]
		c.store(missTexts[i], vecs[i])
	}
	return out, nil
}

func (c *CachedService) lookup(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastKey == text && c.lastVec != nil {
		return c.lastVec, true
	}
	if el, ok := c.lruIndex[text]; ok {
		c.lru.MoveToFront(el)
		return el.Value.(*cacheEntry).vec, true
	}
	return nil, false
}

func (c *CachedService) store(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastKey, c.lastVec = text, vec

	if el, ok := c.lruIndex[text]; ok {
		el.Value.(*cacheEntry).vec = vec
		c.lru.MoveToFront(el)
		return
	}
	el := c.lru.PushFront(&cacheEntry{key: text, sig: c.sig, vec: vec})
	c.lruIndex[text] = el
	for c.lru.Len() > c.capacity {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.lru.Remove(back)
		delete(c.lruIndex, back.Value.(*cacheEntry).key)
	}
}

// Invalidate drops every cached entry. Called when the underlying
// service's signature changes.
func (c *CachedService) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastKey, c.lastVec = "", nil
	c.lru.Init()
	c.lruIndex = make(map[string]*list.Element)
}
