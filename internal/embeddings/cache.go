package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache defines the interface for embedding cache
type Cache interface {
	// Get retrieves an embedding from cache
	Get(ctx context.Context, key string) ([]float32, bool, error)

	// Set stores an embedding in cache
	Set(ctx context.Context, key string, embedding []float32) error

	// GetMulti retrieves multiple embeddings from cache
	// Returns a map of key -> embedding for found entries
	GetMulti(ctx context.Context, keys []string) (map[string][]float32, error)

	// SetMulti stores multiple embeddings in cache
	SetMulti(ctx context.Context, embeddings map[string][]float32) error
}

// GenerateCacheKey creates a cache key from model and text
func GenerateCacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model + ":" + text))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// CachedEmbedder wraps an Embedder with caching. Cache hits cost nothing
// and are not counted as requests.
type CachedEmbedder struct {
	next  Embedder
	cache Cache
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a new cached embedder
func NewCachedEmbedder(next Embedder, cache Cache) *CachedEmbedder {
	return &CachedEmbedder{
		next:  next,
		cache: cache,
	}
}

// EmbedTexts generates embeddings with caching
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) (*Result, error) {
	res := &Result{}
	if len(texts) == 0 {
		return res, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = GenerateCacheKey(c.next.Model(), text)
	}

	cached, err := c.cache.GetMulti(ctx, keys)
	if err != nil {
		// continue without cache
		cached = make(map[string][]float32)
	}

	var uncachedTexts []string
	var uncachedIndices []int
	for i, key := range keys {
		if _, ok := cached[key]; !ok {
			uncachedTexts = append(uncachedTexts, texts[i])
			uncachedIndices = append(uncachedIndices, i)
		}
	}

	var fresh *Result
	if len(uncachedTexts) > 0 {
		fresh, err = c.next.EmbedTexts(ctx, uncachedTexts)
		if err != nil {
			return nil, err
		}
		if len(fresh.Vectors) != len(uncachedTexts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh.Vectors), len(uncachedTexts))
		}
		res.Tokens = fresh.Tokens
		res.Requests = fresh.Requests

		toCache := make(map[string][]float32, len(uncachedIndices))
		for i, idx := range uncachedIndices {
			toCache[keys[idx]] = fresh.Vectors[i]
		}
		_ = c.cache.SetMulti(ctx, toCache) // Ignore cache errors
	}

	res.Vectors = make([][]float32, len(texts))
	newIdx := 0
	for i, key := range keys {
		if emb, ok := cached[key]; ok {
			res.Vectors[i] = emb
		} else {
			res.Vectors[i] = fresh.Vectors[newIdx]
			newIdx++
		}
	}

	return res, nil
}

// Model returns the wrapped model name
func (c *CachedEmbedder) Model() string { return c.next.Model() }

// Dimensions returns the embedding dimension
func (c *CachedEmbedder) Dimensions() int { return c.next.Dimensions() }

// MaxInputTokens returns the wrapped ceiling
func (c *CachedEmbedder) MaxInputTokens() int { return c.next.MaxInputTokens() }

// LRUCache is a bounded in-process Cache
type LRUCache struct {
	entries *lru.Cache[string, []float32]
}

var _ Cache = (*LRUCache)(nil)

// NewLRUCache creates a cache holding at most size vectors
func NewLRUCache(size int) (*LRUCache, error) {
	entries, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{entries: entries}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := c.entries.Get(key)
	return v, ok, nil
}

func (c *LRUCache) Set(_ context.Context, key string, embedding []float32) error {
	c.entries.Add(key, embedding)
	return nil
}

func (c *LRUCache) GetMulti(_ context.Context, keys []string) (map[string][]float32, error) {
	found := make(map[string][]float32, len(keys))
	for _, key := range keys {
		if v, ok := c.entries.Get(key); ok {
			found[key] = v
		}
	}
	return found, nil
}

func (c *LRUCache) SetMulti(_ context.Context, embeddings map[string][]float32) error {
	for key, v := range embeddings {
		c.entries.Add(key, v)
	}
	return nil
}

// Len returns the number of cached vectors
func (c *LRUCache) Len() int { return c.entries.Len() }

// NoOpCache is a cache that doesn't cache anything (for testing)
type NoOpCache struct{}

func (c *NoOpCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	return nil, false, nil
}

func (c *NoOpCache) Set(ctx context.Context, key string, embedding []float32) error {
	return nil
}

func (c *NoOpCache) GetMulti(ctx context.Context, keys []string) (map[string][]float32, error) {
	return make(map[string][]float32), nil
}

func (c *NoOpCache) SetMulti(ctx context.Context, embeddings map[string][]float32) error {
	return nil
}
