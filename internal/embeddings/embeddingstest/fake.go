// Package embeddingstest provides a deterministic offline embedder.
package embeddingstest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/todmy/docguard/internal/embeddings"
	"github.com/todmy/docguard/pkg/models"
)

// Fake embeds text as a hashed bag of lowercase words, so texts sharing
// most of their words score close to 1.
type Fake struct {
	Dims      int
	MaxTokens int
	ModelName string
	// Err, when set, is returned by every call
	Err error

	mu       sync.Mutex
	calls    int
	embedded int
}

var _ embeddings.Embedder = (*Fake)(nil)

// New returns a Fake with 256 dimensions and a 512 token ceiling
func New() *Fake {
	return &Fake{Dims: 256, MaxTokens: 512, ModelName: "fake-bow"}
}

func (f *Fake) EmbedTexts(_ context.Context, texts []string) (*embeddings.Result, error) {
	f.mu.Lock()
	f.calls++
	f.embedded += len(texts)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	res := &embeddings.Result{Requests: 1}
	for _, text := range texts {
		res.Vectors = append(res.Vectors, f.Vector(text))
		res.Tokens += models.EstimateTokens(text)
	}
	return res, nil
}

// Vector returns the embedding of one text
func (f *Fake) Vector(text string) []float32 {
	v := make([]float32, f.Dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[int(h.Sum32()%uint32(f.Dims))]++
	}
	return v
}

func (f *Fake) Model() string       { return f.ModelName }
func (f *Fake) Dimensions() int     { return f.Dims }
func (f *Fake) MaxInputTokens() int { return f.MaxTokens }

// Calls returns how many EmbedTexts calls were made
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Embedded returns how many texts were embedded in total
func (f *Fake) Embedded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedded
}
