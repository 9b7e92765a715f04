package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProviderFailed      = errors.New("embedding provider failed")
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrBatchTooLarge       = errors.New("batch size exceeds limit")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
)

// Embedding is one dense vector and where it came from
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Key       string // TextKey of the embedded text
}

func (e *Embedding) clone() *Embedding {
	c := *e
	c.Vector = append([]float32(nil), e.Vector...)
	return &c
}

// EmbeddingRequest asks for the vector of one text
type EmbeddingRequest struct {
	Text string
}

// BatchEmbeddingRequest asks for the vectors of several texts
type BatchEmbeddingRequest struct {
	Texts []string
}

// BatchEmbeddingResponse holds one embedding per requested text, in order
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns product text into dense vectors. Implementations must be
// deterministic for a given text or the output is not reproducible.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch returns embeddings in the order of req.Texts
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// Cache keeps recently generated embeddings keyed by TextKey
type Cache struct {
	lru *lru.Cache[string, *Embedding]
}

// NewCache creates a cache holding at most size embeddings
func NewCache(size int) *Cache {
	if size <= 0 {
		size = 10000
	}
	c, err := lru.New[string, *Embedding](size)
	if err != nil {
		panic(fmt.Sprintf("embedder: lru cache of size %d: %v", size, err))
	}
	return &Cache{lru: c}
}

// Get returns a copy of the cached embedding for key
func (c *Cache) Get(key string) (*Embedding, bool) {
	emb, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return emb.clone(), true
}

// Add stores a copy of emb under key, evicting the least recently used entry
func (c *Cache) Add(key string, emb *Embedding) {
	c.lru.Add(key, emb.clone())
}

// Len returns the number of cached embeddings
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry
func (c *Cache) Purge() {
	c.lru.Purge()
}

// TextKey identifies a text in the cache
func TextKey(text string) string {
	sum := digest(text)
	return hex.EncodeToString(sum[:])
}

// Seed derives a stable 64-bit seed from text
func Seed(text string) uint64 {
	sum := digest(text)
	return binary.BigEndian.Uint64(sum[:8])
}

func digest(text string) [sha256.Size]byte {
	return sha256.Sum256([]byte(text))
}

// checkTexts rejects an empty batch or an empty text within one
func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text %d", ErrEmptyText, i)
		}
	}
	return nil
}

// Normalize scales v to unit length. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return v
	}

	inv := 1 / math.Sqrt(sq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
