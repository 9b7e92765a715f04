package embedder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/internal/retry"
)

// Provider configuration
const (
	ProviderHash   = "hash"
	ProviderRemote = "remote"

	HashModel        = "seeded-periodic-v1"
	DefaultDimension = 384

	// Batch limits
	MaxBatchSize = 100

	// Retry configuration for remote calls
	MaxRetries       = 3
	InitialBackoffMs = 100
	MaxBackoffMs     = 5000
)

// HashProvider is a deterministic placeholder for a real embedding model.
// Vectors depend only on the text and the configured dimension.
type HashProvider struct {
	dimension int
	cache     *Cache
}

// NewHashProvider creates a deterministic embedder
func NewHashProvider(dimension int, cache *Cache) *HashProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashProvider{
		dimension: dimension,
		cache:     cache,
	}
}

func (h *HashProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	key := TextKey(req.Text)
	if h.cache != nil {
		if emb, ok := h.cache.Get(key); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    Synthesize(Seed(req.Text), h.dimension),
		Dimension: h.dimension,
		Provider:  ProviderHash,
		Model:     HashModel,
		Key:       key,
	}
	if h.cache != nil {
		h.cache.Add(key, emb)
	}
	return emb, nil
}

func (h *HashProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := checkTexts(req.Texts); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := h.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderHash,
		Model:      HashModel,
	}, nil
}

func (h *HashProvider) Dimension() int {
	return h.dimension
}

func (h *HashProvider) Provider() string {
	return ProviderHash
}

func (h *HashProvider) Model() string {
	return HashModel
}

func (h *HashProvider) Close() error {
	return nil
}

// Synthesize fills a vector of the given dimension from a seed using two
// seeded sinusoids, then L2-normalizes it.
func Synthesize(seed uint64, dimension int) []float32 {
	phase := float64(seed%1000003) / 1000003 * 2 * math.Pi
	freq := 0.05 + float64((seed>>24)%9973)/9973*0.95
	amp := 0.25 + float64((seed>>44)%1009)/1009*0.5

	v := make([]float32, dimension)
	for i := range v {
		x := float64(i + 1)
		v[i] = float32(math.Sin(phase+freq*x) + amp*math.Cos(phase/2+freq*x*1.618))
	}
	return Normalize(v)
}

// RemoteProvider implements Embedder against an OpenAI-compatible endpoint
type RemoteProvider struct {
	endpoint   string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Config
	cache      *Cache
}

// NewRemoteProvider creates an embedder that calls cfg.Endpoint
func NewRemoteProvider(cfg config.EmbeddingConfig, cache *Cache) (*RemoteProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidInput)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	return &RemoteProvider{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		retry: retry.Backoff(MaxRetries,
			time.Duration(InitialBackoffMs)*time.Millisecond,
			time.Duration(MaxBackoffMs)*time.Millisecond),
		cache: cache,
	}, nil
}

func (r *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	resp, err := r.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (r *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := checkTexts(req.Texts); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	// Only send texts the cache cannot answer
	embeddings := make([]*Embedding, len(req.Texts))
	var missing []int
	for i, text := range req.Texts {
		if r.cache != nil {
			if emb, ok := r.cache.Get(TextKey(text)); ok {
				embeddings[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = req.Texts[i]
		}

		fetched, err := retry.Do(ctx, r.retry, func() ([]*Embedding, error) {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, retry.Permanent(err)
			}
			return r.callAPI(ctx, texts)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}

		for j, i := range missing {
			emb := fetched[j]
			emb.Key = TextKey(req.Texts[i])
			if r.cache != nil {
				r.cache.Add(emb.Key, emb)
			}
			embeddings[i] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderRemote,
		Model:      r.model,
	}, nil
}

func (r *RemoteProvider) callAPI(ctx context.Context, texts []string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": r.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		// Client errors other than throttling will not succeed on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, retry.Permanent(fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(apiResp.Data), len(texts)))
	}

	sort.Slice(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		if len(data.Embedding) != r.dimension {
			return nil, retry.Permanent(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(data.Embedding), r.dimension))
		}
		embeddings[i] = &Embedding{
			Vector:    Normalize(data.Embedding),
			Dimension: len(data.Embedding),
			Provider:  ProviderRemote,
			Model:     apiResp.Model,
		}
	}

	return embeddings, nil
}

func (r *RemoteProvider) Dimension() int {
	return r.dimension
}

func (r *RemoteProvider) Provider() string {
	return ProviderRemote
}

func (r *RemoteProvider) Model() string {
	return r.model
}

func (r *RemoteProvider) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}
