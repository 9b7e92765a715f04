package embedder

import (
	"fmt"
	"strings"

	"github.com/dshills/catalogconv/internal/config"
)

// New creates an embedder from configuration. The provider is chosen once
// here; callers only ever see the Embedder interface.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderHash, "":
		return NewHashProvider(cfg.Dimension, cache), nil
	case ProviderRemote:
		p, err := NewRemoteProvider(cfg, cache)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}
