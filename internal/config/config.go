// Package config holds the run configuration for catalog conversion.
//
// A Config value is built once per run, either from Default or Load, and
// handed to each component constructor. Nothing in the module reads
// configuration from package-level state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. CATALOGCONV_PROCESSING_BATCH_SIZE
const EnvPrefix = "CATALOGCONV"

// Config holds all configuration for a conversion run
type Config struct {
	Input      InputConfig      `mapstructure:"input"`
	Output     OutputConfig     `mapstructure:"output"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Text       TextConfig       `mapstructure:"text"`
	Normalize  NormalizeConfig  `mapstructure:"normalize"`
	Log        LogConfig        `mapstructure:"log"`
}

// InputConfig controls file discovery
type InputConfig struct {
	Dir     string   `mapstructure:"dir"`
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// OutputConfig controls where and how records are written
type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	ShardSize    int    `mapstructure:"shard_size"` // lines per shard, <= 0 disables sharding
	Combined     bool   `mapstructure:"combined"`
	CombinedName string `mapstructure:"combined_name"`
}

// ProcessingConfig controls batching, concurrency and parsing
type ProcessingConfig struct {
	BatchSize          int           `mapstructure:"batch_size"`
	Concurrency        int           `mapstructure:"concurrency"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	StreamingThreshold int64         `mapstructure:"streaming_threshold"` // bytes
	FormatHint         string        `mapstructure:"format_hint"`
}

// CheckpointConfig controls resumability
type CheckpointConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Backend  string `mapstructure:"backend"` // "json" or "sqlite"
	Dir      string `mapstructure:"dir"`
	Interval int    `mapstructure:"interval"` // processed records between saves
}

// MemoryConfig controls the memory sampler
type MemoryConfig struct {
	ThresholdMB    int           `mapstructure:"threshold_mb"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// EmbeddingConfig selects the dense vector provider
type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"` // "hash" or "remote"
	Dimension int           `mapstructure:"dimension"`
	CacheSize int           `mapstructure:"cache_size"`
	Endpoint  string        `mapstructure:"endpoint"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TextConfig controls keyword extraction and sparse vectors
type TextConfig struct {
	MaxKeywords       int                `mapstructure:"max_keywords"`
	MaxSparseFeatures int                `mapstructure:"max_sparse_features"`
	Stemming          bool               `mapstructure:"stemming"`
	Synonyms          bool               `mapstructure:"synonyms"`
	ContextBoosts     map[string]float64 `mapstructure:"context_boosts"`
	LexiconPath       string             `mapstructure:"lexicon_path"`
}

// NormalizeConfig controls canonical record limits and fallbacks
type NormalizeConfig struct {
	MaxTitleLength       int      `mapstructure:"max_title_length"`
	MaxDescriptionLength int      `mapstructure:"max_description_length"`
	MaxCategories        int      `mapstructure:"max_categories"`
	FallbackCategory     string   `mapstructure:"fallback_category"`
	LanguageCode         string   `mapstructure:"language_code"`
	CurrencyCode         string   `mapstructure:"currency_code"`
	PromoTerms           []string `mapstructure:"promo_terms"`
}

// LogConfig controls the slog handler built by the command
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Input: InputConfig{
			Dir:     "input",
			Include: []string{"*.json"},
			Exclude: []string{"*.tmp", "*.temp", "*.log", "*.bak", "*~", ".*"},
		},
		Output: OutputConfig{
			Dir:          "output",
			ShardSize:    10000,
			Combined:     false,
			CombinedName: "combined",
		},
		Processing: ProcessingConfig{
			BatchSize:          1000,
			Concurrency:        5,
			RetryAttempts:      3,
			RetryDelay:         100 * time.Millisecond,
			StreamingThreshold: 50 << 20,
			FormatHint:         "auto",
		},
		Checkpoint: CheckpointConfig{
			Enabled:  true,
			Backend:  "json",
			Dir:      filepath.Join(os.TempDir(), "catalogconv"),
			Interval: 5000,
		},
		Memory: MemoryConfig{
			ThresholdMB:    2048,
			SampleInterval: 5 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Dimension: 384,
			CacheSize: 10000,
			Model:     "text-embedding-3-small",
			Timeout:   30 * time.Second,
		},
		Text: TextConfig{
			MaxKeywords:       50,
			MaxSparseFeatures: 100,
			Stemming:          true,
			Synonyms:          true,
			ContextBoosts: map[string]float64{
				"title":       3.0,
				"brand":       2.5,
				"category":    2.0,
				"description": 1.5,
				"default":     1.0,
			},
		},
		Normalize: NormalizeConfig{
			MaxTitleLength:       1000,
			MaxDescriptionLength: 5000,
			MaxCategories:        10,
			FallbackCategory:     "General",
			LanguageCode:         "en",
			CurrencyCode:         "USD",
			PromoTerms: []string{
				"sale", "clearance", "discount", "deal", "promo", "promotion",
				"new arrival", "best seller", "bestseller", "featured",
				"limited time", "special offer", "outlet",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from an optional YAML file and the environment.
// An empty path searches ./catalogconv.yaml and ./config/catalogconv.yaml;
// a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("catalogconv")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("input.dir", d.Input.Dir)
	v.SetDefault("input.include", d.Input.Include)
	v.SetDefault("input.exclude", d.Input.Exclude)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.shard_size", d.Output.ShardSize)
	v.SetDefault("output.combined", d.Output.Combined)
	v.SetDefault("output.combined_name", d.Output.CombinedName)

	v.SetDefault("processing.batch_size", d.Processing.BatchSize)
	v.SetDefault("processing.concurrency", d.Processing.Concurrency)
	v.SetDefault("processing.retry_attempts", d.Processing.RetryAttempts)
	v.SetDefault("processing.retry_delay", d.Processing.RetryDelay.String())
	v.SetDefault("processing.streaming_threshold", d.Processing.StreamingThreshold)
	v.SetDefault("processing.format_hint", d.Processing.FormatHint)

	v.SetDefault("checkpoint.enabled", d.Checkpoint.Enabled)
	v.SetDefault("checkpoint.backend", d.Checkpoint.Backend)
	v.SetDefault("checkpoint.dir", d.Checkpoint.Dir)
	v.SetDefault("checkpoint.interval", d.Checkpoint.Interval)

	v.SetDefault("memory.threshold_mb", d.Memory.ThresholdMB)
	v.SetDefault("memory.sample_interval", d.Memory.SampleInterval.String())

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.endpoint", d.Embedding.Endpoint)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.rate_limit", d.Embedding.RateLimit)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout.String())

	v.SetDefault("text.max_keywords", d.Text.MaxKeywords)
	v.SetDefault("text.max_sparse_features", d.Text.MaxSparseFeatures)
	v.SetDefault("text.stemming", d.Text.Stemming)
	v.SetDefault("text.synonyms", d.Text.Synonyms)
	v.SetDefault("text.context_boosts", d.Text.ContextBoosts)
	v.SetDefault("text.lexicon_path", d.Text.LexiconPath)

	v.SetDefault("normalize.max_title_length", d.Normalize.MaxTitleLength)
	v.SetDefault("normalize.max_description_length", d.Normalize.MaxDescriptionLength)
	v.SetDefault("normalize.max_categories", d.Normalize.MaxCategories)
	v.SetDefault("normalize.fallback_category", d.Normalize.FallbackCategory)
	v.SetDefault("normalize.language_code", d.Normalize.LanguageCode)
	v.SetDefault("normalize.currency_code", d.Normalize.CurrencyCode)
	v.SetDefault("normalize.promo_terms", d.Normalize.PromoTerms)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Input.Dir == "" {
		return fmt.Errorf("input.dir is required")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if len(c.Input.Include) == 0 {
		return fmt.Errorf("input.include must list at least one pattern")
	}
	for _, p := range append(append([]string{}, c.Input.Include...), c.Input.Exclude...) {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("bad file pattern %q: %w", p, err)
		}
	}
	if c.Processing.BatchSize <= 0 {
		return fmt.Errorf("processing.batch_size must be positive, got: %d", c.Processing.BatchSize)
	}
	if c.Processing.Concurrency <= 0 {
		return fmt.Errorf("processing.concurrency must be positive, got: %d", c.Processing.Concurrency)
	}
	if c.Processing.RetryAttempts <= 0 {
		return fmt.Errorf("processing.retry_attempts must be positive, got: %d", c.Processing.RetryAttempts)
	}
	if c.Processing.RetryDelay < 0 {
		return fmt.Errorf("processing.retry_delay cannot be negative")
	}
	if c.Checkpoint.Backend != "json" && c.Checkpoint.Backend != "sqlite" {
		return fmt.Errorf("checkpoint backend must be 'json' or 'sqlite', got: %s", c.Checkpoint.Backend)
	}
	if c.Checkpoint.Enabled && c.Checkpoint.Interval <= 0 {
		return fmt.Errorf("checkpoint.interval must be positive, got: %d", c.Checkpoint.Interval)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got: %d", c.Embedding.Dimension)
	}
	if c.Embedding.Provider == "remote" && c.Embedding.Endpoint == "" {
		return fmt.Errorf("embedding.endpoint is required when provider is 'remote'")
	}
	if c.Text.MaxKeywords <= 0 || c.Text.MaxSparseFeatures <= 0 {
		return fmt.Errorf("text.max_keywords and text.max_sparse_features must be positive")
	}
	if c.Normalize.MaxCategories <= 0 {
		return fmt.Errorf("normalize.max_categories must be positive, got: %d", c.Normalize.MaxCategories)
	}
	if c.Normalize.FallbackCategory == "" || c.Normalize.LanguageCode == "" || c.Normalize.CurrencyCode == "" {
		return fmt.Errorf("normalize fallback category, language code and currency code are required")
	}
	return nil
}
