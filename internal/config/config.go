package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// ProjectConfigName is the per-corpus config file looked up in the working directory.
const ProjectConfigName = ".amanrag.yaml"

// Config represents the complete amanrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "sqlite" (embedded single file) or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path" json:"path"`
	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn" json:"dsn"`
	// MaxConns bounds the Postgres pool.
	MaxConns int32 `yaml:"max_conns" json:"max_conns"`
}

// EmbeddingsConfig configures the embedding backend.
type EmbeddingsConfig struct {
	// Backend is one of disabled, hash, ollama, openai.
	// Unrecognized values fall back to hash.
	Backend string `yaml:"backend" json:"backend"`
	Model   string `yaml:"model" json:"model"`
	Host    string `yaml:"host" json:"host"`
	APIKey  string `yaml:"api_key" json:"-"`
	// Dimensions applies to the hash backend; model backends report their own.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// Timeout bounds each model call, e.g. "30s".
	Timeout    string `yaml:"timeout" json:"timeout"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// ChunkingConfig configures passage splitting.
type ChunkingConfig struct {
	SizeChars    int `yaml:"size_chars" json:"size_chars"`
	OverlapChars int `yaml:"overlap_chars" json:"overlap_chars"`
}

// SearchConfig configures hybrid retrieval.
// Weights need not sum to 1; the engine re-normalizes them.
type SearchConfig struct {
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
	LexicalLimit  int     `yaml:"lexical_limit" json:"lexical_limit"`
	VectorLimit   int     `yaml:"vector_limit" json:"vector_limit"`
	DefaultTopK   int     `yaml:"default_top_k" json:"default_top_k"`
	MaxTopK       int     `yaml:"max_top_k" json:"max_top_k"`
	// VectorSource is "exhaustive" (cosine over the cached matrix) or "native"
	// (the store's vector index).
	VectorSource string `yaml:"vector_source" json:"vector_source"`
	// LexicalSource is "native" (store full-text index, falling back to
	// bm25), "bm25" (in-process) or "overlap" (token overlap only).
	LexicalSource string `yaml:"lexical_source" json:"lexical_source"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	MaxContractBytes int    `yaml:"max_contract_bytes" json:"max_contract_bytes"`
	MaxFileBytes     int64  `yaml:"max_file_bytes" json:"max_file_bytes"`
	Workers          int    `yaml:"workers" json:"workers"`
	WatchDebounce    string `yaml:"watch_debounce" json:"watch_debounce"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a configuration with defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Driver:   "sqlite",
			Path:     filepath.Join(".amanrag", "corpus.db"),
			MaxConns: 10,
		},
		Embeddings: EmbeddingsConfig{
			Backend:    "hash",
			Dimensions: 256,
			Timeout:    "30s",
			MaxRetries: 2,
			BatchSize:  32,
			CacheSize:  1000,
		},
		Chunking: ChunkingConfig{
			SizeChars:    1200,
			OverlapChars: 200,
		},
		Search: SearchConfig{
			LexicalWeight: 0.5,
			VectorWeight:  0.5,
			LexicalLimit:  50,
			VectorLimit:   50,
			DefaultTopK:   5,
			MaxTopK:       50,
			VectorSource:  "exhaustive",
			LexicalSource: "native",
		},
		Ingest: IngestConfig{
			MaxContractBytes: 64 * 1024,
			MaxFileBytes:     50 * 1024 * 1024,
			Workers:          4,
			WatchDebounce:    "500ms",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns ~/.config/amanrag/config.yaml, honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "amanrag", "config.yaml")
}

// Load builds the effective configuration for dir.
// Precedence, lowest to highest:
//  1. Defaults
//  2. User config (~/.config/amanrag/config.yaml)
//  3. Project config (.amanrag.yaml in dir)
//  4. Environment (AMANRAG_*), including values from dir/.env
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	// .env never overrides variables already set in the process.
	envPath := filepath.Join(dir, ".env")
	if fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if p := GetUserConfigPath(); p != "" && fileExists(p) {
		if err := cfg.loadYAML(p); err != nil {
			return nil, err
		}
	}

	if p := filepath.Join(dir, ProjectConfigName); fileExists(p) {
		if err := cfg.loadYAML(p); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return amerrors.New(amerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	setString(&c.Store.Driver, other.Store.Driver)
	setString(&c.Store.Path, other.Store.Path)
	setString(&c.Store.DSN, other.Store.DSN)
	if other.Store.MaxConns != 0 {
		c.Store.MaxConns = other.Store.MaxConns
	}

	setString(&c.Embeddings.Backend, other.Embeddings.Backend)
	setString(&c.Embeddings.Model, other.Embeddings.Model)
	setString(&c.Embeddings.Host, other.Embeddings.Host)
	setString(&c.Embeddings.APIKey, other.Embeddings.APIKey)
	setString(&c.Embeddings.Timeout, other.Embeddings.Timeout)
	setInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	setInt(&c.Embeddings.MaxRetries, other.Embeddings.MaxRetries)
	setInt(&c.Embeddings.BatchSize, other.Embeddings.BatchSize)
	setInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)

	setInt(&c.Chunking.SizeChars, other.Chunking.SizeChars)
	setInt(&c.Chunking.OverlapChars, other.Chunking.OverlapChars)

	// Weights are merged as a pair so that "lexical_weight: 1, vector_weight: 0"
	// in a file is not half-ignored.
	if other.Search.LexicalWeight != 0 || other.Search.VectorWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	setInt(&c.Search.LexicalLimit, other.Search.LexicalLimit)
	setInt(&c.Search.VectorLimit, other.Search.VectorLimit)
	setInt(&c.Search.DefaultTopK, other.Search.DefaultTopK)
	setInt(&c.Search.MaxTopK, other.Search.MaxTopK)
	setString(&c.Search.VectorSource, other.Search.VectorSource)
	setString(&c.Search.LexicalSource, other.Search.LexicalSource)

	setInt(&c.Ingest.MaxContractBytes, other.Ingest.MaxContractBytes)
	if other.Ingest.MaxFileBytes != 0 {
		c.Ingest.MaxFileBytes = other.Ingest.MaxFileBytes
	}
	setInt(&c.Ingest.Workers, other.Ingest.Workers)
	setString(&c.Ingest.WatchDebounce, other.Ingest.WatchDebounce)

	setString(&c.Logging.Level, other.Logging.Level)
	setString(&c.Logging.File, other.Logging.File)
	setInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	setInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies AMANRAG_* environment variables.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"AMANRAG_STORE_DRIVER":          &c.Store.Driver,
		"AMANRAG_STORE_PATH":            &c.Store.Path,
		"AMANRAG_STORE_DSN":             &c.Store.DSN,
		"AMANRAG_EMBEDDINGS_BACKEND":    &c.Embeddings.Backend,
		"AMANRAG_EMBEDDINGS_MODEL":      &c.Embeddings.Model,
		"AMANRAG_EMBEDDINGS_HOST":       &c.Embeddings.Host,
		"AMANRAG_EMBEDDINGS_API_KEY":    &c.Embeddings.APIKey,
		"AMANRAG_EMBEDDINGS_TIMEOUT":    &c.Embeddings.Timeout,
		"AMANRAG_SEARCH_VECTOR_SOURCE":  &c.Search.VectorSource,
		"AMANRAG_SEARCH_LEXICAL_SOURCE": &c.Search.LexicalSource,
		"AMANRAG_LOG_LEVEL":             &c.Logging.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"AMANRAG_EMBEDDINGS_DIMENSIONS": &c.Embeddings.Dimensions,
		"AMANRAG_CHUNK_SIZE":            &c.Chunking.SizeChars,
		"AMANRAG_CHUNK_OVERLAP":         &c.Chunking.OverlapChars,
		"AMANRAG_LEXICAL_LIMIT":         &c.Search.LexicalLimit,
		"AMANRAG_VECTOR_LIMIT":          &c.Search.VectorLimit,
		"AMANRAG_MAX_TOP_K":             &c.Search.MaxTopK,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return amerrors.ConfigError(key, fmt.Sprintf("not an integer: %q", v))
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"AMANRAG_LEXICAL_WEIGHT": &c.Search.LexicalWeight,
		"AMANRAG_VECTOR_WEIGHT":  &c.Search.VectorWeight,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return amerrors.ConfigError(key, fmt.Sprintf("not a number: %q", v))
			}
			*dst = f
		}
	}
	return nil
}

// Validate checks the configuration and names the offending field.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return amerrors.ConfigError("store.path", "required for sqlite driver")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return amerrors.ConfigError("store.dsn", "required for postgres driver")
		}
	default:
		return amerrors.ConfigError("store.driver", fmt.Sprintf("must be 'sqlite' or 'postgres', got %q", c.Store.Driver))
	}

	if c.Chunking.SizeChars <= 0 {
		return amerrors.ConfigError("chunking.size_chars", fmt.Sprintf("must be positive, got %d", c.Chunking.SizeChars))
	}
	if c.Chunking.OverlapChars < 0 || c.Chunking.OverlapChars >= c.Chunking.SizeChars {
		return amerrors.ConfigError("chunking.overlap_chars",
			fmt.Sprintf("must be in [0, size_chars), got %d with size_chars %d", c.Chunking.OverlapChars, c.Chunking.SizeChars))
	}

	if c.Search.LexicalWeight < 0 {
		return amerrors.ConfigError("search.lexical_weight", "must be non-negative")
	}
	if c.Search.VectorWeight < 0 {
		return amerrors.ConfigError("search.vector_weight", "must be non-negative")
	}
	if c.Search.LexicalLimit <= 0 {
		return amerrors.ConfigError("search.lexical_limit", "must be positive")
	}
	if c.Search.VectorLimit <= 0 {
		return amerrors.ConfigError("search.vector_limit", "must be positive")
	}
	if c.Search.MaxTopK <= 0 {
		return amerrors.ConfigError("search.max_top_k", "must be positive")
	}
	if c.Search.DefaultTopK <= 0 || c.Search.DefaultTopK > c.Search.MaxTopK {
		return amerrors.ConfigError("search.default_top_k", fmt.Sprintf("must be in [1, %d]", c.Search.MaxTopK))
	}
	switch c.Search.VectorSource {
	case "exhaustive", "native":
	default:
		return amerrors.ConfigError("search.vector_source", fmt.Sprintf("must be 'exhaustive' or 'native', got %q", c.Search.VectorSource))
	}
	switch c.Search.LexicalSource {
	case "native", "bm25", "overlap":
	default:
		return amerrors.ConfigError("search.lexical_source", fmt.Sprintf("must be 'native', 'bm25' or 'overlap', got %q", c.Search.LexicalSource))
	}

	if _, err := c.EmbeddingTimeout(); err != nil {
		return amerrors.ConfigError("embeddings.timeout", err.Error())
	}
	if _, err := c.WatchDebounce(); err != nil {
		return amerrors.ConfigError("ingest.watch_debounce", err.Error())
	}
	if c.Ingest.MaxContractBytes <= 0 {
		return amerrors.ConfigError("ingest.max_contract_bytes", "must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return amerrors.ConfigError("logging.level", fmt.Sprintf("must be debug, info, warn, or error, got %q", c.Logging.Level))
	}
	return nil
}

// EmbeddingTimeout parses embeddings.timeout.
func (c *Config) EmbeddingTimeout() (time.Duration, error) {
	return parsePositiveDuration(c.Embeddings.Timeout)
}

// WatchDebounce parses ingest.watch_debounce.
func (c *Config) WatchDebounce() (time.Duration, error) {
	return parsePositiveDuration(c.Ingest.WatchDebounce)
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
