package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DirName is the per-corpus state directory.
const DirName = ".smartindex"

// Config holds all configuration for smartindex.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	OCR       OCRConfig       `yaml:"ocr"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig holds indexing configuration.
type IndexConfig struct {
	Includes        []string `yaml:"includes"`
	Excludes        []string `yaml:"excludes"`
	SkipUnsupported bool     `yaml:"skip_unsupported"` // Walk only extensions an extractor handles
	Workers         int      `yaml:"workers"`
	Clusters        int      `yaml:"clusters"` // 0 disables grouping
	ClusterSeed     uint64   `yaml:"cluster_seed"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK         int     `yaml:"top_k"`
	Threshold    float64 `yaml:"threshold"`
	PreviewChars int     `yaml:"preview_chars"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // "hash", "openai", "deepseek", "jina", "ollama", "openai-compatible"
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string        `yaml:"base_url"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Stemming  bool          `yaml:"stemming"` // hash provider only
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"` // 0 disables the query cache
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// StoreConfig selects the vector index backend.
type StoreConfig struct {
	Backend string       `yaml:"backend"` // "bolt", "memory", "milvus"
	Milvus  MilvusConfig `yaml:"milvus"`
}

type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
}

// OCRConfig controls text recognition for image files. Images are only
// indexed when OCR is on; otherwise they count as unsupported.
type OCRConfig struct {
	Enabled  bool   `yaml:"enabled"` // Always on; a missing engine fails each image
	Auto     bool   `yaml:"auto"`    // On when a tesseract engine is detected
	Language string `yaml:"language"`
}

// Active reports whether image files should go through OCR, given whether
// an engine is available.
func (o OCRConfig) Active(engineAvailable bool) bool {
	return o.Enabled || (o.Auto && engineAvailable)
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	UploadDir      string        `yaml:"upload_dir"` // Relative paths resolve against the corpus root
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadMB    int           `yaml:"max_upload_mb"`
	AllowOrigins   []string      `yaml:"allow_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Includes:    []string{"**/*"},
			Excludes:    []string{DirName + "/**", "**/.git/**", "**/node_modules/**", "**/__pycache__/**", "**/.DS_Store"},
			Workers:     4,
			Clusters:    0,
			ClusterSeed: 42,
		},
		Retrieve: RetrieveConfig{
			TopK:         5,
			Threshold:    0.5,
			PreviewChars: 500,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 384,
			BatchSize: 32,
			Stemming:  true,
			Timeout:   60 * time.Second,
			CacheSize: 1024,
			CacheTTL:  30 * time.Minute,
		},
		Store: StoreConfig{
			Backend: "bolt",
			Milvus: MilvusConfig{
				Address:    "localhost:19530",
				Collection: "smartindex_documents",
			},
		},
		OCR: OCRConfig{
			Enabled:  false,
			Auto:     true,
			Language: "eng",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			UploadDir:      "uploads",
			RequestTimeout: 30 * time.Second,
			MaxUploadMB:    32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for smartindex.yaml).
func LoadFromDir(dir string) (*Config, error) {
	// Try smartindex.yaml in the directory
	path := filepath.Join(dir, "smartindex.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Try .smartindex/config.yaml
	path = filepath.Join(dir, DirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Return defaults
	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var (
	validProviders = []string{"hash", "openai", "deepseek", "jina", "ollama", "openai-compatible"}
	validBackends  = []string{"bolt", "memory", "milvus"}
	validFormats   = []string{"text", "json"}
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Retrieve.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK))
	}
	if c.Retrieve.Threshold < -1 || c.Retrieve.Threshold > 1 {
		errs = append(errs, fmt.Errorf("retrieve.threshold must be within [-1, 1], got %v", c.Retrieve.Threshold))
	}
	if c.Retrieve.PreviewChars <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.preview_chars must be positive, got %d", c.Retrieve.PreviewChars))
	}
	if !oneOf(c.Embedding.Provider, validProviders) {
		errs = append(errs, fmt.Errorf("embedding.provider %q is not one of %s", c.Embedding.Provider, strings.Join(validProviders, ", ")))
	}
	if c.Embedding.Provider == "hash" && c.Embedding.Dimension < 2 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be at least 2 for the hash provider, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.Provider == "openai-compatible" && c.Embedding.BaseURL == "" {
		errs = append(errs, errors.New("embedding.base_url is required for the openai-compatible provider"))
	}
	if !oneOf(c.Store.Backend, validBackends) {
		errs = append(errs, fmt.Errorf("store.backend %q is not one of %s", c.Store.Backend, strings.Join(validBackends, ", ")))
	}
	if c.Store.Backend == "milvus" && c.Store.Milvus.Address == "" {
		errs = append(errs, errors.New("store.milvus.address is required for the milvus backend"))
	}
	if c.Index.Workers < 0 {
		errs = append(errs, fmt.Errorf("index.workers must not be negative, got %d", c.Index.Workers))
	}
	if c.Index.Clusters < 0 {
		errs = append(errs, fmt.Errorf("index.clusters must not be negative, got %d", c.Index.Clusters))
	}
	if c.Logging.Format != "" && !oneOf(c.Logging.Format, validFormats) {
		errs = append(errs, fmt.Errorf("logging.format %q is not one of %s", c.Logging.Format, strings.Join(validFormats, ", ")))
	}

	return errors.Join(errs...)
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, DirName, "index.db")
}

// EnsureDir ensures the .smartindex directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DirName), 0755)
}

// ResolveUploadDir returns the upload directory, anchored at root when the
// configured path is relative.
func (c *Config) ResolveUploadDir(root string) string {
	dir := c.Server.UploadDir
	if dir == "" {
		dir = "uploads"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
