package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverValkey   = "valkey"
	DriverRedis    = "redis"
	DriverPGVector = "pgvector"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds the ragserver configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	TextIndex   TextIndexConfig   `yaml:"text_index"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Rerank      RerankConfig      `yaml:"rerank"`
	Search      SearchConfig      `yaml:"search"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. An empty list disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, pgvector, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DSN              string   `yaml:"dsn"`
	KeyPrefix        string   `yaml:"key_prefix"`
	Table            string   `yaml:"table"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// TextIndexConfig selects and configures the full-text backend.
type TextIndexConfig struct {
	Driver    string   `yaml:"driver"` // redis, postgres, sqlite, memory (default: redis)
	Addrs     []string `yaml:"addrs"`
	Password  string   `yaml:"password"`
	DSN       string   `yaml:"dsn"`
	KeyPrefix string   `yaml:"key_prefix"`
	Table     string   `yaml:"table"`
	Language  string   `yaml:"language"`
}

// EmbeddingConfig holds the OpenAI-compatible embedding provider settings.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"`
	BaseURL             string `yaml:"base_url"`
	APIKey              string `yaml:"api_key"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	BatchSize           int    `yaml:"batch_size"`
	QueryInstruction    string `yaml:"query_instruction"`
	DocumentInstruction string `yaml:"document_instruction"`
	Cache               bool   `yaml:"cache"`
	CacheTTLHours       int    `yaml:"cache_ttl_hours"`
}

// RerankConfig holds both rerank strategies.
type RerankConfig struct {
	DefaultMethod string             `yaml:"default_method"` // cross_encoder (default) or llm
	DefaultTopK   int                `yaml:"default_top_k"`  // 0 = n_results
	CrossEncoder  CrossEncoderConfig `yaml:"cross_encoder"`
	LLM           LLMConfig          `yaml:"llm"`
}

// CrossEncoderConfig points at a rerank server. An empty BaseURL disables the strategy.
type CrossEncoderConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	MaxBatch int    `yaml:"max_batch"`
}

// LLMConfig configures the LLM judge. An empty Model disables the strategy.
type LLMConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	Temperature       float32 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
}

// SearchConfig holds query defaults applied when a request leaves a field unset.
type SearchConfig struct {
	DefaultResults int      `yaml:"default_results"`
	VectorWeight   *float64 `yaml:"vector_weight"`
	TextWeight     *float64 `yaml:"text_weight"`
}

// TimeoutsConfig bounds every external call, in seconds.
type TimeoutsConfig struct {
	StoreSec     int `yaml:"store_sec"`
	EmbeddingSec int `yaml:"embedding_sec"`
	RerankSec    int `yaml:"rerank_sec"`
	LLMSec       int `yaml:"llm_sec"`
	ModelLoadSec int `yaml:"model_load_sec"`
}

// Store returns the store timeout.
func (t TimeoutsConfig) Store() time.Duration { return seconds(t.StoreSec) }

// Embedding returns the embedding call timeout.
func (t TimeoutsConfig) Embedding() time.Duration { return seconds(t.EmbeddingSec) }

// Rerank returns the cross-encoder call timeout.
func (t TimeoutsConfig) Rerank() time.Duration { return seconds(t.RerankSec) }

// LLM returns the LLM judge call timeout.
func (t TimeoutsConfig) LLM() time.Duration { return seconds(t.LLMSec) }

// ModelLoad returns the rerank model load timeout.
func (t TimeoutsConfig) ModelLoad() time.Duration { return seconds(t.ModelLoadSec) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory is loaded first; existing variables win.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// covers an LLM rerank plus both passes
		c.HTTP.WriteTimeoutSec = 90
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.VectorStore.Driver == "" {
		c.VectorStore.Driver = DriverRedis
	}
	if c.VectorStore.HNSWM <= 0 {
		c.VectorStore.HNSWM = 16
	}
	if c.VectorStore.HNSWEFConstruct <= 0 {
		c.VectorStore.HNSWEFConstruct = 200
	}
	if c.VectorStore.ReadinessTimeout <= 0 {
		c.VectorStore.ReadinessTimeout = 10
	}
	if c.VectorStore.Table == "" {
		c.VectorStore.Table = "knowledge_point_vectors"
	}

	if c.TextIndex.Driver == "" {
		c.TextIndex.Driver = DriverRedis
	}
	if c.TextIndex.Table == "" {
		c.TextIndex.Table = "knowledge_points"
	}
	if c.TextIndex.Language == "" {
		c.TextIndex.Language = "simple"
	}
	// a redis text index shares the vector store's server unless configured separately
	if len(c.TextIndex.Addrs) == 0 && isRedisDriver(c.VectorStore.Driver) {
		c.TextIndex.Addrs = c.VectorStore.Addrs
		if c.TextIndex.Password == "" {
			c.TextIndex.Password = c.VectorStore.Password
		}
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 24 * 7
	}

	if c.Rerank.DefaultMethod == "" {
		c.Rerank.DefaultMethod = "cross_encoder"
	}
	if c.Rerank.CrossEncoder.MaxBatch <= 0 {
		c.Rerank.CrossEncoder.MaxBatch = 64
	}
	if c.Rerank.LLM.BaseURL == "" {
		c.Rerank.LLM.BaseURL = c.Embedding.BaseURL
	}
	if c.Rerank.LLM.APIKey == "" {
		c.Rerank.LLM.APIKey = c.Embedding.APIKey
	}

	if c.Timeouts.StoreSec <= 0 {
		c.Timeouts.StoreSec = 5
	}
	if c.Timeouts.EmbeddingSec <= 0 {
		c.Timeouts.EmbeddingSec = 30
	}
	if c.Timeouts.RerankSec <= 0 {
		c.Timeouts.RerankSec = 30
	}
	if c.Timeouts.LLMSec <= 0 {
		c.Timeouts.LLMSec = 60
	}
	if c.Timeouts.ModelLoadSec <= 0 {
		c.Timeouts.ModelLoadSec = 120
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.VectorStore.Driver {
	case DriverValkey, DriverRedis:
		if len(c.VectorStore.Addrs) == 0 {
			return fmt.Errorf("vector_store.addrs is required for driver %q", c.VectorStore.Driver)
		}
	case DriverPGVector:
		if c.VectorStore.DSN == "" {
			return fmt.Errorf("vector_store.dsn is required for driver %q", c.VectorStore.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("vector_store.driver must be one of valkey, redis, pgvector, memory, got %q",
			c.VectorStore.Driver)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}

	switch c.TextIndex.Driver {
	case DriverRedis:
		if len(c.TextIndex.Addrs) == 0 {
			return fmt.Errorf("text_index.addrs is required for driver %q", c.TextIndex.Driver)
		}
	case DriverPostgres, DriverSQLite:
		if c.TextIndex.DSN == "" {
			return fmt.Errorf("text_index.dsn is required for driver %q", c.TextIndex.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("text_index.driver must be one of redis, postgres, sqlite, memory, got %q",
			c.TextIndex.Driver)
	}

	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}

	switch c.Rerank.DefaultMethod {
	case "cross_encoder", "llm":
	default:
		return fmt.Errorf("rerank.default_method must be \"cross_encoder\" or \"llm\", got %q", c.Rerank.DefaultMethod)
	}
	if c.Rerank.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("rerank.llm.requests_per_second must not be negative")
	}

	for name, w := range map[string]*float64{
		"search.vector_weight": c.Search.VectorWeight,
		"search.text_weight":   c.Search.TextWeight,
	} {
		if w != nil && (*w < 0 || *w > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, *w)
		}
	}
	if c.Search.DefaultResults < 0 || c.Search.DefaultResults > 20 {
		return fmt.Errorf("search.default_results must be between 1 and 20, got %d", c.Search.DefaultResults)
	}
	return nil
}

func isRedisDriver(d string) bool { return d == DriverRedis || d == DriverValkey }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
