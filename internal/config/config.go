package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/catrec-io/catrec/internal/domain"
)

// Config holds the catrec API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
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

// DatabaseConfig holds record store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Budget     BudgetConfig  `yaml:"budget"`
	Retry      RetryConfig   `yaml:"retry"`
	Cache      CacheConfig   `yaml:"cache"`
	Breaker    BreakerConfig `yaml:"breaker"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit int64  `yaml:"daily_token_limit"` // 0 = unlimited
	Action          string `yaml:"action"`            // "reject" | "warn" (default)
}

// RetryConfig holds embedding retry settings.
type RetryConfig struct {
	MaxAttempts  int `yaml:"max_attempts"`
	BaseDelaySec int `yaml:"base_delay_sec"`
	MaxDelaySec  int `yaml:"max_delay_sec"`
}

// CacheConfig holds query embedding cache settings.
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
	TTLSec   int `yaml:"ttl_sec"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownSec      int `yaml:"cooldown_sec"`
}

// SearchConfig holds ranking settings.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
	CandidateK  int `yaml:"candidate_k"`
}

// IndexerConfig holds batch indexing settings.
type IndexerConfig struct {
	ChunkSize              int     `yaml:"chunk_size"`
	Workers                int     `yaml:"workers"`
	CallTimeoutSec         int     `yaml:"call_timeout_sec"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
	MaxErrorRate           float64 `yaml:"max_error_rate"`
	MinChunksForRate       int     `yaml:"min_chunks_for_rate"`
}

// StorageConfig holds vector index persistence settings.
type StorageConfig struct {
	IndexPath string `yaml:"index_path"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = domain.DefaultVectorConfig().Dimensions
	}
	if c.Embedding.Retry.MaxAttempts <= 0 {
		c.Embedding.Retry.MaxAttempts = 3
	}
	if c.Embedding.Retry.BaseDelaySec <= 0 {
		c.Embedding.Retry.BaseDelaySec = 2
	}
	if c.Embedding.Retry.MaxDelaySec <= 0 {
		c.Embedding.Retry.MaxDelaySec = 30
	}
	if c.Embedding.Cache.Capacity <= 0 {
		c.Embedding.Cache.Capacity = 1024
	}
	if c.Embedding.Cache.TTLSec <= 0 {
		c.Embedding.Cache.TTLSec = 300
	}
	if c.Embedding.Breaker.FailureThreshold <= 0 {
		c.Embedding.Breaker.FailureThreshold = 5
	}
	if c.Embedding.Breaker.CooldownSec <= 0 {
		c.Embedding.Breaker.CooldownSec = 60
	}
	if c.Search.DefaultTopK <= 0 {
		c.Search.DefaultTopK = 5
	}
	if c.Search.MaxTopK <= 0 {
		c.Search.MaxTopK = 20
	}
	if c.Search.CandidateK <= 0 {
		c.Search.CandidateK = 50
	}
	if c.Indexer.ChunkSize <= 0 {
		c.Indexer.ChunkSize = 100
	}
	if c.Indexer.CallTimeoutSec <= 0 {
		c.Indexer.CallTimeoutSec = 30
	}
	if c.Indexer.MaxConsecutiveFailures <= 0 {
		c.Indexer.MaxConsecutiveFailures = 10
	}
	if c.Indexer.MaxErrorRate <= 0 {
		c.Indexer.MaxErrorRate = 0.5
	}
	if c.Indexer.MinChunksForRate <= 0 {
		c.Indexer.MinChunksForRate = 20
	}
	if c.Storage.IndexPath == "" {
		c.Storage.IndexPath = "data/index.db"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis", "memory":
		// ok
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"memory\", got %q", c.Database.Driver)
	}
	if c.Database.Driver == "redis" && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required for the redis driver")
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action,
		)
	}
	if c.Indexer.MaxErrorRate > 1 {
		return fmt.Errorf("indexer.max_error_rate must be within (0, 1], got %v", c.Indexer.MaxErrorRate)
	}
	return nil
}

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
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
