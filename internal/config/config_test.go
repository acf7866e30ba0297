package config

import (
	"os"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver: "redis",
			Addrs:  []string{"localhost:6379"},
		},
	}
}

func TestValidate_InvalidBudgetAction(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding = EmbeddingConfig{
		APIKey: "test-key",
		Budget: BudgetConfig{
			DailyTokenLimit: 1000000,
			Action:          "invalid_action",
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid budget action")
	}

	expected := `embedding.budget.action must be "warn" or "reject", got "invalid_action"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidBudgetActions(t *testing.T) {
	validActions := []string{"", "warn", "reject"}

	for _, action := range validActions {
		t.Run("action="+action, func(t *testing.T) {
			cfg := validConfig()
			cfg.Embedding.Budget.Action = action

			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for valid action %q: %v", action, err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_MemoryDriverNeedsNoAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "memory"
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error for memory driver: %v", err)
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "postgres"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Database.Driver != "redis" {
		t.Errorf("expected driver=redis, got %q", cfg.Database.Driver)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default model, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected Dimensions=1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.Retry.MaxAttempts != 3 || cfg.Embedding.Retry.BaseDelaySec != 2 {
		t.Errorf("unexpected retry defaults: %+v", cfg.Embedding.Retry)
	}
	if cfg.Embedding.Cache.Capacity != 1024 || cfg.Embedding.Cache.TTLSec != 300 {
		t.Errorf("unexpected cache defaults: %+v", cfg.Embedding.Cache)
	}
	if cfg.Embedding.Breaker.FailureThreshold != 5 || cfg.Embedding.Breaker.CooldownSec != 60 {
		t.Errorf("unexpected breaker defaults: %+v", cfg.Embedding.Breaker)
	}
	if cfg.Search.DefaultTopK != 5 || cfg.Search.MaxTopK != 20 || cfg.Search.CandidateK != 50 {
		t.Errorf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Indexer.ChunkSize != 100 || cfg.Indexer.MaxConsecutiveFailures != 10 {
		t.Errorf("unexpected indexer defaults: %+v", cfg.Indexer)
	}
	if cfg.Storage.IndexPath != "data/index.db" {
		t.Errorf("expected IndexPath='data/index.db', got %q", cfg.Storage.IndexPath)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{Driver: "memory", ReadinessTimeout: 15},
		Indexer:  IndexerConfig{ChunkSize: 25, Workers: 2},
		Storage:  StorageConfig{IndexPath: "/var/lib/catrec/index.db"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("expected driver=memory, got %q", cfg.Database.Driver)
	}
	if cfg.Indexer.ChunkSize != 25 || cfg.Indexer.Workers != 2 {
		t.Errorf("unexpected indexer values: %+v", cfg.Indexer)
	}
	if cfg.Storage.IndexPath != "/var/lib/catrec/index.db" {
		t.Errorf("expected custom IndexPath, got %q", cfg.Storage.IndexPath)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CATREC_TEST_KEY", "sk-abc")
	os.Unsetenv("CATREC_TEST_MISSING")

	in := []byte("api_key: ${CATREC_TEST_KEY}\nmodel: ${CATREC_TEST_MISSING:-text-embedding-3-small}\n")
	out := string(expandEnvVars(in))

	want := "api_key: sk-abc\nmodel: text-embedding-3-small\n"
	if out != want {
		t.Errorf("unexpected expansion:\ngot:  %q\nwant: %q", out, want)
	}
}
