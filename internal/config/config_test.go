package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Errorf("unexpected drivers %q %q", cfg.Storage.Driver, cfg.Queue.Driver)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.OwnerHeader != "X-Owner-ID" {
		t.Errorf("unexpected http defaults %+v", cfg.HTTP)
	}
	if cfg.Search.Timeout != 30*time.Second || cfg.Search.BaseURL != "https://www.google.com" {
		t.Errorf("unexpected search defaults %+v", cfg.Search)
	}
	if cfg.Queue.Concurrency != 4 || cfg.Queue.MaxAttempts != 3 {
		t.Errorf("unexpected queue defaults %+v", cfg.Queue)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KWSCOUT_STORAGE_DRIVER", "sqlite")
	t.Setenv("KWSCOUT_STORAGE_PATH", "/tmp/kw.db")
	t.Setenv("KWSCOUT_SEARCH_TIMEOUT", "5s")
	t.Setenv("KWSCOUT_QUEUE_CONCURRENCY", "8")
	t.Setenv("KWSCOUT_SEARCH_PROXIES", "http://a:1,http://b:2")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/tmp/kw.db" {
		t.Errorf("env storage not applied: %+v", cfg.Storage)
	}
	if cfg.Search.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Search.Timeout)
	}
	if cfg.Queue.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Queue.Concurrency)
	}
	if len(cfg.Search.Proxies) != 2 {
		t.Errorf("expected 2 proxies, got %v", cfg.Search.Proxies)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kwscout.yaml")
	content := `
log:
  level: debug
  format: json
storage:
  driver: json
  path: keywords.ndjson
search:
  region: us
  requests_per_second: 0.5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if cfg.Storage.Driver != "json" || cfg.Storage.Path != "keywords.ndjson" {
		t.Errorf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Search.Region != "us" || cfg.Search.RequestsPerSecond != 0.5 {
		t.Errorf("unexpected search config %+v", cfg.Search)
	}
	// Untouched keys keep defaults.
	if cfg.Queue.Driver != "memory" {
		t.Errorf("expected default queue driver, got %q", cfg.Queue.Driver)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_FlagPrecedence(t *testing.T) {
	t.Setenv("KWSCOUT_HTTP_ADDR", ":7000")
	v := viper.New()
	v.Set("http.addr", ":9000")

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("explicit value must win over env, got %s", cfg.HTTP.Addr)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(viper.New(), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown storage", func(c *Config) { c.Storage.Driver = "cassandra" }, "storage.driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"mongo without uri", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.mongo_uri"},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = "sqlite"; c.Storage.Path = "" }, "storage.path"},
		{"unknown queue", func(c *Config) { c.Queue.Driver = "kafka" }, "queue.driver"},
		{"zero concurrency", func(c *Config) { c.Queue.Concurrency = 0 }, "queue.concurrency"},
		{"negative rps", func(c *Config) { c.Search.RequestsPerSecond = -1 }, "requests_per_second"},
		{"jitter too large", func(c *Config) { c.Search.Jitter = 2 }, "search.jitter"},
		{"zero timeout", func(c *Config) { c.Search.Timeout = 0 }, "search.timeout"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
