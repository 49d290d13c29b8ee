// Package config loads kwscout settings from defaults, an optional config
// file, KWSCOUT_* environment variables and bound command flags.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable; nested keys use underscores,
// e.g. KWSCOUT_STORAGE_DRIVER.
const EnvPrefix = "KWSCOUT"

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Storage StorageConfig `mapstructure:"storage"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Search  SearchConfig  `mapstructure:"search"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	OwnerHeader  string        `mapstructure:"owner_header"`
	BodyLimit    int           `mapstructure:"body_limit"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// StorageConfig selects the keyword store. Path is used by the json and
// sqlite drivers, DSN by postgres, the Mongo fields by mongo.
type StorageConfig struct {
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	DSN             string `mapstructure:"dsn"`
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`
}

type QueueConfig struct {
	Driver      string `mapstructure:"driver"`
	Concurrency int    `mapstructure:"concurrency"`
	Buffer      int    `mapstructure:"buffer"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	RedisURL    string `mapstructure:"redis_url"`
	RedisKey    string `mapstructure:"redis_key"`
}

type SearchConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Language          string        `mapstructure:"language"`
	Region            string        `mapstructure:"region"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	Proxies           []string      `mapstructure:"proxies"`
	ProxyFile         string        `mapstructure:"proxy_file"`
	UserAgents        []string      `mapstructure:"user_agents"`
}

var (
	storageDrivers = []string{"memory", "json", "sqlite", "postgres", "mongo"}
	queueDrivers   = []string{"memory", "redis"}
)

// SetDefaults registers every key with its default. Env lookups only work for
// registered keys.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.owner_header", "X-Owner-ID")
	v.SetDefault("http.body_limit", 4*1024*1024)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "kwscout.db")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.mongo_uri", "")
	v.SetDefault("storage.mongo_database", "kwscout")
	v.SetDefault("storage.mongo_collection", "keywords")

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.buffer", 1024)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.redis_url", "redis://localhost:6379/0")
	v.SetDefault("queue.redis_key", "kwscout:jobs")

	v.SetDefault("search.base_url", "https://www.google.com")
	v.SetDefault("search.language", "en")
	v.SetDefault("search.region", "")
	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.fingerprint", "chrome")
	v.SetDefault("search.requests_per_second", 0.0)
	v.SetDefault("search.jitter", 0.0)
	v.SetDefault("search.max_body_bytes", 5<<20)
	v.SetDefault("search.proxies", []string{})
	v.SetDefault("search.proxy_file", "")
	v.SetDefault("search.user_agents", []string{})
}

// Load reads configuration into a Config. file may be empty. Flags bound to v
// before Load take precedence over everything else.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(storageDrivers, c.Storage.Driver) {
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q (want one of %s)", c.Storage.Driver, strings.Join(storageDrivers, ", ")))
	}
	switch c.Storage.Driver {
	case "json", "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver))
		}
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres driver"))
		}
	case "mongo":
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("storage.mongo_uri is required for the mongo driver"))
		}
	}

	if !slices.Contains(queueDrivers, c.Queue.Driver) {
		errs = append(errs, fmt.Errorf("queue.driver: unknown driver %q (want one of %s)", c.Queue.Driver, strings.Join(queueDrivers, ", ")))
	}
	if c.Queue.Concurrency <= 0 {
		errs = append(errs, errors.New("queue.concurrency must be positive"))
	}
	if c.Queue.Buffer <= 0 {
		errs = append(errs, errors.New("queue.buffer must be positive"))
	}
	if c.Queue.MaxAttempts <= 0 {
		errs = append(errs, errors.New("queue.max_attempts must be positive"))
	}

	if c.HTTP.BodyLimit <= 0 {
		errs = append(errs, errors.New("http.body_limit must be positive"))
	}
	if c.Search.Timeout <= 0 {
		errs = append(errs, errors.New("search.timeout must be positive"))
	}
	if c.Search.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("search.requests_per_second must not be negative"))
	}
	if c.Search.Jitter < 0 || c.Search.Jitter > 1 {
		errs = append(errs, errors.New("search.jitter must be between 0 and 1"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
