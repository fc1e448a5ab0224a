// Package config loads broker settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheTiered = "tiered"
)

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReusePort       bool          `env:"HTTP_REUSEPORT"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	AuthHeader      string        `env:"AUTH_ID_HEADER" envDefault:"X-Auth-ID"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	// StoreBackend selects the storage variant; empty means postgres when DatabaseURL
	// is set, sqlite otherwise.
	StoreBackend string `env:"STORE_BACKEND"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"data/authids.db"`

	DatabaseURL        string        `env:"DATABASE_URL"`
	PoolMinSize        int32         `env:"DB_POOL_MIN_SIZE" envDefault:"1"`
	PoolMaxSize        int32         `env:"DB_POOL_MAX_SIZE" envDefault:"5"`
	PoolAcquireTimeout time.Duration `env:"DB_POOL_ACQUIRE_TIMEOUT" envDefault:"5s"`

	IDFormat string `env:"ID_FORMAT" envDefault:"token"`

	VerifyCache    string        `env:"VERIFY_CACHE" envDefault:"none"`
	VerifyCacheTTL time.Duration `env:"VERIFY_CACHE_TTL" envDefault:"30s"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB"`
}

// Load reads an optional dotenv file, then the environment. Variables already set in
// the environment win over the file.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
		if _, err := os.Stat(envFile); err != nil {
			envFile = ""
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	if c.StoreBackend == "" {
		c.StoreBackend = BackendSQLite
		if c.DatabaseURL != "" {
			c.StoreBackend = BackendPostgres
		}
	}
	c.VerifyCache = strings.ToLower(strings.TrimSpace(c.VerifyCache))
	if c.VerifyCache == "" {
		c.VerifyCache = CacheNone
	}

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
		if c.PoolMaxSize < 1 {
			errs = append(errs, fmt.Errorf("DB_POOL_MAX_SIZE must be at least 1, got %d", c.PoolMaxSize))
		}
		if c.PoolMinSize < 0 || c.PoolMinSize > c.PoolMaxSize {
			errs = append(errs, fmt.Errorf("DB_POOL_MIN_SIZE must be between 0 and %d, got %d", c.PoolMaxSize, c.PoolMinSize))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.IDFormat {
	case "token", "uuid":
	default:
		errs = append(errs, fmt.Errorf("unknown ID_FORMAT %q", c.IDFormat))
	}

	switch c.VerifyCache {
	case CacheNone:
	case CacheMemory, CacheRedis, CacheTiered:
		if c.VerifyCacheTTL <= 0 {
			errs = append(errs, errors.New("VERIFY_CACHE_TTL must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VERIFY_CACHE %q", c.VerifyCache))
	}

	if strings.TrimSpace(c.AuthHeader) == "" {
		errs = append(errs, errors.New("AUTH_ID_HEADER cannot be empty"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL onto slog levels, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
