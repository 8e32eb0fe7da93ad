package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds the service configuration, loadable from environment variables
// (COUPON_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string   `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage        string   `default:"memory" usage:"Storage backend: memory or postgres"`
	DatabaseURL    string   `usage:"PostgreSQL connection URL (COUPON_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Seed           bool     `default:"false" usage:"Load demo coupons into an empty catalog on start"`
	AdminKeyHashes []string `usage:"Hex SHA-256 hashes of accepted admin keys" flag:"admin-key-hashes"`
	Reservation    ReservationConfig
	RateLimit      RateLimitConfig
	Graceful       GracefulConfig
}

// ReservationConfig controls checkout reservations.
type ReservationConfig struct {
	TTL time.Duration `default:"2m" usage:"How long a reservation token stays valid"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"20" usage:"Sustained requests per second per client"`
	Burst int     `default:"40" usage:"Bucket size per client"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads configuration from the environment, flags and YAML files,
// then applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "COUPON",
		Files:     []string{"config.yaml", "/etc/coupon/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults honours DATABASE_URL and PORT as set by hosting
// platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for postgres storage: set COUPON_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.Reservation.TTL <= 0 {
		return errors.New("reservation TTL must be positive")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit RPS and burst must be positive")
	}
	return nil
}
