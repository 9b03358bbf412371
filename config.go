package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ServerConfig holds the HTTP-facing identity of this instance: the
// scheme/hostname activities are minted under, plus the local actors
// to provision on startup. Full sign-up/provisioning is out of scope
// (SPEC_FULL.md section 1's external collaborators); this is the
// minimal static bootstrap needed for the module to be runnable.
type ServerConfig struct {
	Scheme      string
	Hostname    string
	LocalActors []string `toml:"local_actors"`
}

// StoreConfig selects and configures the C2 activity store backend.
// An empty Postgres.DSN means run on the in-memory store, the local
// dev / test default.
type StoreConfig struct {
	Postgres struct {
		DSN string `toml:"dsn"`
	}
}

// CacheConfig configures the actor resolver's optional redis tier. An
// empty Addr means run local-cache-only.
type CacheConfig struct {
	Redis struct {
		Addr string `toml:"addr"`
	}
}

// DeliveryConfig sizes the C8 worker pool and its outbound HTTP client.
type DeliveryConfig struct {
	Workers        int `toml:"workers"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Config is the config object decoded from toml, then overlaid with
// environment variables for anything the toml file left unset.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Cache    CacheConfig
	Delivery DeliveryConfig
}

func defaultConfig() Config {
	return Config{
		Delivery: DeliveryConfig{
			Workers:        4,
			TimeoutSeconds: 30,
		},
	}
}

// LoadConfig loads a config at configPath, then applies TURNOVER_SCHEME
// and TURNOVER_HOSTNAME (and friends) overrides from the environment,
// loaded through godotenv from a .env file if present, for anything
// the toml file left unset. The toml file wins when both are present.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	conf := defaultConfig()
	md, err := toml.DecodeFile(configPath, &conf)
	if err != nil {
		return nil, err
	}

	undecoded := md.Undecoded()
	if len(undecoded) != 0 {
		return nil, fmt.Errorf("these config fields are unused: %q", undecoded)
	}

	if conf.Server.Scheme == "" {
		conf.Server.Scheme = os.Getenv("TURNOVER_SCHEME")
	}
	if conf.Server.Hostname == "" {
		conf.Server.Hostname = os.Getenv("TURNOVER_HOSTNAME")
	}
	if conf.Store.Postgres.DSN == "" {
		conf.Store.Postgres.DSN = os.Getenv("TURNOVER_POSTGRES_DSN")
	}
	if conf.Cache.Redis.Addr == "" {
		conf.Cache.Redis.Addr = os.Getenv("TURNOVER_REDIS_ADDR")
	}
	if n, err := strconv.Atoi(os.Getenv("TURNOVER_DELIVERY_WORKERS")); err == nil && n > 0 {
		conf.Delivery.Workers = n
	}

	if err := ValidateConfig(conf); err != nil {
		return nil, err
	}

	return &conf, nil
}

// ValidateConfig validates a Config.
func ValidateConfig(conf Config) error {
	if conf.Server.Hostname == "" {
		return fmt.Errorf("no hostname given")
	}
	if conf.Server.Scheme == "" {
		return fmt.Errorf("no scheme given")
	}
	if conf.Delivery.Workers < 1 {
		return fmt.Errorf("delivery.workers must be at least 1")
	}
	return nil
}

// BaseURL returns the scheme://hostname prefix every local IRI is
// minted from.
func (c Config) BaseURL() string {
	return c.Server.Scheme + "://" + c.Server.Hostname
}
