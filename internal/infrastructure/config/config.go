package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/deribit_gateway/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	EnvClientID     = "CLIENT_ID"
	EnvClientSecret = "CLIENT_SECRET"
	EnvUseTestnet   = "USE_TESTNET"
)

type Config struct {
	Exchange struct {
		Network          string `yaml:"network"`
		ClientID         string `yaml:"client_id"`
		ClientSecret     string `yaml:"client_secret"`
		Transport        string `yaml:"transport"`
		RESTEndpoint     string `yaml:"rest_endpoint"`
		WSEndpoint       string `yaml:"ws_endpoint"`
		RequestTimeoutMs int    `yaml:"request_timeout_ms"`
		RateLimit        struct {
			PerSecond float64 `yaml:"per_second"`
			Burst     int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		Retry struct {
			MaxAttempts       int     `yaml:"max_attempts"`
			InitialIntervalMs int     `yaml:"initial_interval_ms"`
			MaxIntervalMs     int     `yaml:"max_interval_ms"`
			Multiplier        float64 `yaml:"multiplier"`
			Jitter            float64 `yaml:"jitter"`
			AttemptTimeoutMs  int     `yaml:"attempt_timeout_ms"`
		} `yaml:"retry"`
	} `yaml:"exchange"`
	Auth struct {
		SafetyMarginSeconds    int `yaml:"safety_margin_seconds"`
		ExchangeTimeoutSeconds int `yaml:"exchange_timeout_seconds"`
	} `yaml:"auth"`
	SpecCache struct {
		TTLSeconds          int             `yaml:"ttl_seconds"`
		FetchTimeoutSeconds int             `yaml:"fetch_timeout_seconds"`
		Prewarm             []PrewarmTarget `yaml:"prewarm"`
	} `yaml:"spec_cache"`
	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`
	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
}

// PrewarmTarget is one currency+kind batch loaded into the spec cache at start.
type PrewarmTarget struct {
	Currency string `yaml:"currency"`
	Kind     string `yaml:"kind"`
}

// Default returns a configuration that talks to the test network over HTTP.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path (skipped when path is empty), then the
// .env files, then the process environment. Later sources win.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvClientID); v != "" {
		c.Exchange.ClientID = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		c.Exchange.ClientSecret = v
	}
	if v := os.Getenv(EnvUseTestnet); v != "" {
		testnet, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvUseTestnet, err)
		}
		if testnet {
			c.Exchange.Network = string(domain.NetworkTest)
		} else {
			c.Exchange.Network = string(domain.NetworkMain)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Exchange.Network == "" {
		c.Exchange.Network = string(domain.NetworkTest)
	}
	if c.Exchange.Transport == "" {
		c.Exchange.Transport = "http"
	}
	if c.Exchange.RequestTimeoutMs <= 0 {
		c.Exchange.RequestTimeoutMs = 15000
	}
	r := &c.Exchange.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}
	if r.InitialIntervalMs <= 0 {
		r.InitialIntervalMs = 200
	}
	if r.MaxIntervalMs <= 0 {
		r.MaxIntervalMs = 2000
	}
	if r.Multiplier <= 0 {
		r.Multiplier = 2
	}
	if r.Jitter <= 0 {
		r.Jitter = 0.5
	}
	if r.AttemptTimeoutMs <= 0 {
		r.AttemptTimeoutMs = 10000
	}
	if c.Auth.SafetyMarginSeconds <= 0 {
		c.Auth.SafetyMarginSeconds = 30
	}
	if c.Auth.ExchangeTimeoutSeconds <= 0 {
		c.Auth.ExchangeTimeoutSeconds = 15
	}
	if c.SpecCache.TTLSeconds <= 0 {
		c.SpecCache.TTLSeconds = 300
	}
	if c.SpecCache.FetchTimeoutSeconds <= 0 {
		c.SpecCache.FetchTimeoutSeconds = 15
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}

func (c *Config) Validate() error {
	if _, err := domain.ParseNetwork(c.Exchange.Network); err != nil {
		return err
	}
	switch c.Exchange.Transport {
	case "http", "ws":
	default:
		return fmt.Errorf("exchange.transport must be http or ws, got %q", c.Exchange.Transport)
	}
	if c.Exchange.Retry.Jitter >= 1 {
		return fmt.Errorf("exchange.retry.jitter must be below 1")
	}
	if c.Exchange.Retry.Multiplier < 1 {
		return fmt.Errorf("exchange.retry.multiplier must be at least 1")
	}
	for _, p := range c.SpecCache.Prewarm {
		if p.Currency == "" {
			return fmt.Errorf("spec_cache.prewarm entries need a currency")
		}
	}
	return nil
}

func (c *Config) Network() domain.Network {
	n, err := domain.ParseNetwork(c.Exchange.Network)
	if err != nil {
		return domain.NetworkTest
	}
	return n
}

// Credentials builds the client-credentials pair. Missing values are an
// error only for callers that need private methods.
func (c *Config) Credentials() (domain.Credentials, error) {
	return domain.NewCredentials(c.Exchange.ClientID, c.Exchange.ClientSecret, c.Network())
}

func (c *Config) RESTEndpoint() string {
	if c.Exchange.RESTEndpoint != "" {
		return c.Exchange.RESTEndpoint
	}
	return c.Network().RESTEndpoint()
}

func (c *Config) WSEndpoint() string {
	if c.Exchange.WSEndpoint != "" {
		return c.Exchange.WSEndpoint
	}
	return c.Network().WSEndpoint()
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Exchange.RequestTimeoutMs) * time.Millisecond
}

func (c *Config) SpecTTL() time.Duration {
	return time.Duration(c.SpecCache.TTLSeconds) * time.Second
}

func (c *Config) SpecFetchTimeout() time.Duration {
	return time.Duration(c.SpecCache.FetchTimeoutSeconds) * time.Second
}

func (c *Config) SafetyMargin() time.Duration {
	return time.Duration(c.Auth.SafetyMarginSeconds) * time.Second
}

func (c *Config) ExchangeTimeout() time.Duration {
	return time.Duration(c.Auth.ExchangeTimeoutSeconds) * time.Second
}
