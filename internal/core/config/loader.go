package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/georetry/internal/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables first,
// and fills in defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Account.Transport == "" {
		cfg.Account.Transport = "http"
	}
	if cfg.Account.RefreshInterval == 0 {
		cfg.Account.RefreshInterval = 5 * time.Minute
	}
	if cfg.Account.RequestTimeout == 0 {
		cfg.Account.RequestTimeout = 10 * time.Second
	}
	if cfg.Account.UnavailabilityExpiry == 0 {
		cfg.Account.UnavailabilityExpiry = 5 * time.Minute
	}

	d := retry.DefaultOptions()
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = d.MaxAttempts
	}
	if cfg.Retry.Failover.MaxRetries == 0 {
		cfg.Retry.Failover.MaxRetries = d.Failover.MaxRetries
	}
	if cfg.Retry.Failover.RetryInterval == 0 {
		cfg.Retry.Failover.RetryInterval = d.Failover.RetryInterval
	}
	if cfg.Retry.Throttle.MaxAttempts == 0 {
		cfg.Retry.Throttle.MaxAttempts = d.Throttle.MaxAttempts
	}
	if cfg.Retry.Throttle.MaxWaitTime == 0 {
		cfg.Retry.Throttle.MaxWaitTime = d.Throttle.MaxWaitTime
	}
	if cfg.Retry.Throttle.BaseDelay == 0 {
		cfg.Retry.Throttle.BaseDelay = d.Throttle.BaseDelay
	}
	if cfg.Retry.Throttle.MaxDelay == 0 {
		cfg.Retry.Throttle.MaxDelay = d.Throttle.MaxDelay
	}

	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
}

// Validate checks settings that have no usable default.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Account.Endpoint == "" {
		errs = append(errs, errors.New("account.endpoint is required"))
	}
	switch c.Account.Transport {
	case "http", "grpc":
	default:
		errs = append(errs, fmt.Errorf("account.transport: unknown transport %q", c.Account.Transport))
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis session backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend: unknown backend %q", c.Session.Backend))
	}
	if d := c.Database.Driver; d != "" && d != "pgx" && d != "postgres" {
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", d))
	}
	return errors.Join(errs...)
}
