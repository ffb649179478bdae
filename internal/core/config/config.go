package config

import (
	"time"

	redisclient "github.com/vietddude/georetry/internal/infra/redis"
	"github.com/vietddude/georetry/internal/infra/catalog"
	"github.com/vietddude/georetry/internal/infra/endpoint"
	"github.com/vietddude/georetry/internal/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Account  AccountConfig      `yaml:"account"`
	Retry    RetryConfig        `yaml:"retry"`
	Session  SessionConfig      `yaml:"session"`
	Catalog  CatalogConfig      `yaml:"catalog"`
	Redis    redisclient.Config `yaml:"redis"`
	Database catalog.Config     `yaml:"database"`
}

// ServerConfig holds health server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// AccountConfig describes the database account and how it is reached.
type AccountConfig struct {
	Endpoint             string        `yaml:"endpoint"`
	Transport            string        `yaml:"transport"` // http, grpc
	PreferredLocations   []string      `yaml:"preferred_locations"`
	EnableDiscovery      *bool         `yaml:"enable_endpoint_discovery"`
	RefreshInterval      time.Duration `yaml:"refresh_interval"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	UnavailabilityExpiry time.Duration `yaml:"unavailability_expiry"`
}

// DiscoveryEnabled reports whether regional endpoints are discovered from
// the account. Defaults to true.
func (a AccountConfig) DiscoveryEnabled() bool {
	return a.EnableDiscovery == nil || *a.EnableDiscovery
}

// RetryConfig holds retry budgets.
type RetryConfig struct {
	MaxAttempts int            `yaml:"max_attempts"`
	Failover    FailoverConfig `yaml:"failover"`
	Throttle    ThrottleConfig `yaml:"throttle"`
}

type FailoverConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type ThrottleConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	MaxWaitTime time.Duration `yaml:"max_wait_time"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// SessionConfig selects the session token store.
type SessionConfig struct {
	Backend string        `yaml:"backend"` // memory, redis
	TTL     time.Duration `yaml:"ttl"`
}

// CatalogConfig seeds the in-memory collection catalog, used when no
// database is configured.
type CatalogConfig struct {
	Collections map[string]string `yaml:"collections"` // link -> resource id
}

// RetryOptions converts the retry section for the retry package.
func (c *AppConfig) RetryOptions() retry.Options {
	return retry.Options{
		MaxAttempts: c.Retry.MaxAttempts,
		Failover: retry.FailoverOptions{
			Enabled:       c.Account.DiscoveryEnabled(),
			MaxRetries:    c.Retry.Failover.MaxRetries,
			RetryInterval: c.Retry.Failover.RetryInterval,
		},
		Throttle: retry.ThrottleOptions{
			MaxAttempts: c.Retry.Throttle.MaxAttempts,
			MaxWaitTime: c.Retry.Throttle.MaxWaitTime,
			BaseDelay:   c.Retry.Throttle.BaseDelay,
			MaxDelay:    c.Retry.Throttle.MaxDelay,
		},
	}
}

// EndpointOptions converts the account section for the endpoint manager.
func (c *AppConfig) EndpointOptions() endpoint.Options {
	return endpoint.Options{
		DefaultEndpoint:      c.Account.Endpoint,
		PreferredLocations:   c.Account.PreferredLocations,
		EnableDiscovery:      c.Account.DiscoveryEnabled(),
		RefreshInterval:      c.Account.RefreshInterval,
		RequestTimeout:       c.Account.RequestTimeout,
		UnavailabilityExpiry: c.Account.UnavailabilityExpiry,
	}
}
