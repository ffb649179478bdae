// Package control assembles the retrying client from configuration.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/georetry/internal/core/config"
	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/health"
	"github.com/vietddude/georetry/internal/infra/catalog"
	"github.com/vietddude/georetry/internal/infra/endpoint"
	redisclient "github.com/vietddude/georetry/internal/infra/redis"
	"github.com/vietddude/georetry/internal/infra/session"
	"github.com/vietddude/georetry/internal/infra/transport"
	"github.com/vietddude/georetry/internal/retry"
)

// GRPCService is the service the gRPC transport invokes operations on.
const GRPCService = "georetry.v1.Documents"

// Client executes requests against a multi-region account, retrying the
// failures the policy chain knows how to recover from.
type Client struct {
	cfg          *config.AppConfig
	executor     *retry.Executor
	factory      *retry.Factory
	endpoints    *endpoint.Manager
	resolver     *catalog.Resolver
	sessions     retry.SessionStore
	memCatalog   *catalog.MemorySource
	healthMon    *health.Monitor
	healthServer *health.Server
	db           *sqlx.DB
	redisClient  *redisclient.Client
	grpc         *transport.GRPCTransport
	transportMon *transport.Monitor
	cancel       context.CancelFunc
	log          *slog.Logger
}

// NewClient creates a Client with all dependencies initialized.
func NewClient(ctx context.Context, cfg *config.AppConfig) (_ *Client, err error) {
	c := &Client{
		cfg:       cfg,
		healthMon: health.NewMonitor(3*time.Second, time.Second),
		log:       slog.Default().With("component", "client"),
	}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	// 1. Session store
	switch cfg.Session.Backend {
	case "redis":
		c.redisClient, err = redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		c.sessions = session.NewRedisStore(c.redisClient.Redis(), cfg.Session.TTL)
		c.healthMon.Register("redis", c.redisClient.Ping, false)
		c.log.Info("Using Redis session store")
	default:
		c.sessions = session.NewMemoryStore()
		c.log.Info("Using Memory session store")
	}

	// 2. Collection catalog
	var source catalog.Source
	if cfg.Database.URL != "" {
		c.db, err = catalog.OpenDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if cfg.Database.Migrate {
			if err = catalog.Migrate(ctx, c.db.DB); err != nil {
				return nil, fmt.Errorf("failed to migrate db: %w", err)
			}
		}
		pg := catalog.NewPostgresSource(c.db, cfg.Database.Table)
		c.healthMon.Register("postgres", pg.Health, true)
		source = pg
		c.log.Info("Using PostgreSQL catalog")
	} else {
		c.memCatalog = catalog.NewMemorySource()
		for link, rid := range cfg.Catalog.Collections {
			c.memCatalog.Put(link, domain.ContainerIdentity(rid))
		}
		source = c.memCatalog
		c.log.Info("Using Memory catalog", "collections", len(cfg.Catalog.Collections))
	}
	c.resolver = catalog.NewResolver(source, cfg.Account.RequestTimeout, nil)

	// 3. Endpoints
	reader := endpoint.NewHTTPAccountReader(cfg.Account.Endpoint, cfg.Account.RequestTimeout)
	c.endpoints = endpoint.NewManager(reader, cfg.EndpointOptions(), nil)
	c.healthMon.Register("endpoints", c.endpoints.Health, true)

	// 4. Transport
	var sender retry.Sender
	switch cfg.Account.Transport {
	case "grpc":
		c.grpc = transport.NewGRPCTransport(cfg.Account.Endpoint, transport.StructHandler(GRPCService))
		sender = c.grpc
	default:
		sender = transport.NewHTTPTransport(cfg.Account.Endpoint, cfg.Account.RequestTimeout, nil)
	}
	c.transportMon = transport.NewMonitor()
	sender = transport.NewMonitoredSender(sender, c.transportMon, cfg.Account.Endpoint)
	c.healthMon.Register("transport", c.transportMon.Health, false)

	// 5. Retry core
	c.factory = retry.NewFactory(c.endpoints, c.resolver, c.sessions, cfg.RetryOptions(), nil)
	c.executor = retry.NewExecutor(c.factory, sender, nil)

	return c, nil
}

// Execute runs one logical request to completion.
func (c *Client) Execute(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	return c.executor.Execute(ctx, req)
}

// Health returns the monitor that aggregates component checks.
func (c *Client) Health() *health.Monitor {
	return c.healthMon
}

// EndpointStats returns what was observed for each regional endpoint.
func (c *Client) EndpointStats() []transport.EndpointStats {
	return c.transportMon.Stats()
}

// Start begins endpoint discovery and, when serveHealth is set, the health
// server.
func (c *Client) Start(ctx context.Context, serveHealth bool) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.endpoints.Start(ctx)

	if !serveHealth {
		return nil
	}
	c.healthServer = health.NewServer(c.healthMon, ":"+strconv.Itoa(c.cfg.Server.Port))
	go func() {
		if err := c.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("Health server failed", "error", err)
		}
	}()
	c.log.Info("Health server started", "port", c.cfg.Server.Port)
	return nil
}

// Stop shuts down background work and releases resources.
func (c *Client) Stop(ctx context.Context) error {
	var errs []error
	if c.healthServer != nil {
		if err := c.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health server: %w", err))
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	errs = append(errs, c.Close())
	return errors.Join(errs...)
}

// Close releases connections without waiting for in-flight work.
func (c *Client) Close() error {
	var errs []error
	if c.endpoints != nil {
		c.endpoints.Stop()
	}
	if c.grpc != nil {
		errs = append(errs, c.grpc.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	if c.redisClient != nil {
		errs = append(errs, c.redisClient.Close())
	}
	return errors.Join(errs...)
}
