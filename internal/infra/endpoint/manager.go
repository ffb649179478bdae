// Package endpoint tracks the regional endpoints of the database account and
// decides where each attempt is sent.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/metrics"
)

var ErrNoEndpoints = errors.New("no regional endpoints available")

// Options configures a Manager.
type Options struct {
	DefaultEndpoint      string
	PreferredLocations   []string
	EnableDiscovery      bool
	RefreshInterval      time.Duration
	RequestTimeout       time.Duration
	UnavailabilityExpiry time.Duration
}

// Manager ranks regional endpoints and refreshes them from the account.
type Manager struct {
	reader AccountReader
	cache  *LocationCache
	opts   Options
	log    *slog.Logger

	group singleflight.Group

	mu          sync.RWMutex
	lastRefresh time.Time
	lastErr     error

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewManager(reader AccountReader, opts Options, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Minute
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Manager{
		reader: reader,
		cache:  NewLocationCache(opts.DefaultEndpoint, opts.PreferredLocations, opts.UnavailabilityExpiry),
		opts:   opts,
		log:    log.With("component", "endpoint"),
		stopCh: make(chan struct{}),
	}
}

// Cache exposes the location cache.
func (m *Manager) Cache() *LocationCache {
	return m.cache
}

// ResolveServiceEndpoint returns the endpoint at the request's route index
// for its operation class, wrapping around the ranked list.
func (m *Manager) ResolveServiceEndpoint(req *domain.Request) string {
	var endpoints []string
	if req.IsReadOnly() {
		endpoints = m.cache.ReadEndpoints()
	} else {
		endpoints = m.cache.WriteEndpoints()
	}
	if len(endpoints) == 0 {
		return ""
	}
	idx := 0
	if req.Context != nil && req.Context.RouteToLocationIndex > 0 {
		idx = req.Context.RouteToLocationIndex % len(endpoints)
	}
	return endpoints[idx]
}

func (m *Manager) MarkEndpointUnavailableForRead(endpoint string) {
	m.log.Warn("Endpoint unavailable for reads", "endpoint", endpoint)
	m.cache.MarkUnavailableForRead(endpoint)
	m.reportUnavailable()
}

func (m *Manager) MarkEndpointUnavailableForWrite(endpoint string) {
	m.log.Warn("Endpoint unavailable for writes", "endpoint", endpoint)
	m.cache.MarkUnavailableForWrite(endpoint)
	m.reportUnavailable()
}

func (m *Manager) reportUnavailable() {
	read, write := m.cache.UnavailableCount()
	metrics.EndpointsUnavailable.WithLabelValues("read").Set(float64(read))
	metrics.EndpointsUnavailable.WithLabelValues("write").Set(float64(write))
}

// RefreshLocation re-reads the account topology. Concurrent refreshes with
// the same hint share one read. With discovery disabled it is a no-op.
func (m *Manager) RefreshLocation(ctx context.Context, hint string) error {
	if !m.opts.EnableDiscovery {
		return nil
	}

	ch := m.group.DoChan("refresh:"+hint, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RequestTimeout)
		defer cancel()

		acct, err := m.reader.ReadAccount(readCtx)
		m.mu.Lock()
		m.lastErr = err
		if err == nil {
			m.lastRefresh = time.Now()
		}
		m.mu.Unlock()

		if err != nil {
			metrics.EndpointRefreshesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		m.cache.Update(acct, hint)
		metrics.EndpointRefreshesTotal.WithLabelValues("success").Inc()
		m.log.Debug("Refreshed regional endpoints",
			"hint", hint,
			"read", m.cache.ReadEndpoints(),
			"write", m.cache.WriteEndpoints(),
		)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("refresh locations: %w", res.Err)
		}
		return nil
	}
}

// Start performs an initial refresh and keeps refreshing in the background
// until Stop is called or ctx is done.
func (m *Manager) Start(ctx context.Context) {
	if !m.opts.EnableDiscovery {
		m.log.Info("Endpoint discovery disabled", "endpoint", m.opts.DefaultEndpoint)
		return
	}
	if err := m.RefreshLocation(ctx, ""); err != nil {
		m.log.Warn("Initial endpoint refresh failed, using default endpoint", "error", err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.opts.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				if err := m.RefreshLocation(ctx, ""); err != nil {
					m.log.Warn("Endpoint refresh failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the background refresh loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Health reports whether requests can be routed anywhere.
func (m *Manager) Health(_ context.Context) error {
	if len(m.cache.ReadEndpoints()) == 0 || len(m.cache.WriteEndpoints()) == 0 {
		return ErrNoEndpoints
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastErr != nil && m.lastRefresh.IsZero() {
		return fmt.Errorf("account never refreshed: %w", m.lastErr)
	}
	return nil
}

// LastRefresh returns the time of the last successful refresh.
func (m *Manager) LastRefresh() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRefresh
}
