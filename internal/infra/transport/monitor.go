package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/core/failure"
)

// EndpointStatus is the observed state of one regional endpoint.
type EndpointStatus int

const (
	EndpointHealthy     EndpointStatus = iota // Responding normally
	EndpointDegraded                          // Slow but working
	EndpointThrottled                         // Returning 429s
	EndpointUnreachable                       // Recent connectivity errors
)

func (s EndpointStatus) String() string {
	switch s {
	case EndpointDegraded:
		return "degraded"
	case EndpointThrottled:
		return "throttled"
	case EndpointUnreachable:
		return "unreachable"
	default:
		return "healthy"
	}
}

// EndpointStats holds what was observed for an endpoint.
type EndpointStats struct {
	Endpoint          string
	Status            EndpointStatus
	AverageLatency    time.Duration
	Requests          int
	Throttled         int
	ConnectivityFails int
	LastFailure       time.Time
}

type endpointWindow struct {
	latencies     []time.Duration
	requests      int
	throttled     int
	connectivity  int
	lastThrottle  time.Time
	lastConnFail  time.Time
	lastFailureAt time.Time
}

// Monitor records per-endpoint outcomes of the attempts it observes.
type Monitor struct {
	mu        sync.RWMutex
	endpoints map[string]*endpointWindow

	latencyWindow int
	slowThreshold time.Duration
	coolDown      time.Duration
	now           func() time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{
		endpoints:     make(map[string]*endpointWindow),
		latencyWindow: 100,
		slowThreshold: 3 * time.Second,
		coolDown:      time.Minute,
		now:           time.Now,
	}
}

// Record stores the outcome of one attempt against endpoint.
func (m *Monitor) Record(endpoint string, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.endpoints[endpoint]
	if !ok {
		w = &endpointWindow{latencies: make([]time.Duration, 0, m.latencyWindow)}
		m.endpoints[endpoint] = w
	}
	now := m.now()
	w.requests++

	switch {
	case err == nil:
		w.latencies = append(w.latencies, latency)
		if len(w.latencies) > m.latencyWindow {
			w.latencies = w.latencies[1:]
		}
	case failure.IsConnectivity(err):
		w.connectivity++
		w.lastConnFail = now
		w.lastFailureAt = now
	case failure.IsThrottled(err):
		w.throttled++
		w.lastThrottle = now
		w.lastFailureAt = now
	default:
		w.lastFailureAt = now
	}
}

func (m *Monitor) status(w *endpointWindow, now time.Time) EndpointStatus {
	if !w.lastConnFail.IsZero() && now.Sub(w.lastConnFail) < m.coolDown {
		return EndpointUnreachable
	}
	if !w.lastThrottle.IsZero() && now.Sub(w.lastThrottle) < m.coolDown {
		return EndpointThrottled
	}
	if len(w.latencies) > 10 && average(w.latencies) > m.slowThreshold {
		return EndpointDegraded
	}
	return EndpointHealthy
}

func average(ls []time.Duration) time.Duration {
	if len(ls) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range ls {
		total += l
	}
	return total / time.Duration(len(ls))
}

// Stats returns a snapshot sorted by endpoint.
func (m *Monitor) Stats() []EndpointStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]EndpointStats, 0, len(m.endpoints))
	for ep, w := range m.endpoints {
		out = append(out, EndpointStats{
			Endpoint:          ep,
			Status:            m.status(w, now),
			AverageLatency:    average(w.latencies),
			Requests:          w.requests,
			Throttled:         w.throttled,
			ConnectivityFails: w.connectivity,
			LastFailure:       w.lastFailureAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// Health fails when every observed endpoint is unreachable.
func (m *Monitor) Health(_ context.Context) error {
	stats := m.Stats()
	if len(stats) == 0 {
		return nil
	}
	var errs []error
	for _, s := range stats {
		if s.Status != EndpointUnreachable {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s unreachable", s.Endpoint))
	}
	return errors.Join(errs...)
}

// Sender is the transport surface the monitor wraps.
type Sender interface {
	Send(ctx context.Context, req *domain.Request) (*domain.Response, error)
}

// MonitoredSender records every attempt of the wrapped sender.
type MonitoredSender struct {
	next            Sender
	monitor         *Monitor
	defaultEndpoint string
}

func NewMonitoredSender(next Sender, monitor *Monitor, defaultEndpoint string) *MonitoredSender {
	return &MonitoredSender{next: next, monitor: monitor, defaultEndpoint: defaultEndpoint}
}

func (s *MonitoredSender) Send(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	endpoint := s.defaultEndpoint
	if req.Context != nil && req.Context.LocationEndpoint != "" {
		endpoint = req.Context.LocationEndpoint
	}
	start := time.Now()
	resp, err := s.next.Send(ctx, req)
	if ctx.Err() == nil {
		s.monitor.Record(endpoint, time.Since(start), err)
	}
	return resp, err
}
