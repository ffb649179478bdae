package health

import (
	"context"
	"sync"
	"time"
)

type check struct {
	fn       CheckFunc
	critical bool
}

// Monitor aggregates health status from registered components.
type Monitor struct {
	mu         sync.Mutex
	checks     map[string]check
	timeout    time.Duration
	cacheFor   time.Duration
	lastCheck  time.Time
	lastReport HealthReport
}

// NewMonitor creates a monitor. Reports are reused for cacheFor.
func NewMonitor(timeout, cacheFor time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Monitor{
		checks:   make(map[string]check),
		timeout:  timeout,
		cacheFor: cacheFor,
	}
}

// Register adds a named check. A failing critical check makes the whole
// system critical; any other failing check only degrades it.
func (m *Monitor) Register(name string, fn CheckFunc, critical bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check{fn: fn, critical: critical}
	m.lastCheck = time.Time{}
}

// CheckHealth runs every check and aggregates the result, worst case wins.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cacheFor > 0 && !m.lastCheck.IsZero() && time.Since(m.lastCheck) < m.cacheFor {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.checks)),
	}

	for name, c := range m.checks {
		ch := ComponentHealth{Name: name, Status: StatusHealthy}

		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := c.fn(checkCtx)
		cancel()

		if err != nil {
			ch.Error = err.Error()
			ch.Status = StatusDegraded
			if c.critical {
				ch.Status = StatusCritical
			}
		}
		report.Components[name] = ch

		switch {
		case ch.Status == StatusCritical:
			report.SystemStatus = StatusCritical
		case ch.Status == StatusDegraded && report.SystemStatus == StatusHealthy:
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
