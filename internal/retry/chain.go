package retry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/metrics"
)

// Chain combines the policies of one request. Every policy is armed before
// each attempt in order; on failure the first policy that asks for a retry
// wins and the rest are not consulted.
type Chain struct {
	policies []Policy
	log      *slog.Logger
}

func NewChain(log *slog.Logger, policies ...Policy) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{policies: policies, log: log}
}

func (c *Chain) Name() string { return "chain" }

// Policies returns the policies in evaluation order.
func (c *Chain) Policies() []Policy {
	return c.policies
}

func (c *Chain) OnBeforeSend(req *domain.Request) {
	for _, p := range c.policies {
		p.OnBeforeSend(req)
	}
}

// ShouldRetry asks each policy in order. If a policy fails while repairing,
// the chain stops and returns a *PolicyError carrying the original failure.
// If no policy claims the failure it is surfaced unchanged.
func (c *Chain) ShouldRetry(ctx context.Context, err error) (Decision, error) {
	for _, p := range c.policies {
		name := policyName(p)

		d, perr := p.ShouldRetry(ctx, err)
		if perr != nil {
			metrics.RetryDecisionsTotal.WithLabelValues(name, "error").Inc()
			c.log.Warn("Retry policy failed", "policy", name, "error", perr, "failure", err)

			var pe *PolicyError
			if errors.As(perr, &pe) {
				return Decision{}, pe
			}
			return Decision{}, &PolicyError{Policy: name, Err: perr, Failure: err}
		}
		if !d.ShouldRetry {
			continue
		}

		metrics.RetryDecisionsTotal.WithLabelValues(name, "retry").Inc()
		metrics.RetryBackoff.WithLabelValues(name).Observe(d.Backoff.Seconds())
		c.log.Debug("Retry policy claimed failure", "policy", name, "backoff", d.Backoff, "failure", err)
		return d, nil
	}

	metrics.RetryDecisionsTotal.WithLabelValues(c.Name(), "no_retry").Inc()
	return NoRetry(err), nil
}
