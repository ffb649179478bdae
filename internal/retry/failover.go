package retry

import (
	"context"
	"fmt"
	"log/slog"

	goretry "github.com/sethvargo/go-retry"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/core/failure"
)

// EndpointFailoverPolicy moves a request to another region when the current
// one cannot serve it.
type EndpointFailoverPolicy struct {
	endpoints EndpointManager
	opts      FailoverOptions
	log       *slog.Logger

	backoff       goretry.Backoff
	request       *domain.Request
	endpoint      string
	failoverCount int
}

func NewEndpointFailoverPolicy(endpoints EndpointManager, opts FailoverOptions, log *slog.Logger) *EndpointFailoverPolicy {
	if log == nil {
		log = slog.Default()
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultOptions().Failover.RetryInterval
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &EndpointFailoverPolicy{
		endpoints: endpoints,
		opts:      opts,
		log:       log.With("policy", "endpoint_failover"),
		backoff:   goretry.WithMaxRetries(uint64(opts.MaxRetries), goretry.NewConstant(opts.RetryInterval)),
	}
}

func (p *EndpointFailoverPolicy) Name() string { return "endpoint_failover" }

// OnBeforeSend routes the attempt to the endpoint selected by the number of
// failovers so far.
func (p *EndpointFailoverPolicy) OnBeforeSend(req *domain.Request) {
	p.request = req
	if req == nil {
		return
	}
	if req.Context == nil {
		req.Context = &domain.RequestContext{}
	}
	req.Context.RouteToLocationIndex = p.failoverCount
	p.endpoint = p.endpoints.ResolveServiceEndpoint(req)
	req.Context.LocationEndpoint = p.endpoint
}

func (p *EndpointFailoverPolicy) ShouldRetry(ctx context.Context, err error) (Decision, error) {
	if p.request == nil || !p.opts.Enabled {
		return NoRetry(err), nil
	}

	read := p.request.IsReadOnly()
	refresh := true

	switch {
	case failure.IsConnectivity(err):
		if read {
			p.endpoints.MarkEndpointUnavailableForRead(p.endpoint)
		} else {
			p.endpoints.MarkEndpointUnavailableForWrite(p.endpoint)
		}
	case failure.IsSubStatus(err, failure.StatusForbidden, failure.SubStatusWriteForbidden):
		p.endpoints.MarkEndpointUnavailableForWrite(p.endpoint)
	case read && failure.IsSubStatus(err, failure.StatusForbidden, failure.SubStatusDatabaseAccountNotFound):
		p.endpoints.MarkEndpointUnavailableForRead(p.endpoint)
	case read && failure.IsStatus(err, failure.StatusServiceUnavailable):
		refresh = false
	default:
		return NoRetry(err), nil
	}

	delay, stop := p.backoff.Next()
	if stop {
		p.log.Warn("Failover retries exhausted",
			"endpoint", p.endpoint,
			"failovers", p.failoverCount,
			"activity_id", p.request.ActivityID,
		)
		return NoRetry(err), nil
	}

	if refresh {
		if rerr := p.endpoints.RefreshLocation(ctx, ""); rerr != nil {
			return Decision{}, fmt.Errorf("refresh locations: %w", rerr)
		}
	}

	p.failoverCount++
	if p.failoverCount == 1 {
		delay = 0
	}

	p.log.Info("Failing over to next region",
		"endpoint", p.endpoint,
		"failovers", p.failoverCount,
		"backoff", delay,
		"error", err,
	)
	return RetryAfter(delay), nil
}
