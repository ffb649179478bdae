package retry

import (
	"context"
	"log/slog"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/core/failure"
	"github.com/vietddude/georetry/internal/metrics"
)

// StaleNameCachePolicy drops the cached container of a name-based request
// when the service reports that the name cache is stale, then retries once.
type StaleNameCachePolicy struct {
	resolver CollectionResolver
	log      *slog.Logger

	request *domain.Request
	retried bool
}

func NewStaleNameCachePolicy(resolver CollectionResolver, log *slog.Logger) *StaleNameCachePolicy {
	if log == nil {
		log = slog.Default()
	}
	return &StaleNameCachePolicy{resolver: resolver, log: log.With("policy", "stale_name_cache")}
}

func (p *StaleNameCachePolicy) Name() string { return "stale_name_cache" }

func (p *StaleNameCachePolicy) OnBeforeSend(req *domain.Request) {
	p.request = req
}

func (p *StaleNameCachePolicy) ShouldRetry(_ context.Context, err error) (Decision, error) {
	if p.request == nil || !p.request.IsNameBased || p.retried {
		return NoRetry(err), nil
	}
	if !failure.IsSubStatus(err, failure.StatusGone, failure.SubStatusNameCacheIsStale) {
		return NoRetry(err), nil
	}
	link := p.request.CollectionLink()
	if link == "" {
		return NoRetry(err), nil
	}

	p.resolver.Invalidate(link)
	p.retried = true
	metrics.CollectionCacheTotal.WithLabelValues("invalidated").Inc()

	p.log.Info("Name cache stale, refreshing collection", "link", link, "activity_id", p.request.ActivityID)
	return RetryAfter(0), nil
}
