package retry

import (
	"context"
	"log/slog"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/core/failure"
)

// ThrottlePolicy retries requests rejected with 429. The server hint wins
// over the local backoff.
type ThrottlePolicy struct {
	opts ThrottleOptions
	log  *slog.Logger

	backoff goretry.Backoff
	request *domain.Request
	retries int
	waited  time.Duration
}

func NewThrottlePolicy(opts ThrottleOptions, log *slog.Logger) *ThrottlePolicy {
	if log == nil {
		log = slog.Default()
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOptions().Throttle.BaseDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	return &ThrottlePolicy{
		opts:    opts,
		log:     log.With("policy", "throttle"),
		backoff: goretry.WithCappedDuration(opts.MaxDelay, goretry.NewExponential(opts.BaseDelay)),
	}
}

func (p *ThrottlePolicy) Name() string { return "throttle" }

func (p *ThrottlePolicy) OnBeforeSend(req *domain.Request) {
	p.request = req
}

func (p *ThrottlePolicy) ShouldRetry(_ context.Context, err error) (Decision, error) {
	if p.request == nil {
		return NoRetry(err), nil
	}
	f, ok := failure.As(err)
	if !ok || f.StatusCode != failure.StatusTooManyRequests {
		return NoRetry(err), nil
	}
	if p.retries >= p.opts.MaxAttempts {
		p.log.Warn("Throttle retries exhausted", "retries", p.retries, "activity_id", p.request.ActivityID)
		return NoRetry(err), nil
	}

	delay := f.RetryAfter()
	if delay <= 0 {
		delay, _ = p.backoff.Next()
	}
	if p.waited+delay > p.opts.MaxWaitTime {
		p.log.Warn("Throttle wait budget exceeded",
			"waited", p.waited,
			"next", delay,
			"max_wait", p.opts.MaxWaitTime,
		)
		return NoRetry(err), nil
	}

	p.retries++
	p.waited += delay
	p.log.Debug("Request throttled", "retry", p.retries, "backoff", delay, "activity_id", p.request.ActivityID)
	return RetryAfter(delay), nil
}
