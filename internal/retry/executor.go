package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/metrics"
)

// ErrAttemptsExhausted is returned when a request failed on every attempt
// the budget allows.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Sender transmits one attempt of a request.
type Sender interface {
	Send(ctx context.Context, req *domain.Request) (*domain.Response, error)
}

// Executor runs requests through a per-request policy chain.
type Executor struct {
	factory  *Factory
	sender   Sender
	resolver CollectionResolver
	sessions SessionStore
	log      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(factory *Factory, sender Sender, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		factory:  factory,
		sender:   sender,
		resolver: factory.resolver,
		sessions: factory.sessions,
		log:      log.With("component", "executor"),
		sleep:    sleepContext,
	}
}

// Execute sends req until it succeeds, the chain declines to retry, the
// attempt budget runs out or ctx is done.
func (e *Executor) Execute(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req.Context == nil {
		req.Context = &domain.RequestContext{}
	}
	chain := e.factory.NewRequestPolicy()
	maxAttempts := e.factory.opts.MaxAttempts

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.prepare(ctx, req); err != nil {
			return nil, err
		}
		chain.OnBeforeSend(req)

		resp, err := e.sender.Send(ctx, req)
		if err == nil {
			metrics.AttemptsTotal.WithLabelValues(string(req.Operation), "success").Inc()
			e.storeSession(ctx, req, resp)
			return resp, nil
		}
		metrics.AttemptsTotal.WithLabelValues(string(req.Operation), "failure").Inc()

		if attempt >= maxAttempts {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt, err)
		}

		d, perr := chain.ShouldRetry(ctx, err)
		if perr != nil {
			return nil, perr
		}
		if !d.ShouldRetry {
			return nil, d.Err
		}

		e.log.Debug("Retrying request",
			"activity_id", req.ActivityID,
			"attempt", attempt,
			"backoff", d.Backoff,
			"error", err,
		)
		if err := e.sleep(ctx, d.Backoff); err != nil {
			return nil, err
		}
	}
}

// prepare resolves the container identity and attaches the session token
// for the next attempt.
func (e *Executor) prepare(ctx context.Context, req *domain.Request) error {
	rc := req.Context
	rc.SessionToken = ""

	link := req.CollectionLink()
	if link == "" {
		rc.ResolvedCollectionRID = ""
		return nil
	}

	if req.IsNameBased {
		c, err := e.resolver.Resolve(ctx, req, rc.ForceNameCacheRefresh)
		if err != nil {
			return fmt.Errorf("resolve collection %s: %w", link, err)
		}
		rc.ForceNameCacheRefresh = false
		rc.ResolvedCollectionRID = c.ResourceID
	} else {
		rc.ResolvedCollectionRID = domain.ContainerIdentity(link[strings.LastIndex(link, "/")+1:])
	}

	if rc.ResolvedCollectionRID.IsZero() {
		return nil
	}
	token, err := e.sessions.Get(ctx, rc.ResolvedCollectionRID, req.PartitionKey)
	if err != nil {
		e.log.Warn("Failed to load session token", "rid", rc.ResolvedCollectionRID, "error", err)
		return nil
	}
	rc.SessionToken = token
	return nil
}

func (e *Executor) storeSession(ctx context.Context, req *domain.Request, resp *domain.Response) {
	rid := req.Context.ResolvedCollectionRID
	if resp == nil || resp.SessionToken == "" || rid.IsZero() {
		return
	}
	if err := e.sessions.Set(ctx, rid, req.PartitionKey, resp.SessionToken); err != nil {
		e.log.Warn("Failed to store session token", "rid", rid, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
