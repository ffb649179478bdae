package retry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/core/failure"
	"github.com/vietddude/georetry/internal/metrics"
)

// RenameAwarePolicy repairs requests whose container was deleted and
// recreated under the same name. The service answers such requests with
// 404/1002 because the cached session token belongs to the old incarnation.
//
// The policy never talks to the endpoint manager.
type RenameAwarePolicy struct {
	resolver CollectionResolver
	sessions SessionStore
	log      *slog.Logger

	request     *domain.Request
	capturedRID domain.ContainerIdentity
}

func NewRenameAwarePolicy(resolver CollectionResolver, sessions SessionStore, log *slog.Logger) *RenameAwarePolicy {
	if log == nil {
		log = slog.Default()
	}
	return &RenameAwarePolicy{
		resolver: resolver,
		sessions: sessions,
		log:      log.With("policy", "rename_aware"),
	}
}

func (p *RenameAwarePolicy) Name() string { return "rename_aware" }

func (p *RenameAwarePolicy) OnBeforeSend(req *domain.Request) {
	p.request = req
	p.capturedRID = ""
	if req != nil && req.Context != nil {
		p.capturedRID = req.Context.ResolvedCollectionRID
	}
}

func (p *RenameAwarePolicy) ShouldRetry(ctx context.Context, err error) (Decision, error) {
	if p.request == nil {
		return NoRetry(err), nil
	}
	if !failure.IsSubStatus(err, failure.StatusNotFound, failure.SubStatusReadSessionNotAvailable) {
		return NoRetry(err), nil
	}
	// Requests addressed by resource id are immune to renames.
	if !p.request.IsNameBased {
		return NoRetry(err), nil
	}

	current, rerr := p.resolver.Resolve(ctx, p.request, true)
	if rerr != nil {
		return Decision{}, fmt.Errorf("resolve %s: %w", p.request.CollectionLink(), rerr)
	}

	if p.capturedRID.IsZero() || current.ResourceID.IsZero() || current.ResourceID == p.capturedRID {
		p.log.Debug("Read session unavailable without identity change",
			"link", p.request.CollectionLink(),
			"rid", p.capturedRID,
			"activity_id", p.request.ActivityID,
		)
		return NoRetry(err), nil
	}

	if cerr := p.sessions.Clear(ctx, p.capturedRID, ""); cerr != nil {
		return Decision{}, fmt.Errorf("clear session for %s: %w", p.capturedRID, cerr)
	}
	metrics.RenamesDetected.Inc()
	metrics.SessionClearsTotal.WithLabelValues("rename").Inc()

	p.log.Info("Collection recreated, retrying",
		"link", p.request.CollectionLink(),
		"old_rid", p.capturedRID,
		"new_rid", current.ResourceID,
		"activity_id", p.request.ActivityID,
	)
	return RetryAfter(0), nil
}
