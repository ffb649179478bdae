// Package retry decides whether a failed request is retried and runs the
// corrective action that must happen before it is sent again.
//
// Policies are created per request by a Factory and hold the state captured
// for the current attempt. The collaborators they talk to (CollectionResolver,
// SessionStore, EndpointManager) are process wide and safe for concurrent use.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/georetry/internal/core/domain"
)

// Decision is the outcome of asking a policy about a failure.
//
// When ShouldRetry is false, Err is the error to surface: the original failure
// unless a policy substitutes a more specific one. When ShouldRetry is true,
// Err is nil and the failure is suppressed.
type Decision struct {
	ShouldRetry bool
	Backoff     time.Duration
	Err         error
}

// NoRetry returns a decision that surfaces err.
func NoRetry(err error) Decision {
	return Decision{Err: err}
}

// RetryAfter returns a decision that resends the request after d.
func RetryAfter(d time.Duration) Decision {
	return Decision{ShouldRetry: true, Backoff: d}
}

// Policy specializes in one class of failure.
type Policy interface {
	// OnBeforeSend is called once per attempt before the request is
	// transmitted. State captured here replaces the previous attempt's.
	OnBeforeSend(req *domain.Request)

	// ShouldRetry inspects a failure of the last armed attempt. A non-nil
	// error means a collaborator failed while repairing; the request must
	// not be retried.
	ShouldRetry(ctx context.Context, err error) (Decision, error)
}

// Named is implemented by policies that report a stable name for logs and
// metrics.
type Named interface {
	Name() string
}

// CollectionResolver maps a container link to its current identity.
type CollectionResolver interface {
	// Resolve returns the container addressed by req. forceRefresh bypasses
	// and replaces any cached entry.
	Resolve(ctx context.Context, req *domain.Request, forceRefresh bool) (domain.Container, error)

	// Invalidate drops the cached entry for a collection link.
	Invalidate(link string)
}

// SessionStore holds session tokens per container identity and partition.
type SessionStore interface {
	Get(ctx context.Context, id domain.ContainerIdentity, partitionKey string) (string, error)
	Set(ctx context.Context, id domain.ContainerIdentity, partitionKey, token string) error

	// Clear drops the token of one partition, or of every partition of the
	// identity when partitionKey is empty.
	Clear(ctx context.Context, id domain.ContainerIdentity, partitionKey string) error
}

// EndpointManager ranks regional endpoints.
type EndpointManager interface {
	ResolveServiceEndpoint(req *domain.Request) string
	MarkEndpointUnavailableForRead(endpoint string)
	MarkEndpointUnavailableForWrite(endpoint string)

	// RefreshLocation re-reads the regional topology. A non-empty hint is
	// ranked first afterwards.
	RefreshLocation(ctx context.Context, hint string) error
}

// PolicyError reports a collaborator failure during a retry decision. It
// unwraps to both the collaborator error and the original failure.
type PolicyError struct {
	Policy  string
	Err     error
	Failure error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("retry policy %s: %v (while handling: %v)", e.Policy, e.Err, e.Failure)
}

func (e *PolicyError) Unwrap() []error {
	return []error{e.Err, e.Failure}
}

func policyName(p Policy) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}
