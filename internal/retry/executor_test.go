package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/core/failure"
)

type executorFixture struct {
	resolver  *mockResolver
	sessions  *mockSessions
	endpoints *mockEndpoints
	sender    *mockSender
	slept     []time.Duration
	exec      *Executor
}

func newExecutorFixture(opts Options) *executorFixture {
	fx := &executorFixture{
		resolver:  &mockResolver{},
		sessions:  &mockSessions{},
		endpoints: &mockEndpoints{},
		sender:    &mockSender{},
	}
	factory := NewFactory(fx.endpoints, fx.resolver, fx.sessions, opts, nil)
	fx.exec = NewExecutor(factory, fx.sender, nil)
	fx.exec.sleep = func(_ context.Context, d time.Duration) error {
		fx.slept = append(fx.slept, d)
		return nil
	}
	fx.endpoints.On("ResolveServiceEndpoint", mock.Anything).Return(eastEndpoint)
	return fx
}

func TestExecutor_SuccessStoresSession(t *testing.T) {
	fx := newExecutorFixture(Options{})
	req := documentRequest(domain.OperationRead)
	req.PartitionKey = "pk1"

	fx.resolver.On("Resolve", mock.Anything, req, false).Return(domain.Container{ResourceID: "rid_0"}, nil)
	fx.sessions.On("Get", mock.Anything, domain.ContainerIdentity("rid_0"), "pk1").Return("0#10", nil)
	fx.sender.On("Send", mock.Anything, req).Return(&domain.Response{StatusCode: 200, SessionToken: "0#11"}, nil).Once()
	fx.sessions.On("Set", mock.Anything, domain.ContainerIdentity("rid_0"), "pk1", "0#11").Return(nil).Once()

	resp, err := fx.exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "0#10", req.Context.SessionToken)
	assert.Equal(t, eastEndpoint, req.Context.LocationEndpoint)
	fx.sessions.AssertExpectations(t)
}

func TestExecutor_RenameRecovery(t *testing.T) {
	fx := newExecutorFixture(Options{})
	req := documentRequest(domain.OperationRead)

	// First resolution returns the stale identity, the forced refresh inside
	// the policy sees the recreated container.
	fx.resolver.On("Resolve", mock.Anything, req, false).Return(domain.Container{ResourceID: "rid_0"}, nil).Once()
	fx.resolver.On("Resolve", mock.Anything, req, true).Return(domain.Container{ResourceID: "rid_1"}, nil).Once()
	fx.resolver.On("Resolve", mock.Anything, req, false).Return(domain.Container{ResourceID: "rid_1"}, nil).Once()

	fx.sessions.On("Get", mock.Anything, domain.ContainerIdentity("rid_0"), "").Return("0#500", nil)
	fx.sessions.On("Get", mock.Anything, domain.ContainerIdentity("rid_1"), "").Return("", nil)
	fx.sessions.On("Clear", mock.Anything, domain.ContainerIdentity("rid_0"), "").Return(nil).Once()

	fx.sender.On("Send", mock.Anything, req).Return(nil, readSessionNotAvailable()).Once()
	fx.sender.On("Send", mock.Anything, req).Return(&domain.Response{StatusCode: 200}, nil).Once()

	resp, err := fx.exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, domain.ContainerIdentity("rid_1"), req.Context.ResolvedCollectionRID)
	assert.Empty(t, req.Context.SessionToken)

	fx.resolver.AssertExpectations(t)
	fx.sessions.AssertExpectations(t)
	fx.sender.AssertNumberOfCalls(t, "Send", 2)
	fx.endpoints.AssertNotCalled(t, "RefreshLocation", mock.Anything, mock.Anything)
}

func TestExecutor_SurfacesUnclaimedFailure(t *testing.T) {
	fx := newExecutorFixture(Options{})
	req := documentRequest(domain.OperationCreate)
	bad := failure.NewBadRequest("invalid partition key")

	fx.resolver.On("Resolve", mock.Anything, req, false).Return(domain.Container{ResourceID: "rid_0"}, nil)
	fx.sessions.On("Get", mock.Anything, mock.Anything, mock.Anything).Return("", nil)
	fx.sender.On("Send", mock.Anything, req).Return(nil, bad).Once()

	_, err := fx.exec.Execute(context.Background(), req)
	assert.Same(t, bad, err)
	fx.sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestExecutor_AttemptBudget(t *testing.T) {
	fx := newExecutorFixture(Options{MaxAttempts: 3})
	req := documentRequest(domain.OperationRead)
	throttled := failure.NewThrottled("", 5*time.Millisecond)

	fx.resolver.On("Resolve", mock.Anything, req, false).Return(domain.Container{ResourceID: "rid_0"}, nil)
	fx.sessions.On("Get", mock.Anything, mock.Anything, mock.Anything).Return("", nil)
	fx.sender.On("Send", mock.Anything, req).Return(nil, throttled)

	_, err := fx.exec.Execute(context.Background(), req)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, throttled)
	fx.sender.AssertNumberOfCalls(t, "Send", 3)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, fx.slept)
}

func TestExecutor_PolicyErrorSurfaces(t *testing.T) {
	fx := newExecutorFixture(Options{})
	req := documentRequest(domain.OperationRead)
	storeDown := errors.New("redis down")

	fx.resolver.On("Resolve", mock.Anything, req, false).Return(domain.Container{ResourceID: "rid_0"}, nil)
	fx.resolver.On("Resolve", mock.Anything, req, true).Return(domain.Container{ResourceID: "rid_1"}, nil)
	fx.sessions.On("Get", mock.Anything, mock.Anything, mock.Anything).Return("", nil)
	fx.sessions.On("Clear", mock.Anything, domain.ContainerIdentity("rid_0"), "").Return(storeDown)
	fx.sender.On("Send", mock.Anything, req).Return(nil, readSessionNotAvailable())

	_, err := fx.exec.Execute(context.Background(), req)

	var pe *PolicyError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, storeDown)
	assert.True(t, failure.IsNotFound(err))
	fx.sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestExecutor_IDBasedRequestSkipsResolver(t *testing.T) {
	fx := newExecutorFixture(Options{})
	req := domain.NewRequestFromID(domain.OperationRead, "/dbs/AAA=/colls/AAAB/docs/x", domain.ResourceDocument)

	fx.sessions.On("Get", mock.Anything, domain.ContainerIdentity("AAAB"), "").Return("", nil)
	fx.sender.On("Send", mock.Anything, req).Return(&domain.Response{StatusCode: 200}, nil)

	_, err := fx.exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, fx.resolver.Calls)
	assert.Equal(t, domain.ContainerIdentity("AAAB"), req.Context.ResolvedCollectionRID)
}

func TestExecutor_ContextCanceled(t *testing.T) {
	fx := newExecutorFixture(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.exec.Execute(ctx, documentRequest(domain.OperationRead))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fx.sender.Calls)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
