package retry

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vietddude/georetry/internal/core/domain"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, req *domain.Request, forceRefresh bool) (domain.Container, error) {
	args := m.Called(ctx, req, forceRefresh)
	return args.Get(0).(domain.Container), args.Error(1)
}

func (m *mockResolver) Invalidate(link string) {
	m.Called(link)
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Get(ctx context.Context, id domain.ContainerIdentity, pk string) (string, error) {
	args := m.Called(ctx, id, pk)
	return args.String(0), args.Error(1)
}

func (m *mockSessions) Set(ctx context.Context, id domain.ContainerIdentity, pk, token string) error {
	return m.Called(ctx, id, pk, token).Error(0)
}

func (m *mockSessions) Clear(ctx context.Context, id domain.ContainerIdentity, pk string) error {
	return m.Called(ctx, id, pk).Error(0)
}

type mockEndpoints struct {
	mock.Mock
}

func (m *mockEndpoints) ResolveServiceEndpoint(req *domain.Request) string {
	return m.Called(req).String(0)
}

func (m *mockEndpoints) MarkEndpointUnavailableForRead(endpoint string) {
	m.Called(endpoint)
}

func (m *mockEndpoints) MarkEndpointUnavailableForWrite(endpoint string) {
	m.Called(endpoint)
}

func (m *mockEndpoints) RefreshLocation(ctx context.Context, hint string) error {
	return m.Called(ctx, hint).Error(0)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.Response)
	return resp, args.Error(1)
}

func documentRequest(op domain.OperationType) *domain.Request {
	return domain.NewRequestFromName(op, "/dbs/db/colls/col/docs/docId", domain.ResourceDocument)
}
