package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/core/failure"
)

// Handler performs one attempt on a gRPC connection, typically through a
// generated client.
type Handler func(ctx context.Context, conn *grpc.ClientConn, req *domain.Request) (*domain.Response, error)

// StructHandler invokes service+"/"+operation with the request body as a
// google.protobuf.Struct and returns the reply encoded as JSON.
func StructHandler(service string) Handler {
	return func(ctx context.Context, conn *grpc.ClientConn, req *domain.Request) (*domain.Response, error) {
		in := &structpb.Struct{}
		if len(req.Body) > 0 {
			if err := in.UnmarshalJSON(req.Body); err != nil {
				return nil, fmt.Errorf("invalid request body: %w", err)
			}
		}
		if in.Fields == nil {
			in.Fields = make(map[string]*structpb.Value)
		}
		in.Fields["link"] = structpb.NewStringValue(req.ResourceLink)

		var header metadata.MD
		out := &structpb.Struct{}
		method := "/" + strings.Trim(service, "/") + "/" + string(req.Operation)
		if err := conn.Invoke(ctx, method, in, out, grpc.Header(&header)); err != nil {
			return nil, err
		}

		body, err := out.MarshalJSON()
		if err != nil {
			return nil, err
		}
		resp := &domain.Response{StatusCode: 200, Body: body, Headers: make(map[string]string)}
		for k, v := range header {
			if len(v) > 0 {
				resp.Headers[k] = v[0]
			}
		}
		resp.SessionToken = resp.Headers[failure.HeaderSessionToken]
		resp.ActivityID = resp.Headers[failure.HeaderActivityID]
		return resp, nil
	}
}

// GRPCTransport sends attempts over gRPC. One connection is kept per
// regional endpoint.
type GRPCTransport struct {
	defaultEndpoint string
	handler         Handler
	dialOpts        []grpc.DialOption

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func NewGRPCTransport(defaultEndpoint string, handler Handler, opts ...grpc.DialOption) *GRPCTransport {
	return &GRPCTransport{
		defaultEndpoint: defaultEndpoint,
		handler:         handler,
		dialOpts:        opts,
		conns:           make(map[string]*grpc.ClientConn),
	}
}

func (t *GRPCTransport) Send(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	endpoint := t.defaultEndpoint
	if req.Context != nil && req.Context.LocationEndpoint != "" {
		endpoint = req.Context.LocationEndpoint
	}

	conn, err := t.conn(endpoint)
	if err != nil {
		return nil, &failure.ConnectivityError{Endpoint: endpoint, Err: err}
	}

	md := metadata.Pairs(failure.HeaderActivityID, req.ActivityID)
	if req.Context != nil && req.Context.SessionToken != "" {
		md.Set(failure.HeaderSessionToken, req.Context.SessionToken)
	}
	if req.PartitionKey != "" {
		md.Set(HeaderPartitionKey, req.PartitionKey)
	}
	ctx = metadata.NewOutgoingContext(ctx, md)

	resp, err := t.handler(ctx, conn, req)
	if err != nil {
		return nil, failure.FromStatus(err, endpoint)
	}
	return resp, nil
}

func (t *GRPCTransport) conn(endpoint string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[endpoint]; ok {
		return c, nil
	}

	target := endpoint
	var opts []grpc.DialOption
	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}
	opts = append(opts, t.dialOpts...)

	c, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	t.conns[endpoint] = c
	return c, nil
}

// Close closes every connection.
func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for endpoint, c := range t.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.conns, endpoint)
	}
	return firstErr
}
