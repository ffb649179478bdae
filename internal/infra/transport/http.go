// Package transport sends request attempts to a regional endpoint and maps
// what comes back onto the failure taxonomy.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/core/failure"
)

// Request headers understood by the service.
const (
	HeaderPartitionKey = "x-ms-documentdb-partitionkey"
	HeaderIsUpsert     = "x-ms-documentdb-is-upsert"
	HeaderIsQuery      = "x-ms-documentdb-isquery"
)

var methods = map[domain.OperationType]string{
	domain.OperationCreate:  http.MethodPost,
	domain.OperationRead:    http.MethodGet,
	domain.OperationReplace: http.MethodPut,
	domain.OperationUpsert:  http.MethodPost,
	domain.OperationDelete:  http.MethodDelete,
	domain.OperationQuery:   http.MethodPost,
	domain.OperationPatch:   http.MethodPatch,
}

// HTTPTransport sends attempts over HTTP to the endpoint chosen for them.
type HTTPTransport struct {
	defaultEndpoint string
	client          *http.Client
	log             *slog.Logger
}

func NewHTTPTransport(defaultEndpoint string, timeout time.Duration, log *slog.Logger) *HTTPTransport {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPTransport{
		defaultEndpoint: defaultEndpoint,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.With("component", "transport"),
	}
}

func (t *HTTPTransport) Send(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	endpoint := t.defaultEndpoint
	if req.Context != nil && req.Context.LocationEndpoint != "" {
		endpoint = req.Context.LocationEndpoint
	}
	endpoint = strings.TrimRight(endpoint, "/")

	method, ok := methods[req.Operation]
	if !ok {
		return nil, failure.NewBadRequest(fmt.Sprintf("unsupported operation %q", req.Operation))
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint+req.ResourceLink, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(failure.HeaderActivityID, req.ActivityID)
	if req.Context != nil && req.Context.SessionToken != "" {
		httpReq.Header.Set(failure.HeaderSessionToken, req.Context.SessionToken)
	}
	if req.PartitionKey != "" {
		pk, _ := json.Marshal([]string{req.PartitionKey})
		httpReq.Header.Set(HeaderPartitionKey, string(pk))
	}
	switch req.Operation {
	case domain.OperationUpsert:
		httpReq.Header.Set(HeaderIsUpsert, "true")
	case domain.OperationQuery:
		httpReq.Header.Set(HeaderIsQuery, "true")
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &failure.ConnectivityError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &failure.ConnectivityError{Endpoint: endpoint, Err: fmt.Errorf("read response: %w", err)}
	}
	headers := flattenHeaders(resp.Header)

	t.log.Debug("Request sent",
		"method", method,
		"endpoint", endpoint,
		"link", req.ResourceLink,
		"status", resp.StatusCode,
		"latency", time.Since(start),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		f := failure.New(resp.StatusCode, errorMessage(respBody))
		f.Headers = headers
		return nil, f
	}

	return &domain.Response{
		StatusCode:   resp.StatusCode,
		Headers:      headers,
		Body:         respBody,
		SessionToken: headers[failure.HeaderSessionToken],
		ActivityID:   headers[failure.HeaderActivityID],
	}, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

// errorMessage extracts the message of a {"code","message"} error body, or
// returns the body itself.
func errorMessage(body []byte) string {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		if payload.Code != "" {
			return payload.Code + ": " + payload.Message
		}
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
