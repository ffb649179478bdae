package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/georetry/internal/core/failure"
)

// Location is one region of the account.
type Location struct {
	Name     string `json:"name"`
	Endpoint string `json:"databaseAccountEndpoint"`
}

// Account is the regional topology advertised by the service.
type Account struct {
	WritableLocations            []Location `json:"writableLocations"`
	ReadableLocations            []Location `json:"readableLocations"`
	EnableMultipleWriteLocations bool       `json:"enableMultipleWriteLocations"`
}

// AccountReader fetches the current account topology.
type AccountReader interface {
	ReadAccount(ctx context.Context) (*Account, error)
}

// HTTPAccountReader reads the account document from the default endpoint.
type HTTPAccountReader struct {
	endpoint string
	client   *http.Client
}

func NewHTTPAccountReader(endpoint string, timeout time.Duration) *HTTPAccountReader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAccountReader{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPAccountReader) ReadAccount(ctx context.Context) (*Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &failure.ConnectivityError{Endpoint: r.endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &failure.ConnectivityError{Endpoint: r.endpoint, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, failure.New(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var acct Account
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	return &acct, nil
}
