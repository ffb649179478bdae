// Package failure classifies errors returned by the database service.
//
// A service failure is always a *Failure carrying a status code and an
// optional sub-status. Causes that share a status (for example the many
// reasons for a 404) are told apart by sub-status, never by distinct types.
// Failures that happen before a response exists (dial errors, timeouts) are
// *ConnectivityError.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Status codes used by the service.
const (
	StatusBadRequest         = 400
	StatusUnauthorized       = 401
	StatusForbidden          = 403
	StatusNotFound           = 404
	StatusRequestTimeout     = 408
	StatusConflict           = 409
	StatusGone               = 410
	StatusPreconditionFailed = 412
	StatusTooManyRequests    = 429
	StatusInternalError      = 500
	StatusServiceUnavailable = 503
)

// Sub-status codes. Values are only meaningful together with a status code:
// 1002 means "read session not available" on a 404 and "partition key range
// gone" on a 410.
const (
	SubStatusUnknown                 = 0
	SubStatusWriteForbidden          = 3
	SubStatusNameCacheIsStale        = 1000
	SubStatusReadSessionNotAvailable = 1002
	SubStatusPartitionKeyRangeGone   = 1002
	SubStatusCompletingSplit         = 1007
	SubStatusDatabaseAccountNotFound = 1008
)

// Response headers carrying failure metadata.
const (
	HeaderSubStatus    = "x-ms-substatus"
	HeaderRetryAfterMs = "x-ms-retry-after-ms"
	HeaderActivityID   = "x-ms-activity-id"
	HeaderSessionToken = "x-ms-session-token"
)

// Failure is an error response from the service.
type Failure struct {
	StatusCode    int
	SubStatusCode int
	Message       string
	Headers       map[string]string

	cause error
}

// New creates a failure with the given status code.
func New(statusCode int, message string) *Failure {
	return &Failure{
		StatusCode: statusCode,
		Message:    message,
		Headers:    make(map[string]string),
	}
}

func NewNotFound(message string) *Failure {
	return New(StatusNotFound, message)
}

func NewBadRequest(message string) *Failure {
	return New(StatusBadRequest, message)
}

func NewThrottled(message string, retryAfter time.Duration) *Failure {
	f := New(StatusTooManyRequests, message)
	if retryAfter > 0 {
		f.Headers[HeaderRetryAfterMs] = strconv.FormatInt(retryAfter.Milliseconds(), 10)
	}
	return f
}

// WithSubStatus sets the sub-status code and returns the failure.
func (f *Failure) WithSubStatus(code int) *Failure {
	f.SubStatusCode = code
	return f
}

// WithHeader sets a response header and returns the failure.
func (f *Failure) WithHeader(key, value string) *Failure {
	if f.Headers == nil {
		f.Headers = make(map[string]string)
	}
	f.Headers[key] = value
	return f
}

// WithCause records the lower level error that produced the failure.
func (f *Failure) WithCause(err error) *Failure {
	f.cause = err
	return f
}

// SubStatus returns the sub-status, taken from the x-ms-substatus header when
// it was not set explicitly.
func (f *Failure) SubStatus() int {
	if f.SubStatusCode != SubStatusUnknown {
		return f.SubStatusCode
	}
	if v, ok := f.Headers[HeaderSubStatus]; ok {
		if code, err := strconv.Atoi(v); err == nil {
			return code
		}
	}
	return SubStatusUnknown
}

// RetryAfter returns the server supplied delay, or zero.
func (f *Failure) RetryAfter() time.Duration {
	v, ok := f.Headers[HeaderRetryAfterMs]
	if !ok {
		return 0
	}
	ms, err := strconv.ParseFloat(v, 64)
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// ActivityID returns the activity id echoed by the service.
func (f *Failure) ActivityID() string {
	return f.Headers[HeaderActivityID]
}

func (f *Failure) Error() string {
	msg := f.Message
	if msg == "" {
		msg = statusText(f.StatusCode)
	}
	if sub := f.SubStatus(); sub != SubStatusUnknown {
		return fmt.Sprintf("status %d/%d: %s", f.StatusCode, sub, msg)
	}
	return fmt.Sprintf("status %d: %s", f.StatusCode, msg)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

// As returns the *Failure in err's chain.
func As(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsStatus reports whether err is a failure with the given status code.
func IsStatus(err error, statusCode int) bool {
	f, ok := As(err)
	return ok && f.StatusCode == statusCode
}

// IsSubStatus reports whether err is a failure with the given status and
// sub-status codes.
func IsSubStatus(err error, statusCode, subStatusCode int) bool {
	f, ok := As(err)
	return ok && f.StatusCode == statusCode && f.SubStatus() == subStatusCode
}

func IsNotFound(err error) bool {
	return IsStatus(err, StatusNotFound)
}

func IsThrottled(err error) bool {
	return IsStatus(err, StatusTooManyRequests)
}

// ConnectivityError is a failure to reach the service at all.
type ConnectivityError struct {
	Endpoint string
	Err      error
}

func (e *ConnectivityError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("connectivity: %v", e.Err)
	}
	return fmt.Sprintf("connectivity to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err happened before the service answered:
// dial failures, resets and timeouts.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}
	if _, ok := As(err); ok {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func statusText(code int) string {
	switch code {
	case StatusBadRequest:
		return "bad request"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusForbidden:
		return "forbidden"
	case StatusNotFound:
		return "not found"
	case StatusRequestTimeout:
		return "request timeout"
	case StatusConflict:
		return "conflict"
	case StatusGone:
		return "gone"
	case StatusPreconditionFailed:
		return "precondition failed"
	case StatusTooManyRequests:
		return "request rate too large"
	case StatusServiceUnavailable:
		return "service unavailable"
	default:
		return "error"
	}
}
