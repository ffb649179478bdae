package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/core/failure"
)

func TestThrottle_UsesServerHint(t *testing.T) {
	p := NewThrottlePolicy(ThrottleOptions{MaxAttempts: 3, MaxWaitTime: time.Second, BaseDelay: time.Millisecond, MaxDelay: time.Second}, nil)
	p.OnBeforeSend(documentRequest(domain.OperationRead))

	d, err := p.ShouldRetry(context.Background(), failure.NewThrottled("", 250*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, d.ShouldRetry)
	assert.Equal(t, 250*time.Millisecond, d.Backoff)
}

func TestThrottle_ExponentialWithoutHint(t *testing.T) {
	p := NewThrottlePolicy(ThrottleOptions{MaxAttempts: 5, MaxWaitTime: time.Minute, BaseDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond}, nil)
	p.OnBeforeSend(documentRequest(domain.OperationRead))

	var got []time.Duration
	for i := 0; i < 4; i++ {
		d, err := p.ShouldRetry(context.Background(), failure.New(failure.StatusTooManyRequests, ""))
		require.NoError(t, err)
		require.True(t, d.ShouldRetry)
		got = append(got, d.Backoff)
	}
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 35 * time.Millisecond, 35 * time.Millisecond}, got)
}

func TestThrottle_Limits(t *testing.T) {
	t.Run("max attempts", func(t *testing.T) {
		p := NewThrottlePolicy(ThrottleOptions{MaxAttempts: 2, MaxWaitTime: time.Minute, BaseDelay: time.Millisecond, MaxDelay: time.Second}, nil)
		p.OnBeforeSend(documentRequest(domain.OperationRead))
		throttled := failure.NewThrottled("", time.Millisecond)

		for i := 0; i < 2; i++ {
			d, _ := p.ShouldRetry(context.Background(), throttled)
			require.True(t, d.ShouldRetry)
		}
		d, err := p.ShouldRetry(context.Background(), throttled)
		require.NoError(t, err)
		assert.False(t, d.ShouldRetry)
		assert.Same(t, throttled, d.Err)
	})

	t.Run("max wait time", func(t *testing.T) {
		p := NewThrottlePolicy(ThrottleOptions{MaxAttempts: 10, MaxWaitTime: time.Second, BaseDelay: time.Millisecond, MaxDelay: time.Second}, nil)
		p.OnBeforeSend(documentRequest(domain.OperationRead))

		d, _ := p.ShouldRetry(context.Background(), failure.NewThrottled("", 600*time.Millisecond))
		require.True(t, d.ShouldRetry)
		d, _ = p.ShouldRetry(context.Background(), failure.NewThrottled("", 600*time.Millisecond))
		assert.False(t, d.ShouldRetry)
	})
}

func TestThrottle_IgnoresOtherFailures(t *testing.T) {
	p := NewThrottlePolicy(ThrottleOptions{}, nil)
	p.OnBeforeSend(documentRequest(domain.OperationRead))

	for _, err := range []error{
		failure.NewNotFound(""),
		failure.New(failure.StatusServiceUnavailable, ""),
		&failure.ConnectivityError{Err: context.DeadlineExceeded},
	} {
		d, perr := p.ShouldRetry(context.Background(), err)
		require.NoError(t, perr)
		assert.False(t, d.ShouldRetry, "%v", err)
	}
}
