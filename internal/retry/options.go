package retry

import "time"

// Options configures the policies built by a Factory and the executor budget.
type Options struct {
	// MaxAttempts bounds the total number of sends for one request.
	MaxAttempts int

	Failover FailoverOptions
	Throttle ThrottleOptions
}

type FailoverOptions struct {
	Enabled       bool
	MaxRetries    int
	RetryInterval time.Duration
}

type ThrottleOptions struct {
	MaxAttempts int
	MaxWaitTime time.Duration
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultOptions provides sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 130,
		Failover: FailoverOptions{
			Enabled:       true,
			MaxRetries:    120,
			RetryInterval: time.Second,
		},
		Throttle: ThrottleOptions{
			MaxAttempts: 9,
			MaxWaitTime: 30 * time.Second,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
	}
}

// withDefaults fills zero values from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.Failover.MaxRetries <= 0 {
		o.Failover.MaxRetries = d.Failover.MaxRetries
	}
	if o.Failover.RetryInterval <= 0 {
		o.Failover.RetryInterval = d.Failover.RetryInterval
	}
	if o.Throttle.MaxAttempts <= 0 {
		o.Throttle.MaxAttempts = d.Throttle.MaxAttempts
	}
	if o.Throttle.MaxWaitTime <= 0 {
		o.Throttle.MaxWaitTime = d.Throttle.MaxWaitTime
	}
	if o.Throttle.BaseDelay <= 0 {
		o.Throttle.BaseDelay = d.Throttle.BaseDelay
	}
	if o.Throttle.MaxDelay <= 0 {
		o.Throttle.MaxDelay = d.Throttle.MaxDelay
	}
	return o
}
