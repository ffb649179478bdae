package retry

import "log/slog"

// Factory builds the policy chain of each request.
type Factory struct {
	endpoints EndpointManager
	resolver  CollectionResolver
	sessions  SessionStore
	opts      Options
	log       *slog.Logger
}

func NewFactory(
	endpoints EndpointManager,
	resolver CollectionResolver,
	sessions SessionStore,
	opts Options,
	log *slog.Logger,
) *Factory {
	if log == nil {
		log = slog.Default()
	}
	return &Factory{
		endpoints: endpoints,
		resolver:  resolver,
		sessions:  sessions,
		opts:      opts.withDefaults(),
		log:       log.With("component", "retry"),
	}
}

// Options returns the options after defaults were applied.
func (f *Factory) Options() Options {
	return f.opts
}

// NewRequestPolicy returns a fresh chain for one request. Policies keep
// per-attempt state, so a chain must not be shared between requests.
func (f *Factory) NewRequestPolicy() *Chain {
	return NewChain(f.log,
		NewEndpointFailoverPolicy(f.endpoints, f.opts.Failover, f.log),
		NewThrottlePolicy(f.opts.Throttle, f.log),
		NewStaleNameCachePolicy(f.resolver, f.log),
		NewRenameAwarePolicy(f.resolver, f.sessions, f.log),
	)
}
