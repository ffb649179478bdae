// Package catalog resolves collection links to the identity of the container
// currently living under that name.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/metrics"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrNoCollectionLink   = errors.New("request does not address a collection")
)

// Source looks up the authoritative identity of a collection.
type Source interface {
	Lookup(ctx context.Context, link string) (domain.Container, error)
}

// Resolver caches Source lookups by collection link. Concurrent lookups of
// the same link share one Source call.
type Resolver struct {
	source  Source
	timeout time.Duration
	log     *slog.Logger

	mu    sync.RWMutex
	cache map[string]domain.Container
	group singleflight.Group
}

func NewResolver(source Source, timeout time.Duration, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		source:  source,
		timeout: timeout,
		log:     log.With("component", "catalog"),
		cache:   make(map[string]domain.Container),
	}
}

// Resolve returns the container addressed by req. With forceRefresh the
// cached entry is bypassed and replaced by a fresh lookup.
func (r *Resolver) Resolve(ctx context.Context, req *domain.Request, forceRefresh bool) (domain.Container, error) {
	link := req.CollectionLink()
	if link == "" {
		return domain.Container{}, fmt.Errorf("%w: %s", ErrNoCollectionLink, req.ResourceLink)
	}

	if !forceRefresh {
		if c, ok := r.cached(link); ok {
			metrics.CollectionCacheTotal.WithLabelValues("hit").Inc()
			return c, nil
		}
		metrics.CollectionCacheTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.CollectionCacheTotal.WithLabelValues("refresh").Inc()
	}

	key := link
	if forceRefresh {
		key = "refresh:" + link
	}

	ch := r.group.DoChan(key, func() (any, error) {
		// The lookup outlives any single waiter.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		c, err := r.source.Lookup(lookupCtx, link)
		if err != nil {
			return domain.Container{}, err
		}
		r.store(link, c)
		return c, nil
	})

	select {
	case <-ctx.Done():
		return domain.Container{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Container{}, fmt.Errorf("lookup %s: %w", link, res.Err)
		}
		c := res.Val.(domain.Container)
		if res.Shared {
			r.log.Debug("Shared collection lookup", "link", link, "rid", c.ResourceID)
		}
		return c, nil
	}
}

// Invalidate drops the cached entry for link.
func (r *Resolver) Invalidate(link string) {
	r.mu.Lock()
	delete(r.cache, link)
	r.mu.Unlock()
}

// Len returns the number of cached collections.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func (r *Resolver) cached(link string) (domain.Container, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cache[link]
	return c, ok
}

func (r *Resolver) store(link string, c domain.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.cache[link]; ok && prev.ResourceID != c.ResourceID {
		r.log.Info("Collection identity changed", "link", link, "old_rid", prev.ResourceID, "new_rid", c.ResourceID)
	}
	r.cache[link] = c
}
