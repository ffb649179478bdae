package endpoint

import (
	"slices"
	"sync"
	"time"
)

type unavailability struct {
	readUntil  time.Time
	writeUntil time.Time
}

// LocationCache orders regional endpoints for reads and writes. Endpoints in
// preferred locations come first, in preference order. Endpoints marked
// unavailable move to the back until their mark expires.
type LocationCache struct {
	mu              sync.RWMutex
	defaultEndpoint string
	preferred       []string
	expiry          time.Duration
	now             func() time.Time

	account     *Account
	hint        string
	unavailable map[string]*unavailability
}

func NewLocationCache(defaultEndpoint string, preferred []string, expiry time.Duration) *LocationCache {
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	return &LocationCache{
		defaultEndpoint: defaultEndpoint,
		preferred:       preferred,
		expiry:          expiry,
		now:             time.Now,
		unavailable:     make(map[string]*unavailability),
	}
}

// Update replaces the account topology. A non-empty hint, either a location
// name or an endpoint, is ranked first.
func (c *LocationCache) Update(acct *Account, hint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account = acct
	c.hint = hint
}

func (c *LocationCache) MarkUnavailableForRead(endpoint string) {
	c.mark(endpoint, func(u *unavailability, until time.Time) { u.readUntil = until })
}

func (c *LocationCache) MarkUnavailableForWrite(endpoint string) {
	c.mark(endpoint, func(u *unavailability, until time.Time) { u.writeUntil = until })
}

func (c *LocationCache) mark(endpoint string, set func(*unavailability, time.Time)) {
	if endpoint == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.unavailable[endpoint]
	if !ok {
		u = &unavailability{}
		c.unavailable[endpoint] = u
	}
	set(u, c.now().Add(c.expiry))
}

// ReadEndpoints returns the ranked endpoints for read operations.
func (c *LocationCache) ReadEndpoints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var locs []Location
	if c.account != nil {
		locs = c.account.ReadableLocations
	}
	return c.rank(locs, true, func(u *unavailability) time.Time { return u.readUntil })
}

// WriteEndpoints returns the ranked endpoints for write operations. Without
// multi-region writes only the account's write order counts.
func (c *LocationCache) WriteEndpoints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var (
		locs      []Location
		preferred bool
	)
	if c.account != nil {
		locs = c.account.WritableLocations
		preferred = c.account.EnableMultipleWriteLocations
	}
	return c.rank(locs, preferred, func(u *unavailability) time.Time { return u.writeUntil })
}

// UnavailableCount returns the endpoints currently marked for reads and
// writes.
func (c *LocationCache) UnavailableCount() (read, write int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	for _, u := range c.unavailable {
		if now.Before(u.readUntil) {
			read++
		}
		if now.Before(u.writeUntil) {
			write++
		}
	}
	return read, write
}

func (c *LocationCache) rank(locs []Location, usePreferred bool, until func(*unavailability) time.Time) []string {
	if len(locs) == 0 {
		if c.defaultEndpoint == "" {
			return nil
		}
		return []string{c.defaultEndpoint}
	}

	ordered := slices.Clone(locs)
	if usePreferred && len(c.preferred) > 0 {
		slices.SortStableFunc(ordered, func(a, b Location) int {
			return c.preferenceIndex(a.Name) - c.preferenceIndex(b.Name)
		})
	}
	if c.hint != "" {
		slices.SortStableFunc(ordered, func(a, b Location) int {
			return boolRank(c.matchesHint(a)) - boolRank(c.matchesHint(b))
		})
	}

	now := c.now()
	available := make([]string, 0, len(ordered))
	var down []string
	for _, l := range ordered {
		if u, ok := c.unavailable[l.Endpoint]; ok && now.Before(until(u)) {
			down = append(down, l.Endpoint)
			continue
		}
		available = append(available, l.Endpoint)
	}
	return append(available, down...)
}

func (c *LocationCache) preferenceIndex(name string) int {
	if i := slices.Index(c.preferred, name); i >= 0 {
		return i
	}
	return len(c.preferred)
}

func (c *LocationCache) matchesHint(l Location) bool {
	return l.Name == c.hint || l.Endpoint == c.hint
}

func boolRank(first bool) int {
	if first {
		return 0
	}
	return 1
}
