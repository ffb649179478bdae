package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ContainerIdentity names one incarnation of a logical container. Deleting a
// container and recreating it under the same name yields a new identity.
type ContainerIdentity string

// IsZero reports whether the identity has not been resolved.
func (id ContainerIdentity) IsZero() bool {
	return id == ""
}

// Container is the resolved form of a collection link.
type Container struct {
	Link       string
	ResourceID ContainerIdentity
}

// RequestContext is the per-attempt state attached to a request.
type RequestContext struct {
	// ResolvedCollectionRID is the identity believed valid before the attempt
	// was sent.
	ResolvedCollectionRID ContainerIdentity

	// ForceNameCacheRefresh asks the next resolution to bypass the cache.
	ForceNameCacheRefresh bool

	// LocationEndpoint is the regional endpoint chosen for the attempt.
	LocationEndpoint string

	// RouteToLocationIndex selects an entry of the ranked endpoint list.
	RouteToLocationIndex int

	// SessionToken is sent with the attempt when non-empty.
	SessionToken string
}

// Request describes one logical operation against the service.
type Request struct {
	ActivityID   string
	Operation    OperationType
	ResourceType ResourceType
	ResourceLink string
	IsNameBased  bool
	PartitionKey string
	Headers      map[string]string
	Body         []byte

	Context *RequestContext
}

// NewRequestFromName creates a request addressed by user-visible names, such
// as /dbs/db/colls/col/docs/docId.
func NewRequestFromName(op OperationType, link string, rt ResourceType) *Request {
	return &Request{
		ActivityID:   uuid.New().String(),
		Operation:    op,
		ResourceType: rt,
		ResourceLink: normalizeLink(link),
		IsNameBased:  true,
		Headers:      make(map[string]string),
		Context:      &RequestContext{},
	}
}

// NewRequestFromID creates a request addressed by resource ids. Such requests
// are not affected by container renames.
func NewRequestFromID(op OperationType, link string, rt ResourceType) *Request {
	r := NewRequestFromName(op, link, rt)
	r.IsNameBased = false
	return r
}

// IsReadOnly reports whether the request can be served by a read region.
func (r *Request) IsReadOnly() bool {
	return r.Operation.IsReadOnly()
}

// CollectionLink returns the /dbs/{db}/colls/{coll} prefix of the resource
// link, or "" if the link does not address anything inside a collection.
func (r *Request) CollectionLink() string {
	parts := strings.Split(strings.Trim(r.ResourceLink, "/"), "/")
	if len(parts) < 4 || parts[0] != "dbs" || parts[2] != "colls" {
		return ""
	}
	if parts[1] == "" || parts[3] == "" {
		return ""
	}
	return "/" + strings.Join(parts[:4], "/")
}

func normalizeLink(link string) string {
	link = strings.Trim(strings.TrimSpace(link), "/")
	if link == "" {
		return "/"
	}
	return "/" + link
}

// Response is a successful service response.
type Response struct {
	StatusCode   int
	Headers      map[string]string
	Body         []byte
	SessionToken string
	ActivityID   string
}
