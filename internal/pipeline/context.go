// Package pipeline implements the per-host plugin chain that produces a
// response for every request: the forward phase (spec §4.3) and the reverse
// phase, plus the per-request metadata carried between them.
package pipeline

import (
	"net/http"
	"net/url"
	"time"
)

// Principal is an authenticated identity plus its roles, produced by an auth
// plugin and consumed by authz and the selector handler (spec §3).
type Principal struct {
	UserID string
	Roles  []string
	// AllowedSelectors, when non-nil, restricts the selector handler to CSS
	// selectors that are an exact match or a syntactic subset of one of
	// these (spec §4.5 "Interaction with authorization", §9). Nil means no
	// restriction was annotated by an authz plugin.
	AllowedSelectors []string
}

// HasRole reports whether the principal carries the named role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Request is the parsed inbound request as handed to plugins: a plain copy
// of the standard library request's method, path, query, headers, host,
// body and remote address, while Context carries the pipeline-specific
// extensions.
type Request struct {
	Method string
	// Path is the canonical request path (decoded, query and fragment
	// stripped) that the host router and file handler operate on.
	Path string
	// RawPath is the original request-target as received, before fragment
	// extraction, used only to recover the "#(selector=...)" form.
	RawPath string
	Query   url.Values
	Header  http.Header
	Host    string
	Body    []byte
	Remote  string
}

// Response is what a plugin produces or transforms.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
}

// NewResponse builds a Response with an initialized header map.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// Context is the per-request mutable metadata shared by every plugin in the
// pipeline (spec §3 "RequestContext"). Well-known fields are named; Extra is
// the untyped bag for plugin-defined extensions (spec §9 recommends this
// typed-struct-plus-bag shape over a single heterogeneous map).
type Context struct {
	Req *Request

	// Host is the matched HostConfig for this request (opaque to pipeline,
	// typed concretely by the config package; stored as any to avoid an
	// import cycle between pipeline and config).
	Host any
	// Server is the active ServerConfig snapshot, same typing rationale.
	Server any

	// Principal is set by an auth plugin.
	Principal *Principal

	// ResolvedPath is the absolute filesystem path a file-owning plugin
	// resolved the request to, populated by the file handler, and by the
	// selector handler once it has written a mutated document.
	ResolvedPath string

	// MutatedDocument holds a re-serialized HTML document produced by the
	// selector handler, for the file handler to persist instead of the raw
	// request body (spec §4.5 "Document handling").
	MutatedDocument []byte
	// HasMutatedDocument distinguishes "no mutation" from "mutated to empty".
	HasMutatedDocument bool

	// Selector is the decoded selector string, if this request activated
	// the selector protocol (spec §4.5 "Activation").
	Selector string
	HasSelector bool

	// Deadline, if set, is the absolute time by which a response must be
	// produced (spec §4.3 "Cancellation"). Plugins performing long I/O
	// should check it at natural suspension points.
	Deadline time.Time
	HasDeadline bool

	// RequestID is assigned once per request by whoever builds the context
	// (the front door passes it to NewContext) for log correlation (ambient
	// concern, §2.1 of SPEC_FULL.md).
	RequestID string

	started time.Time
	Extra   map[string]any
}

// NewContext builds a fresh per-request Context.
func NewContext(req *Request, requestID string) *Context {
	return &Context{
		Req:       req,
		RequestID: requestID,
		started:   time.Now(),
		Extra:     make(map[string]any),
	}
}

// Elapsed returns the time since the context was created.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.started)
}

// Get reads a value from the extension bag.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.Extra[key]
	return v, ok
}

// Set writes a value into the extension bag.
func (c *Context) Set(key string, value any) {
	c.Extra[key] = value
}
