package dataloader

import (
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

var requestSequence uint64

// Request describes one logical HTTP request handed to the Service. Callers
// construct it, the Service (and an Authoriser, if any) mutate it during
// handoff, and dispatch consumes it exactly once.
type Request struct {
	// Method is the HTTP method; NewRequest defaults it to GET.
	Method string
	// URL is the absolute target URL.
	URL string
	// Headers are sent verbatim; the Service injects User-Agent and
	// Accept-Language when absent and preserves the original host here on
	// resolver rewrite.
	Headers http.Header
	// Body is the request payload, if any.
	Body []byte
	// Timeout bounds the whole transfer. Zero means the transport default.
	Timeout time.Duration
	// StreamChunks delivers body chunks to a ChunkReceiver handler as they
	// arrive instead of accumulating them into the final Response.
	StreamChunks bool
	// SourceIdentifier tags the subsystem issuing the request, for logs and
	// accounting. Opaque to the service.
	SourceIdentifier string
	// UserAgent overrides the service-wide User-Agent for this request.
	UserAgent string

	id      uint64
	token   CancellationToken
	debugID string
}

// NewRequest creates a request for url with a fresh unique identity.
func NewRequest(url string) *Request {
	return &Request{
		Method:  http.MethodGet,
		URL:     url,
		Headers: make(http.Header),
		id:      atomic.AddUint64(&requestSequence, 1),
	}
}

// UniqueID returns the identity assigned at construction. Two requests are
// the same logical request exactly when their identities match.
func (r *Request) UniqueID() uint64 {
	return r.id
}

// Equal reports whether other is the same logical request.
func (r *Request) Equal(other *Request) bool {
	return r != nil && other != nil && r.id == other.id
}

// CancellationToken returns the token assigned by the Service during handoff,
// or nil before handoff.
func (r *Request) CancellationToken() CancellationToken {
	return r.token
}

// Host returns the host component of the request URL, without the port.
func (r *Request) Host() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// rewriteHost swaps the URL's host (keeping any port) and returns the
// previous host. An unparsable URL is left untouched.
func (r *Request) rewriteHost(host string) string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	original := u.Hostname()
	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	r.URL = u.String()
	return original
}
