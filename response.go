package dataloader

import (
	"net/http"
	"strconv"
	"time"
)

// Response is the terminal outcome of one Request: transport metadata and the
// accumulated body on success, or an error on failure. Exactly one Response
// is built per dispatched Request, and it is immutable once constructed.
type Response struct {
	// Request is the originating request.
	Request *Request
	// StatusCode is the HTTP status code, zero when no metadata arrived.
	StatusCode int
	// Status is the HTTP status line, empty when no metadata arrived.
	Status string
	// Headers are the response headers, nil when no metadata arrived.
	Headers http.Header
	// Body is the accumulated response body. Empty for failures and for
	// requests that streamed their chunks to a ChunkReceiver.
	Body []byte
	// Err is non-nil for the failure path; always a *ClientError.
	Err error
	// RetryAfter is the parsed Retry-After interval for 429 and 503
	// responses, zero otherwise.
	RetryAfter time.Duration
}

// ShouldRetryAfter reports whether the origin asked the caller to back off.
func (r *Response) ShouldRetryAfter() bool {
	return r.RetryAfter > 0
}

// parseRetryAfter interprets the Retry-After header, which is either a delta
// in seconds or an HTTP date.
func parseRetryAfter(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
