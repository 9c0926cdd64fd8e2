package dataloader

import (
	"net/http"
	"time"
)

// ResponseHandler receives the terminal notification for a logical request.
// Exactly one of the two methods is invoked, exactly once, per request handed
// to Service.Perform.
type ResponseHandler interface {
	// ReceivedResponse delivers a successful response.
	ReceivedResponse(resp *Response)
	// FailedResponse delivers a response whose Err field is set.
	FailedResponse(resp *Response)
}

// Authoriser is an optional capability of a ResponseHandler. When a handler
// implements it and ShouldAuthorise returns true for a request, the Service
// defers dispatch until the authoriser reports the outcome through
// Service.NotifyAuthorised or Service.NotifyAuthorisationFailed.
type Authoriser interface {
	// ShouldAuthorise reports whether the request needs authorisation before
	// dispatch.
	ShouldAuthorise(req *Request) bool
	// Authorise begins asynchronous authorisation. Implementations typically
	// attach credentials to the request and then call back into the Service.
	Authorise(req *Request)
}

// ChunkReceiver is an optional capability of a ResponseHandler. When a
// handler implements it and the request sets StreamChunks, body chunks are
// forwarded as they arrive and the terminal Response carries no body.
type ChunkReceiver interface {
	ReceivedDataChunk(req *Request, chunk []byte)
}

// RateLimiter decides whether a transfer to a host may proceed. It is
// consulted when response metadata first arrives and informed of Retry-After
// intervals the origin reports. Implementations must be safe for concurrent
// use.
type RateLimiter interface {
	// ShouldProceed reports whether a transfer to host is admitted.
	ShouldProceed(host string) bool
	// SetRetryAfter tells the limiter the origin asked for a back-off.
	SetRetryAfter(host string, d time.Duration)
}

// Resolver maps a logical host name to a physical address. Returning "" or
// the host itself means no rewrite. Implementations must be safe for
// concurrent use.
type Resolver interface {
	AddressFor(host string) string
}

// Admission is the decision returned when response metadata arrives: continue
// receiving the body, or abort the task.
type Admission int

const (
	AdmissionAllow Admission = iota
	AdmissionAbort
)

// ResponseMetadata carries the transport-level response description delivered
// before any body bytes.
type ResponseMetadata struct {
	StatusCode    int
	Status        string
	Headers       http.Header
	ContentLength int64
}

// TransportDelegate receives asynchronous task callbacks from a Transport.
// For one task the transport guarantees the order: HandleResponseMetadata,
// zero or more HandleBodyChunk calls, exactly one HandleCompletion. The
// delegate tolerates callbacks for unknown task IDs.
type TransportDelegate interface {
	HandleResponseMetadata(taskID string, meta ResponseMetadata) Admission
	HandleBodyChunk(taskID string, chunk []byte)
	HandleCompletion(taskID string, err error)
}

// TransportTask is a live transfer owned by a Transport.
type TransportTask interface {
	// ID is the identity callbacks are demultiplexed by.
	ID() string
	// Start begins the transfer. It returns immediately; outcomes arrive via
	// the delegate.
	Start() error
	// Abort asks the transport to stop the transfer. Completion is still
	// delivered afterwards.
	Abort()
}

// Transport executes transfers and reports their progress to a delegate.
type Transport interface {
	CreateTask(req *Request, delegate TransportDelegate) (TransportTask, error)
}

// Option represents a configuration option
type Option func(*Service)
