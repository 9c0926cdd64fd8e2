package dataloader

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// Service is the orchestration layer between request producers and the
// transport. It assigns cancellation tokens, runs the optional authorisation
// handshake, resolves hosts, enforces per-host rate limits and demultiplexes
// transport callbacks onto the right operation. It is reactive: it owns no
// long-lived goroutines and never blocks a caller. Safe for concurrent use.
type Service struct {
	transport      Transport
	rateLimiter    RateLimiter
	resolver       Resolver
	metrics        *MetricsCollector
	debug          *DebugConfig
	logger         Logger
	userAgent      string
	acceptLanguage string
	defaultTimeout time.Duration

	httpClient    *http.Client
	maxConcurrent int

	registry     *operationRegistry
	tokenFactory *CancellationTokenFactory

	closed          int32
	validationError error
}

// New constructs a Service using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Service {
	service := &Service{
		rateLimiter:    NewHostRateLimiter(0, 0),
		resolver:       nil,
		metrics:        nil,
		debug:          DefaultDebugConfig(),
		logger:         nil,
		userAgent:      defaultUserAgent(),
		acceptLanguage: defaultAcceptLanguage,
		maxConcurrent:  DefaultMaxConcurrentTransfers,
		registry:       newOperationRegistry(),
	}
	service.tokenFactory = NewCancellationTokenFactory(service)

	for _, option := range options {
		option(service)
	}

	if service.transport == nil {
		service.transport = NewHTTPTransport(service.httpClient, service.maxConcurrent)
	}

	if err := service.ValidateConfiguration(); err != nil {
		service.validationError = err
	}

	return service
}

// Perform hands req to the service for execution. The returned token cancels
// the request; handler receives exactly one terminal callback, on a service
// goroutine for dispatched requests or on the calling goroutine for requests
// that never reach the transport. A synchronous error is returned only for
// caller misuse: nil arguments or an invalid configuration.
func (s *Service) Perform(req *Request, handler ResponseHandler) (CancellationToken, error) {
	if req == nil {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "request cannot be nil",
			Timestamp: time.Now(),
		}
	}
	if handler == nil {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "response handler cannot be nil",
			Timestamp: time.Now(),
		}
	}
	if s.validationError != nil {
		return nil, s.validationError
	}

	token := s.tokenFactory.CreateToken()
	req.token = token
	if s.debug != nil && s.debug.Enabled && s.debug.RequestIDGen != nil {
		req.debugID = s.debug.RequestIDGen()
	}

	if s.debug != nil && s.debug.Enabled && s.debug.LogRequests && s.logger != nil {
		s.logger.Debug("Incoming request", "requestID", req.debugID, "method", req.Method, "url", req.URL, "source", req.SourceIdentifier)
	}

	if authoriser, ok := handler.(Authoriser); ok && authoriser.ShouldAuthorise(req) {
		if s.debug != nil && s.debug.Enabled && s.debug.LogAuthorisation && s.logger != nil {
			s.logger.Debug("Awaiting authorisation", "requestID", req.debugID, "url", req.URL)
		}
		authoriser.Authorise(req)
		return token, nil
	}

	s.performRequest(handler, req)
	return token, nil
}

// NotifyAuthorised reports a successful authorisation handshake for req and
// dispatches it.
func (s *Service) NotifyAuthorised(handler ResponseHandler, req *Request) {
	if req == nil || handler == nil {
		return
	}

	if s.metrics != nil {
		s.metrics.RecordAuthorisation("granted")
	}
	if s.debug != nil && s.debug.Enabled && s.debug.LogAuthorisation && s.logger != nil {
		s.logger.Debug("Authorisation granted", "requestID", req.debugID, "url", req.URL)
	}

	s.performRequest(handler, req)
}

// NotifyAuthorisationFailed reports a rejected authorisation handshake. The
// request is never dispatched; handler receives its single failure callback
// on the calling goroutine.
func (s *Service) NotifyAuthorisationFailed(handler ResponseHandler, req *Request, cause error) {
	if req == nil || handler == nil {
		return
	}

	if s.metrics != nil {
		s.metrics.RecordAuthorisation("denied")
	}
	if s.debug != nil && s.debug.Enabled && s.debug.LogAuthorisation && s.logger != nil {
		s.logger.Warn("Authorisation denied", "requestID", req.debugID, "url", req.URL, "cause", cause)
	}

	if cause == nil {
		cause = ErrAuthorisationFailed
	}
	s.failRequest(handler, req, s.newClientError(ErrorTypeAuthorisation, "authorisation failed", cause, req))
}

// performRequest dispatches an admitted request: host resolution, default
// headers, task creation, registration, start. Failures on this path reach
// the handler as a failed Response, never as a panic or returned error.
func (s *Service) performRequest(handler ResponseHandler, req *Request) {
	if atomic.LoadInt32(&s.closed) == 1 {
		s.failRequest(handler, req, s.newClientError(ErrorTypeCancelled, "service is closed", ErrServiceClosed, req))
		return
	}

	if token := req.CancellationToken(); token != nil && token.Cancelled() {
		if s.debug != nil && s.debug.Enabled && s.debug.LogCancellations && s.logger != nil {
			s.logger.Debug("Request cancelled before dispatch", "requestID", req.debugID, "url", req.URL)
		}
		s.failRequest(handler, req, s.newClientError(ErrorTypeCancelled, "request cancelled", ErrCancelled, req))
		return
	}

	host := req.Host()
	if host == "" {
		s.failRequest(handler, req, s.newClientError(ErrorTypeValidation, "request URL has no host", nil, req))
		return
	}

	if req.Headers == nil {
		req.Headers = make(http.Header)
	}

	if s.resolver != nil {
		if address := s.resolver.AddressFor(host); address != "" && address != host {
			original := req.rewriteHost(address)
			if original != "" && req.Headers.Get("Host") == "" {
				req.Headers.Set("Host", original)
			}
			if s.debug != nil && s.debug.Enabled && s.debug.LogRequests && s.logger != nil {
				s.logger.Debug("Host rewritten", "requestID", req.debugID, "host", original, "address", address)
			}
			host = address
		}
	}

	s.applyDefaultHeaders(req)

	endpoint := endpointForRequest(req)

	task, err := s.transport.CreateTask(req, s)
	if err != nil {
		if s.logger != nil && s.debug != nil && s.debug.Enabled {
			s.logger.Error("Transport task creation failed", "requestID", req.debugID, "url", req.URL, "error", err)
		}
		s.failRequest(handler, req, s.newClientError(ErrorTypeTransport, "failed to create transport task", err, req))
		return
	}

	op := newRequestOperation(req, task, handler, s.rateLimiter, host, req.debugID)
	s.registry.insert(task.ID(), op)

	if s.metrics != nil {
		s.metrics.RecordRequestStart(req.Method, endpoint)
		s.metrics.RecordOperationsActive(s.registry.count())
	}
	if s.debug != nil && s.debug.Enabled && s.debug.LogRequests && s.logger != nil {
		s.logger.Debug("Dispatching request", "requestID", req.debugID, "taskID", task.ID(), "method", req.Method, "endpoint", endpoint)
	}

	if err := task.Start(); err != nil {
		s.registry.remove(task.ID())
		if s.metrics != nil {
			s.metrics.RecordRequestEnd(req.Method, endpoint)
			s.metrics.RecordOperationsActive(s.registry.count())
		}
		s.failRequest(handler, req, s.newClientError(ErrorTypeTransport, "failed to start transport task", err, req))
	}
}

// TokenCancelled implements CancellationDelegate. Unknown tokens, including
// tokens whose operation already completed, are ignored.
func (s *Service) TokenCancelled(token CancellationToken) {
	op := s.registry.findByToken(token)
	if op == nil {
		return
	}

	if s.metrics != nil {
		s.metrics.RecordCancellation(op.request.Method, endpointForRequest(op.request))
	}
	if s.debug != nil && s.debug.Enabled && s.debug.LogCancellations && s.logger != nil {
		s.logger.Debug("Cancelling request", "requestID", op.requestID, "tokenID", token.ID(), "url", op.request.URL)
	}

	op.cancel()
}

// HandleResponseMetadata implements TransportDelegate. Tasks no longer in the
// registry get aborted; nothing is waiting on them.
func (s *Service) HandleResponseMetadata(taskID string, meta ResponseMetadata) Admission {
	op := s.registry.find(taskID)
	if op == nil {
		return AdmissionAbort
	}

	admission := op.onResponseMetadata(meta)
	if admission == AdmissionAbort && op.currentState() == stateRateLimited {
		if s.metrics != nil {
			s.metrics.RecordRateLimited(op.host)
		}
		if s.debug != nil && s.debug.Enabled && s.debug.LogRateLimit && s.logger != nil {
			s.logger.Warn("Rate limit exceeded", "requestID", op.requestID, "host", op.host)
		}
	}
	return admission
}

// HandleBodyChunk implements TransportDelegate. Chunks for unknown tasks are
// dropped.
func (s *Service) HandleBodyChunk(taskID string, chunk []byte) {
	op := s.registry.find(taskID)
	if op == nil {
		return
	}
	op.onBodyChunk(chunk)
}

// HandleCompletion implements TransportDelegate. The operation leaves the
// registry before the handler is notified, so a token fired during the
// callback is a no-op.
func (s *Service) HandleCompletion(taskID string, err error) {
	op := s.registry.find(taskID)
	if op == nil {
		return
	}
	s.registry.remove(taskID)

	resp := op.onComplete(err)
	if resp == nil {
		return
	}

	endpoint := endpointForRequest(op.request)
	duration := time.Since(op.started)

	if s.metrics != nil {
		s.metrics.RecordRequestEnd(op.request.Method, endpoint)
		s.metrics.RecordOperationsActive(s.registry.count())
		s.metrics.RecordRequest(op.request.Method, endpoint, resp.StatusCode, duration)
	}

	if resp.Err != nil {
		if clientErr, ok := resp.Err.(*ClientError); ok && s.metrics != nil {
			s.metrics.RecordError(clientErr.Type, op.request.Method, endpoint)
		}
		if s.debug != nil && s.debug.Enabled && s.debug.LogRequests && s.logger != nil {
			s.logger.Debug("Request failed", "requestID", op.requestID, "endpoint", endpoint, "duration", duration, "error", resp.Err)
		}
		return
	}

	if s.debug != nil && s.debug.Enabled && s.debug.LogRequests && s.logger != nil {
		s.logger.Debug("Request completed", "requestID", op.requestID, "endpoint", endpoint, "statusCode", resp.StatusCode, "duration", duration)
	}
}

// Close cancels every in-flight operation. Requests performed afterwards fail
// through their handler with ErrServiceClosed. Close is idempotent.
func (s *Service) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}

	operations := s.registry.snapshot()
	for _, op := range operations {
		op.cancel()
	}

	if s.debug != nil && s.debug.Enabled && s.logger != nil {
		s.logger.Info("Service closed", "cancelledOperations", len(operations))
	}
}

// InFlight returns the number of operations currently registered.
func (s *Service) InFlight() int {
	return s.registry.count()
}

// failRequest delivers a synthesized failure for a request that never reached
// the transport.
func (s *Service) failRequest(handler ResponseHandler, req *Request, clientErr *ClientError) {
	if s.metrics != nil {
		s.metrics.RecordError(clientErr.Type, req.Method, endpointForRequest(req))
	}
	handler.FailedResponse(&Response{
		Request:    req,
		StatusCode: clientErr.StatusCode,
		Err:        clientErr,
	})
}

// applyDefaultHeaders injects User-Agent, Accept-Language and the default
// timeout for requests that set none.
func (s *Service) applyDefaultHeaders(req *Request) {
	if req.UserAgent != "" {
		req.Headers.Set("User-Agent", req.UserAgent)
	} else if req.Headers.Get("User-Agent") == "" && s.userAgent != "" {
		req.Headers.Set("User-Agent", s.userAgent)
	}
	if req.Headers.Get("Accept-Language") == "" && s.acceptLanguage != "" {
		req.Headers.Set("Accept-Language", s.acceptLanguage)
	}
	if req.Timeout <= 0 && s.defaultTimeout > 0 {
		req.Timeout = s.defaultTimeout
	}
}

func (s *Service) newClientError(errorType, message string, cause error, req *Request) *ClientError {
	return &ClientError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		RequestID: req.debugID,
		Method:    req.Method,
		URL:       req.URL,
		Host:      req.Host(),
		Timestamp: time.Now(),
	}
}

// IsValid reports whether configuration validation passed at construction.
func (s *Service) IsValid() bool {
	return s.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (s *Service) ValidationError() error {
	return s.validationError
}

// ValidateConfigurationStrict panics if configuration is invalid.
func (s *Service) ValidateConfigurationStrict() {
	if err := s.ValidateConfiguration(); err != nil {
		panic(fmt.Sprintf("invalid service configuration: %v", err))
	}
}

func endpointForRequest(req *Request) string {
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)

	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteString("/")
	}
	return builder.String()
}
