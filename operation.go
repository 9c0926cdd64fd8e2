package dataloader

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// operationState tracks one operation through its lifecycle. Terminal paths
// converge on stateCompleted, which is entered exactly once.
type operationState int32

const (
	stateDispatched operationState = iota
	stateReceivingBody
	stateRateLimited
	stateCancelled
	stateCompleted
)

// requestOperation is the live unit of work for one dispatched request: it
// owns the transport task, accumulates the body, and finalizes into the
// single Response the handler sees.
//
// Transport callbacks for one task arrive in order on one worker, so buffer
// and metadata need no lock; state is atomic because cancel may race the
// callbacks from a caller goroutine.
type requestOperation struct {
	request     *Request
	task        TransportTask
	handler     ResponseHandler
	chunks      ChunkReceiver
	rateLimiter RateLimiter

	host      string
	requestID string
	started   time.Time

	state   int32
	buffer  bytes.Buffer
	meta    ResponseMetadata
	hasMeta bool
}

func newRequestOperation(req *Request, task TransportTask, handler ResponseHandler, limiter RateLimiter, host, requestID string) *requestOperation {
	op := &requestOperation{
		request:     req,
		task:        task,
		handler:     handler,
		rateLimiter: limiter,
		host:        host,
		requestID:   requestID,
		started:     time.Now(),
		state:       int32(stateDispatched),
	}
	if req.StreamChunks {
		if receiver, ok := handler.(ChunkReceiver); ok {
			op.chunks = receiver
		}
	}
	return op
}

func (op *requestOperation) currentState() operationState {
	return operationState(atomic.LoadInt32(&op.state))
}

// onResponseMetadata consults the rate limiter before admitting the body. A
// rejection aborts the task; the eventual completion then surfaces as a
// rate-limit error.
func (op *requestOperation) onResponseMetadata(meta ResponseMetadata) Admission {
	if op.rateLimiter != nil && !op.rateLimiter.ShouldProceed(op.host) {
		atomic.CompareAndSwapInt32(&op.state, int32(stateDispatched), int32(stateRateLimited))
		return AdmissionAbort
	}

	op.meta = meta
	op.hasMeta = true

	if op.rateLimiter != nil && (meta.StatusCode == http.StatusTooManyRequests || meta.StatusCode == http.StatusServiceUnavailable) {
		if retryAfter := parseRetryAfter(meta.Headers); retryAfter > 0 {
			op.rateLimiter.SetRetryAfter(op.host, retryAfter)
		}
	}

	atomic.CompareAndSwapInt32(&op.state, int32(stateDispatched), int32(stateReceivingBody))
	if op.currentState() == stateCancelled {
		return AdmissionAbort
	}
	return AdmissionAllow
}

// onBodyChunk sinks one chunk. The chunk is only valid for the duration of
// the call; buffering copies it, streaming hands it straight to the receiver.
func (op *requestOperation) onBodyChunk(chunk []byte) {
	switch op.currentState() {
	case stateRateLimited, stateCompleted:
		return
	}

	if op.chunks != nil {
		op.chunks.ReceivedDataChunk(op.request, chunk)
		return
	}
	op.buffer.Write(chunk)
}

// onComplete finalizes the operation exactly once and notifies the handler.
// It returns the delivered response, or nil when a duplicate completion was
// absorbed.
func (op *requestOperation) onComplete(err error) *Response {
	previous := operationState(atomic.SwapInt32(&op.state, int32(stateCompleted)))
	if previous == stateCompleted {
		return nil
	}

	resp := op.buildResponse(previous, err)
	if resp.Err != nil {
		op.handler.FailedResponse(resp)
	} else {
		op.handler.ReceivedResponse(resp)
	}
	return resp
}

// cancel asks the transport to abort. Registry cleanup happens when the
// transport delivers the resulting completion, not here.
func (op *requestOperation) cancel() {
	for {
		current := atomic.LoadInt32(&op.state)
		if current == int32(stateCompleted) || current == int32(stateCancelled) {
			return
		}
		if atomic.CompareAndSwapInt32(&op.state, current, int32(stateCancelled)) {
			op.task.Abort()
			return
		}
	}
}

func (op *requestOperation) buildResponse(previous operationState, err error) *Response {
	resp := &Response{Request: op.request}
	if op.hasMeta {
		resp.StatusCode = op.meta.StatusCode
		resp.Status = op.meta.Status
		resp.Headers = op.meta.Headers
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			resp.RetryAfter = parseRetryAfter(op.meta.Headers)
		}
	}

	switch {
	case previous == stateRateLimited:
		resp.Err = op.clientError(ErrorTypeRateLimit, "admission denied for host", ErrRateLimited, resp.StatusCode)
	case previous == stateCancelled:
		resp.Err = op.clientError(ErrorTypeCancelled, "request cancelled", ErrCancelled, resp.StatusCode)
	case err != nil:
		if isTimeout(err) {
			resp.Err = op.clientError(ErrorTypeTimeout, "request timed out", err, resp.StatusCode)
		} else {
			resp.Err = op.clientError(ErrorTypeTransport, "transport failure", err, resp.StatusCode)
		}
	case !op.hasMeta:
		resp.Err = op.clientError(ErrorTypeTransport, "transfer completed without response metadata", nil, 0)
	default:
		if op.chunks == nil {
			resp.Body = op.buffer.Bytes()
		}
	}
	return resp
}

func (op *requestOperation) clientError(errorType, message string, cause error, statusCode int) *ClientError {
	return &ClientError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		RequestID:  op.requestID,
		Method:     op.request.Method,
		URL:        op.request.URL,
		Host:       op.host,
		StatusCode: statusCode,
		Timestamp:  time.Now(),
		Duration:   time.Since(op.started),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
