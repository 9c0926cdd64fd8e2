package dataloader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/SPTAndrewChang/SPTDataLoader/internal/pool"
)

const (
	// DefaultMaxConcurrentTransfers is the transport's concurrent-transfer
	// ceiling when none is configured.
	DefaultMaxConcurrentTransfers = 32

	// defaultTransferTimeout bounds tasks whose request sets no Timeout.
	defaultTransferTimeout = 30 * time.Second

	// bodyChunkSize is the read granularity for streamed response bodies.
	bodyChunkSize = 16 * 1024
)

var (
	errTransferAborted = errors.New("dataloader: transfer aborted")
	errTaskStarted     = errors.New("dataloader: task already started")
)

// HTTPTransport executes transfers over net/http. Each task runs on one
// worker drawn from a bounded pool, which caps concurrent transfers and
// preserves the per-task callback order: metadata, body chunks, completion.
type HTTPTransport struct {
	client  *http.Client
	gate    *pool.Gate
	timeout time.Duration
}

// NewHTTPTransport creates a transport over client with at most maxConcurrent
// simultaneous transfers. A nil client gets a default one; a non-positive
// ceiling gets DefaultMaxConcurrentTransfers.
func NewHTTPTransport(client *http.Client, maxConcurrent int) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTransfers
	}
	return &HTTPTransport{
		client:  client,
		gate:    pool.New(maxConcurrent),
		timeout: defaultTransferTimeout,
	}
}

// MaxConcurrent returns the transfer ceiling.
func (t *HTTPTransport) MaxConcurrent() int {
	return t.gate.Limit()
}

// InFlight returns the number of transfers currently holding a worker slot.
func (t *HTTPTransport) InFlight() int {
	return t.gate.InUse()
}

// CreateTask implements Transport. The task does nothing until Start.
func (t *HTTPTransport) CreateTask(req *Request, delegate TransportDelegate) (TransportTask, error) {
	if req == nil {
		return nil, errors.New("dataloader: nil request")
	}
	if delegate == nil {
		return nil, errors.New("dataloader: nil transport delegate")
	}

	ctx, abort := context.WithCancel(context.Background())
	return &httpTask{
		id:        uuid.NewString(),
		transport: t,
		request:   req,
		delegate:  delegate,
		ctx:       ctx,
		abort:     abort,
	}, nil
}

type httpTask struct {
	id        string
	transport *HTTPTransport
	request   *Request
	delegate  TransportDelegate
	ctx       context.Context
	abort     context.CancelFunc
	started   int32
}

func (t *httpTask) ID() string {
	return t.id
}

// Start launches the transfer on its own worker goroutine.
func (t *httpTask) Start() error {
	if !atomic.CompareAndSwapInt32(&t.started, 0, 1) {
		return errTaskStarted
	}
	go t.run()
	return nil
}

// Abort stops the transfer. The completion callback is still delivered.
func (t *httpTask) Abort() {
	t.abort()
}

func (t *httpTask) run() {
	if err := t.transport.gate.Acquire(t.ctx); err != nil {
		t.delegate.HandleCompletion(t.id, err)
		return
	}
	defer t.transport.gate.Release()

	timeout := t.request.Timeout
	if timeout <= 0 {
		timeout = t.transport.timeout
	}
	ctx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()

	httpReq, err := t.buildHTTPRequest(ctx)
	if err != nil {
		t.delegate.HandleCompletion(t.id, err)
		return
	}

	resp, err := t.transport.client.Do(httpReq)
	if err != nil {
		t.delegate.HandleCompletion(t.id, err)
		return
	}
	defer resp.Body.Close()

	meta := ResponseMetadata{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Headers:       resp.Header,
		ContentLength: resp.ContentLength,
	}
	if t.delegate.HandleResponseMetadata(t.id, meta) == AdmissionAbort {
		t.delegate.HandleCompletion(t.id, errTransferAborted)
		return
	}

	buf := make([]byte, bodyChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			t.delegate.HandleBodyChunk(t.id, buf[:n])
		}
		if readErr == io.EOF {
			t.delegate.HandleCompletion(t.id, nil)
			return
		}
		if readErr != nil {
			t.delegate.HandleCompletion(t.id, readErr)
			return
		}
	}
}

func (t *httpTask) buildHTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(t.request.Body) > 0 {
		body = bytes.NewReader(t.request.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, t.request.Method, t.request.URL, body)
	if err != nil {
		return nil, err
	}

	for name, values := range t.request.Headers {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}
	// net/http takes the wire Host from the request field, not the header map.
	if host := t.request.Headers.Get("Host"); host != "" {
		httpReq.Host = host
		httpReq.Header.Del("Host")
	}
	return httpReq, nil
}
