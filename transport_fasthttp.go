package dataloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/SPTAndrewChang/SPTDataLoader/internal/pool"
)

// FastHTTPTransport executes transfers over fasthttp. It trades context
// plumbing for lower per-request overhead: aborts take effect between chunk
// reads rather than interrupting a blocked read.
type FastHTTPTransport struct {
	client  *fasthttp.Client
	gate    *pool.Gate
	timeout time.Duration
}

// NewFastHTTPTransport creates a fasthttp-backed transport with at most
// maxConcurrent simultaneous transfers.
func NewFastHTTPTransport(maxConcurrent int) *FastHTTPTransport {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTransfers
	}
	return &FastHTTPTransport{
		client: &fasthttp.Client{
			StreamResponseBody: true,
		},
		gate:    pool.New(maxConcurrent),
		timeout: defaultTransferTimeout,
	}
}

// MaxConcurrent returns the transfer ceiling.
func (t *FastHTTPTransport) MaxConcurrent() int {
	return t.gate.Limit()
}

// CreateTask implements Transport.
func (t *FastHTTPTransport) CreateTask(req *Request, delegate TransportDelegate) (TransportTask, error) {
	if req == nil {
		return nil, errors.New("dataloader: nil request")
	}
	if delegate == nil {
		return nil, errors.New("dataloader: nil transport delegate")
	}

	ctx, abort := context.WithCancel(context.Background())
	return &fasthttpTask{
		id:        uuid.NewString(),
		transport: t,
		request:   req,
		delegate:  delegate,
		ctx:       ctx,
		abort:     abort,
	}, nil
}

type fasthttpTask struct {
	id        string
	transport *FastHTTPTransport
	request   *Request
	delegate  TransportDelegate
	ctx       context.Context
	abort     context.CancelFunc
	started   int32
}

func (t *fasthttpTask) ID() string {
	return t.id
}

func (t *fasthttpTask) Start() error {
	if !atomic.CompareAndSwapInt32(&t.started, 0, 1) {
		return errTaskStarted
	}
	go t.run()
	return nil
}

func (t *fasthttpTask) Abort() {
	t.abort()
}

func (t *fasthttpTask) run() {
	if err := t.transport.gate.Acquire(t.ctx); err != nil {
		t.delegate.HandleCompletion(t.id, err)
		return
	}
	defer t.transport.gate.Release()

	timeout := t.request.Timeout
	if timeout <= 0 {
		timeout = t.transport.timeout
	}
	deadline := time.Now().Add(timeout)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(t.request.URL)
	req.Header.SetMethod(t.request.Method)
	for name, values := range t.request.Headers {
		for _, value := range values {
			if name == "Host" {
				req.Header.SetHost(value)
				continue
			}
			req.Header.Add(name, value)
		}
	}
	if len(t.request.Body) > 0 {
		req.SetBodyRaw(t.request.Body)
	}

	if err := t.transport.client.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			err = context.DeadlineExceeded
		}
		t.delegate.HandleCompletion(t.id, err)
		return
	}
	defer resp.CloseBodyStream() //nolint:errcheck

	meta := ResponseMetadata{
		StatusCode:    resp.StatusCode(),
		Status:        fmt.Sprintf("%d %s", resp.StatusCode(), http.StatusText(resp.StatusCode())),
		Headers:       convertFastHTTPHeaders(&resp.Header),
		ContentLength: int64(resp.Header.ContentLength()),
	}
	if t.delegate.HandleResponseMetadata(t.id, meta) == AdmissionAbort {
		t.delegate.HandleCompletion(t.id, errTransferAborted)
		return
	}

	stream := resp.BodyStream()
	if stream == nil {
		if body := resp.Body(); len(body) > 0 {
			t.delegate.HandleBodyChunk(t.id, body)
		}
		t.delegate.HandleCompletion(t.id, nil)
		return
	}

	buf := make([]byte, bodyChunkSize)
	for {
		select {
		case <-t.ctx.Done():
			t.delegate.HandleCompletion(t.id, t.ctx.Err())
			return
		default:
		}
		if time.Now().After(deadline) {
			t.delegate.HandleCompletion(t.id, context.DeadlineExceeded)
			return
		}
		n, readErr := stream.Read(buf)
		if n > 0 {
			t.delegate.HandleBodyChunk(t.id, buf[:n])
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				readErr = nil
			}
			t.delegate.HandleCompletion(t.id, readErr)
			return
		}
	}
}

func convertFastHTTPHeaders(h *fasthttp.ResponseHeader) http.Header {
	headers := http.Header{}
	h.VisitAll(func(key, value []byte) {
		headers.Add(string(key), string(value))
	})
	return headers
}
