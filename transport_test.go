package dataloader

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingDelegate captures the raw transport callback sequence.
type recordingDelegate struct {
	mu        sync.Mutex
	admission Admission
	events    []string
	body      bytes.Buffer
	meta      ResponseMetadata
	complete  chan error
}

func newRecordingDelegate(admission Admission) *recordingDelegate {
	return &recordingDelegate{admission: admission, complete: make(chan error, 1)}
}

func (d *recordingDelegate) HandleResponseMetadata(taskID string, meta ResponseMetadata) Admission {
	d.mu.Lock()
	d.events = append(d.events, "metadata")
	d.meta = meta
	d.mu.Unlock()
	return d.admission
}

func (d *recordingDelegate) HandleBodyChunk(taskID string, chunk []byte) {
	d.mu.Lock()
	d.events = append(d.events, "chunk")
	d.body.Write(chunk)
	d.mu.Unlock()
}

func (d *recordingDelegate) HandleCompletion(taskID string, err error) {
	d.mu.Lock()
	d.events = append(d.events, "completion")
	d.mu.Unlock()
	d.complete <- err
}

func (d *recordingDelegate) waitCompletion(t *testing.T) error {
	t.Helper()
	select {
	case err := <-d.complete:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for completion callback")
		return nil
	}
}

func (d *recordingDelegate) sequence() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

func startTask(t *testing.T, transport Transport, req *Request, delegate TransportDelegate) TransportTask {
	t.Helper()
	task, err := transport.CreateTask(req, delegate)
	if err != nil {
		t.Fatalf("CreateTask() returned error: %v", err)
	}
	if err := task.Start(); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	return task
}

func TestHTTPTransportDeliversOrderedCallbacks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Origin", "transport-test")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil, 4)
	delegate := newRecordingDelegate(AdmissionAllow)
	startTask(t, transport, NewRequest(server.URL), delegate)

	if err := delegate.waitCompletion(t); err != nil {
		t.Fatalf("Expected nil completion error, got %v", err)
	}

	events := delegate.sequence()
	if len(events) < 2 || events[0] != "metadata" || events[len(events)-1] != "completion" {
		t.Fatalf("Expected metadata first and completion last, got %v", events)
	}
	for _, event := range events[1 : len(events)-1] {
		if event != "chunk" {
			t.Fatalf("Expected only chunks between metadata and completion, got %v", events)
		}
	}

	if delegate.meta.StatusCode != http.StatusOK {
		t.Errorf(expectedStatus200Msg, delegate.meta.StatusCode)
	}
	if got := delegate.meta.Headers.Get("X-Origin"); got != "transport-test" {
		t.Errorf("Expected X-Origin header, got %q", got)
	}
	if delegate.body.String() != testResponseBody {
		t.Errorf("Expected body %q, got %q", testResponseBody, delegate.body.String())
	}
}

func TestHTTPTransportAdmissionAbortStopsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil, 4)
	delegate := newRecordingDelegate(AdmissionAbort)
	startTask(t, transport, NewRequest(server.URL), delegate)

	err := delegate.waitCompletion(t)
	if !errors.Is(err, errTransferAborted) {
		t.Fatalf("Expected errTransferAborted, got %v", err)
	}
	if delegate.body.Len() != 0 {
		t.Errorf("Expected no body chunks after abort, got %q", delegate.body.String())
	}
}

func TestHTTPTransportAbortCancelsTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil, 4)
	delegate := newRecordingDelegate(AdmissionAllow)
	task := startTask(t, transport, NewRequest(server.URL), delegate)

	time.Sleep(50 * time.Millisecond)
	task.Abort()

	err := delegate.waitCompletion(t)
	if err == nil {
		t.Fatal("Expected an error after abort")
	}

	events := delegate.sequence()
	if events[len(events)-1] != "completion" {
		t.Errorf("Expected completion last, got %v", events)
	}
}

func TestHTTPTransportPreservesHostHeader(t *testing.T) {
	var gotHost string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil, 4)
	delegate := newRecordingDelegate(AdmissionAllow)

	req := NewRequest(server.URL)
	req.Headers.Set("Host", "original.example.com")
	startTask(t, transport, req, delegate)

	if err := delegate.waitCompletion(t); err != nil {
		t.Fatalf("Expected nil completion error, got %v", err)
	}
	if gotHost != "original.example.com" {
		t.Errorf("Expected Host original.example.com, got %q", gotHost)
	}
}

func TestHTTPTransportSendsRequestBody(t *testing.T) {
	var gotMethod, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("Failed to read request body: %v", err)
		}
		gotBody = string(payload)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil, 4)
	delegate := newRecordingDelegate(AdmissionAllow)

	req := NewRequest(server.URL)
	req.Method = http.MethodPost
	req.Body = []byte(`{"name":"value"}`)
	req.Headers.Set("Content-Type", "application/json")
	startTask(t, transport, req, delegate)

	if err := delegate.waitCompletion(t); err != nil {
		t.Fatalf("Expected nil completion error, got %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("Expected POST, got %s", gotMethod)
	}
	if gotBody != `{"name":"value"}` {
		t.Errorf("Expected request body to round-trip, got %q", gotBody)
	}
	if delegate.meta.StatusCode != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", delegate.meta.StatusCode)
	}
}

func TestHTTPTransportEnforcesConcurrencyCeiling(t *testing.T) {
	var active, peak int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&active, 1)
		for {
			observed := atomic.LoadInt32(&peak)
			if current <= observed || atomic.CompareAndSwapInt32(&peak, observed, current) {
				break
			}
		}
		<-release
		atomic.AddInt32(&active, -1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	const ceiling = 2
	const total = 6
	transport := NewHTTPTransport(nil, ceiling)

	delegates := make([]*recordingDelegate, total)
	for i := 0; i < total; i++ {
		delegates[i] = newRecordingDelegate(AdmissionAllow)
		startTask(t, transport, NewRequest(server.URL), delegates[i])
	}

	time.Sleep(200 * time.Millisecond)
	close(release)
	for _, delegate := range delegates {
		if err := delegate.waitCompletion(t); err != nil {
			t.Fatalf("Expected nil completion error, got %v", err)
		}
	}

	if got := atomic.LoadInt32(&peak); got > ceiling {
		t.Errorf("Expected at most %d concurrent transfers, observed %d", ceiling, got)
	}
}

func TestHTTPTransportRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil, 4)
	delegate := newRecordingDelegate(AdmissionAllow)

	req := NewRequest(server.URL)
	req.Timeout = 50 * time.Millisecond
	startTask(t, transport, req, delegate)

	err := delegate.waitCompletion(t)
	if !isTimeout(err) {
		t.Errorf("Expected timeout classification, got %v", err)
	}
}

func TestHTTPTransportStartIsOneShot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil, 4)
	delegate := newRecordingDelegate(AdmissionAllow)
	task := startTask(t, transport, NewRequest(server.URL), delegate)

	if err := task.Start(); !errors.Is(err, errTaskStarted) {
		t.Errorf("Expected errTaskStarted on second Start, got %v", err)
	}
	delegate.waitCompletion(t)
}

func TestHTTPTransportCreateTaskValidation(t *testing.T) {
	transport := NewHTTPTransport(nil, 4)

	if _, err := transport.CreateTask(nil, newRecordingDelegate(AdmissionAllow)); err == nil {
		t.Error("Expected error for nil request")
	}
	if _, err := transport.CreateTask(NewRequest("http://example.com"), nil); err == nil {
		t.Error("Expected error for nil delegate")
	}
}

func TestHTTPTransportDefaults(t *testing.T) {
	transport := NewHTTPTransport(nil, 0)

	if transport.MaxConcurrent() != DefaultMaxConcurrentTransfers {
		t.Errorf("Expected default ceiling %d, got %d", DefaultMaxConcurrentTransfers, transport.MaxConcurrent())
	}
	if transport.client == nil {
		t.Error("Expected a default http.Client")
	}
}

func TestFastHTTPTransportDeliversResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	transport := NewFastHTTPTransport(4)
	delegate := newRecordingDelegate(AdmissionAllow)
	startTask(t, transport, NewRequest(server.URL), delegate)

	if err := delegate.waitCompletion(t); err != nil {
		t.Fatalf("Expected nil completion error, got %v", err)
	}
	if delegate.meta.StatusCode != http.StatusOK {
		t.Errorf(expectedStatus200Msg, delegate.meta.StatusCode)
	}
	if delegate.body.String() != testResponseBody {
		t.Errorf("Expected body %q, got %q", testResponseBody, delegate.body.String())
	}
}

func TestFastHTTPTransportAdmissionAbort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	transport := NewFastHTTPTransport(4)
	delegate := newRecordingDelegate(AdmissionAbort)
	startTask(t, transport, NewRequest(server.URL), delegate)

	err := delegate.waitCompletion(t)
	if !errors.Is(err, errTransferAborted) {
		t.Fatalf("Expected errTransferAborted, got %v", err)
	}
	if delegate.body.Len() != 0 {
		t.Errorf("Expected no body chunks after abort, got %q", delegate.body.String())
	}
}
