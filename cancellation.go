package dataloader

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// CancellationToken is the capability to cancel one specific request. The
// first Cancel notifies the issuing delegate; later calls are no-ops. Tokens
// compare by identity: the token returned for a request is the only value
// that cancels it.
type CancellationToken interface {
	// Cancel requests cancellation. Idempotent; cancelling a request that
	// already completed has no effect.
	Cancel()
	// Cancelled reports whether Cancel has been called.
	Cancelled() bool
	// ID identifies the token in logs.
	ID() string
}

// CancellationDelegate is notified the first time a token is cancelled.
type CancellationDelegate interface {
	TokenCancelled(token CancellationToken)
}

// CancellationTokenFactory stamps new tokens with the delegate to notify on
// cancellation.
type CancellationTokenFactory struct {
	delegate CancellationDelegate
}

// NewCancellationTokenFactory creates a factory whose tokens report to
// delegate.
func NewCancellationTokenFactory(delegate CancellationDelegate) *CancellationTokenFactory {
	return &CancellationTokenFactory{delegate: delegate}
}

// CreateToken mints a token for one request.
func (f *CancellationTokenFactory) CreateToken() CancellationToken {
	return &cancellationToken{
		id:       uuid.NewString(),
		delegate: f.delegate,
	}
}

type cancellationToken struct {
	id        string
	delegate  CancellationDelegate
	cancelled int32
}

func (t *cancellationToken) Cancel() {
	if !atomic.CompareAndSwapInt32(&t.cancelled, 0, 1) {
		return
	}
	if t.delegate != nil {
		t.delegate.TokenCancelled(t)
	}
}

func (t *cancellationToken) Cancelled() bool {
	return atomic.LoadInt32(&t.cancelled) == 1
}

func (t *cancellationToken) ID() string {
	return t.id
}
