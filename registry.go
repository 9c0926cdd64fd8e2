package dataloader

import "sync"

// operationRegistry maps live transport tasks to their operations. One mutex
// covers both indexes so the registry is never observed mid-update while the
// transport delivers callbacks from concurrent workers.
//
// The token index exists so cancellation resolves in constant time instead of
// scanning every live operation.
type operationRegistry struct {
	mu      sync.Mutex
	byTask  map[string]*requestOperation
	byToken map[CancellationToken]*requestOperation
}

func newOperationRegistry() *operationRegistry {
	return &operationRegistry{
		byTask:  make(map[string]*requestOperation),
		byToken: make(map[CancellationToken]*requestOperation),
	}
}

// insert registers op under taskID and, when the request carries a token,
// under that token. At most one operation per task identity.
func (r *operationRegistry) insert(taskID string, op *requestOperation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byTask[taskID] = op
	if token := op.request.token; token != nil {
		r.byToken[token] = op
	}
}

// remove drops the operation registered under taskID from both indexes.
func (r *operationRegistry) remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, exists := r.byTask[taskID]
	if !exists {
		return
	}
	delete(r.byTask, taskID)
	if token := op.request.token; token != nil {
		delete(r.byToken, token)
	}
}

// find returns the operation for taskID, or nil when the task completed and
// was removed (late callbacks are dropped by the caller).
func (r *operationRegistry) find(taskID string) *requestOperation {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.byTask[taskID]
}

// findByToken returns the operation whose request carries token, or nil.
func (r *operationRegistry) findByToken(token CancellationToken) *requestOperation {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.byToken[token]
}

// count returns the number of live operations.
func (r *operationRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.byTask)
}

// snapshot copies the live operations out so callers can act on them without
// holding the registry lock.
func (r *operationRegistry) snapshot() []*requestOperation {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]*requestOperation, 0, len(r.byTask))
	for _, op := range r.byTask {
		ops = append(ops, op)
	}
	return ops
}
