// Package pool provides a bounded concurrency gate for transport workers.
package pool

import "context"

// Gate admits at most a fixed number of concurrent holders. It is the
// mechanism behind a transport's concurrent-transfer ceiling.
type Gate struct {
	slots chan struct{}
}

// New creates a gate with the given ceiling. Ceilings below one are raised
// to one.
func New(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{slots: make(chan struct{}, limit)}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot if one is free without blocking.
func (g *Gate) TryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
		panic("pool: Release without Acquire")
	}
}

// Limit returns the ceiling.
func (g *Gate) Limit() int {
	return cap(g.slots)
}

// InUse returns the number of held slots.
func (g *Gate) InUse() int {
	return len(g.slots)
}
