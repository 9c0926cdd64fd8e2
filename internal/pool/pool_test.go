package pool

import (
	"context"
	"testing"
	"time"
)

func TestNewRaisesZeroLimit(t *testing.T) {
	testCases := []struct {
		limit    int
		expected int
	}{
		{-3, 1},
		{0, 1},
		{1, 1},
		{8, 8},
	}

	for _, tc := range testCases {
		gate := New(tc.limit)
		if gate.Limit() != tc.expected {
			t.Errorf("New(%d).Limit() = %d, want %d", tc.limit, gate.Limit(), tc.expected)
		}
	}
}

func TestAcquireRelease(t *testing.T) {
	gate := New(2)

	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if gate.InUse() != 2 {
		t.Errorf("Expected 2 slots in use, got %d", gate.InUse())
	}

	gate.Release()
	if gate.InUse() != 1 {
		t.Errorf("Expected 1 slot in use, got %d", gate.InUse())
	}
	gate.Release()
	if gate.InUse() != 0 {
		t.Errorf("Expected 0 slots in use, got %d", gate.InUse())
	}
}

func TestTryAcquireAtCeiling(t *testing.T) {
	gate := New(1)

	if !gate.TryAcquire() {
		t.Fatal("Expected first TryAcquire to succeed")
	}
	if gate.TryAcquire() {
		t.Error("Expected TryAcquire at the ceiling to fail")
	}

	gate.Release()
	if !gate.TryAcquire() {
		t.Error("Expected TryAcquire to succeed after Release")
	}
}

func TestAcquireUnblocksOnRelease(t *testing.T) {
	gate := New(1)
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- gate.Acquire(context.Background())
	}()

	select {
	case err := <-acquired:
		t.Fatalf("Expected Acquire to block, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	gate.Release()

	select {
	case err := <-acquired:
		if err != nil {
			t.Errorf("Expected Acquire to succeed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for Acquire to unblock")
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	gate := New(1)
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	acquired := make(chan error, 1)
	go func() {
		acquired <- gate.Acquire(ctx)
	}()

	cancel()

	select {
	case err := <-acquired:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for Acquire to observe cancellation")
	}

	if gate.InUse() != 1 {
		t.Errorf("Expected cancelled Acquire not to hold a slot, got %d in use", gate.InUse())
	}
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected Release without Acquire to panic")
		}
	}()

	gate := New(1)
	gate.Release()
}
