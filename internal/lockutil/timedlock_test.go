package lockutil

import (
	"testing"
	"time"
)

func TestTryLockTimeoutSucceedsWhenFree(t *testing.T) {
	var m TimedRWMutex
	if !m.TryLockTimeout(50 * time.Millisecond) {
		t.Fatalf("expected lock acquisition to succeed on a free mutex")
	}
	m.Unlock()
}

func TestTryLockTimeoutFailsWhenHeld(t *testing.T) {
	var m TimedRWMutex
	if !m.TryLockTimeout(time.Second) {
		t.Fatalf("setup: failed to acquire initial lock")
	}
	defer m.Unlock()

	start := time.Now()
	ok := m.TryLockTimeout(20 * time.Millisecond)
	elapsed := time.Since(start)
	if ok {
		t.Fatalf("expected acquisition to fail while already held")
	}
	if elapsed < 20*time.Millisecond {
		t.Fatalf("returned before the deadline elapsed: %v", elapsed)
	}
}

func TestTryRLockTimeoutAllowsConcurrentReaders(t *testing.T) {
	var m TimedRWMutex
	if !m.TryRLockTimeout(time.Second) {
		t.Fatalf("first reader should acquire immediately")
	}
	defer m.RUnlock()

	if !m.TryRLockTimeout(time.Second) {
		t.Fatalf("second reader should also acquire while only read-locked")
	}
	m.RUnlock()
}

func TestErrTimeoutMessage(t *testing.T) {
	if ErrTimeout.Error() == "" {
		t.Fatalf("ErrTimeout should have a non-empty message")
	}
}
