package governor

import (
	"testing"
	"time"
)

func newTestBreaker(now *time.Time) *breaker {
	return &breaker{
		now:          func() time.Time { return *now },
		failureLimit: defaultFailureLimit,
		resetWindow:  defaultResetWindow,
	}
}

func TestBreakerOpensOnFifthFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)

	for i := 1; i <= 4; i++ {
		if b.recordFailure() {
			t.Fatalf("failure %d should not open the breaker", i)
		}
		if b.isOpen() {
			t.Fatalf("breaker open after %d failures", i)
		}
	}

	if !b.recordFailure() {
		t.Fatal("fifth failure should report the opening edge")
	}
	if !b.isOpen() {
		t.Fatal("breaker should be open after five failures")
	}

	// Further failures while open never report the edge again.
	if b.recordFailure() {
		t.Fatal("sixth failure reported a second opening edge")
	}
}

func TestBreakerSuccessResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)

	// Three failures, then a success: the streak restarts from zero.
	for i := 0; i < 3; i++ {
		b.recordFailure()
	}
	b.recordSuccess()
	for i := 1; i <= 4; i++ {
		if b.recordFailure() {
			t.Fatalf("failure %d after reset should not open the breaker", i)
		}
	}
	if !b.recordFailure() {
		t.Fatal("fifth failure after reset should open the breaker")
	}

	// Success closes an open breaker immediately.
	b.recordSuccess()
	if b.isOpen() {
		t.Fatal("breaker should close on success")
	}
}

func TestBreakerAutoClosesAfterResetWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)

	for i := 0; i < defaultFailureLimit; i++ {
		b.recordFailure()
	}
	if !b.isOpen() {
		t.Fatal("breaker should be open")
	}

	// Just shy of the window: still open.
	now = now.Add(defaultResetWindow - time.Second)
	if !b.isOpen() {
		t.Fatal("breaker closed before the reset window elapsed")
	}

	// At the window: closes and zeroes the streak, so the next failure
	// starts a fresh count.
	now = now.Add(time.Second)
	if b.isOpen() {
		t.Fatal("breaker should auto-close after the reset window")
	}
	if b.recordFailure() {
		t.Fatal("first failure after auto-close should not reopen the breaker")
	}
}
