package breaker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a mutable time source for breaker tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	b := New(5, time.Minute).WithClock(clock.Now)

	for i := 0; i < 4; i++ {
		if !b.Allow() {
			t.Fatalf("call %d rejected while closed", i)
		}
		b.Failure()
	}
	if b.State() != Closed {
		t.Fatalf("opened after %d failures, threshold is 5", 4)
	}

	b.Failure()
	if b.State() != Open {
		t.Fatalf("expected open after 5 consecutive failures, got %s", b.State())
	}
	if b.Allow() {
		t.Error("open breaker must reject calls")
	}
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := New(3, time.Minute).WithClock(newFakeClock().Now)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	if b.State() != Closed {
		t.Fatalf("expected closed, got %s", b.State())
	}
	if got := b.ConsecutiveFailures(); got != 2 {
		t.Errorf("expected streak 2, got %d", got)
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	clock := newFakeClock()
	b := New(1, time.Minute).WithClock(clock.Now)

	b.Failure()
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("allowed before cooldown elapsed")
	}

	clock.Advance(61 * time.Second)
	if !b.Allow() {
		t.Fatal("expected trial call after cooldown")
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	// Second caller during the trial is rejected.
	if b.Allow() {
		t.Error("second caller admitted during half-open trial")
	}

	b.Success()
	if b.State() != Closed {
		t.Fatalf("expected closed after trial success, got %s", b.State())
	}
	if b.ConsecutiveFailures() != 0 {
		t.Errorf("expected streak reset, got %d", b.ConsecutiveFailures())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := New(1, time.Minute).WithClock(clock.Now)

	b.Failure()
	clock.Advance(61 * time.Second)
	if !b.Allow() {
		t.Fatal("expected trial call")
	}
	b.Failure()

	if b.State() != Open {
		t.Fatalf("expected reopen after failed trial, got %s", b.State())
	}
	// Cooldown restarted: still rejecting right away.
	if b.Allow() {
		t.Error("allowed immediately after reopen")
	}
	clock.Advance(61 * time.Second)
	if !b.Allow() {
		t.Error("expected trial after second cooldown")
	}
}

func TestBreaker_SingleTrialUnderConcurrency(t *testing.T) {
	clock := newFakeClock()
	b := New(1, time.Minute).WithClock(clock.Now)
	b.Failure()
	clock.Advance(61 * time.Second)

	const goroutines = 64
	var admitted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if b.Allow() {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := admitted.Load(); got != 1 {
		t.Fatalf("expected exactly 1 trial call, got %d", got)
	}
}

func TestBreaker_TransitionHook(t *testing.T) {
	clock := newFakeClock()

	type transition struct{ from, to State }
	var mu sync.Mutex
	var seen []transition

	b := New(1, time.Minute).WithClock(clock.Now).WithTransitionHook(func(from, to State) {
		mu.Lock()
		seen = append(seen, transition{from, to})
		mu.Unlock()
	})

	b.Failure()
	clock.Advance(61 * time.Second)
	b.Allow()
	b.Success()

	want := []transition{{Closed, Open}, {Open, HalfOpen}, {HalfOpen, Closed}}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(seen), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d: got %s->%s, want %s->%s",
				i, seen[i].from, seen[i].to, want[i].from, want[i].to)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
