package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream unavailable")

func TestNew_WithZeroValues(t *testing.T) {
	t.Parallel()
	b := New(Config{})

	// Default threshold is 5, so four failures leave the circuit closed.
	for i := 0; i < 4; i++ {
		b.Record(errUpstream)
	}
	if b.State() != Closed {
		t.Error("Expected closed state after 4 failures")
	}

	b.Record(errUpstream)
	if b.State() != Open {
		t.Error("Expected open state after 5 failures")
	}
}

func TestAllow_WhenClosed(t *testing.T) {
	t.Parallel()
	b := New(Config{})

	if !b.Allow() {
		t.Error("Expected closed breaker to allow work")
	}
}

func TestAllow_WhenOpen(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 2, Cooldown: time.Hour})

	b.Record(errUpstream)
	b.Record(errUpstream)

	if b.State() != Open {
		t.Fatalf("Expected open state, got %v", b.State())
	}
	if b.Allow() {
		t.Error("Expected open breaker to block work during cooldown")
	}
}

func TestAllow_HalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: time.Millisecond})

	b.Record(errUpstream)
	if b.State() != Open {
		t.Fatalf("Expected open state, got %v", b.State())
	}

	time.Sleep(5 * time.Millisecond)

	if !b.Allow() {
		t.Error("Expected probe to be allowed after cooldown")
	}
	if b.State() != HalfOpen {
		t.Errorf("Expected half-open state, got %v", b.State())
	}
}

func TestRecord_SuccessClosesHalfOpen(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1, Cooldown: time.Millisecond})

	b.Record(errUpstream)
	time.Sleep(5 * time.Millisecond)
	b.Allow() // transitions to half-open

	b.Record(nil)
	if b.State() != Closed {
		t.Errorf("Expected closed state after successful probe, got %v", b.State())
	}
	if b.Failures() != 0 {
		t.Errorf("Expected failure count reset, got %d", b.Failures())
	}
}

func TestRecord_FailureReopensHalfOpen(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Cooldown: time.Millisecond})

	for i := 0; i < 3; i++ {
		b.Record(errUpstream)
	}
	time.Sleep(5 * time.Millisecond)
	b.Allow() // transitions to half-open

	// A single failed probe reopens regardless of threshold.
	b.Record(errUpstream)
	if b.State() != Open {
		t.Errorf("Expected open state after failed probe, got %v", b.State())
	}
}

func TestRecord_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3})

	b.Record(errUpstream)
	b.Record(errUpstream)
	b.Record(nil)
	b.Record(errUpstream)
	b.Record(errUpstream)

	if b.State() != Closed {
		t.Error("Expected closed state: success should reset the consecutive count")
	}
	if b.Failures() != 2 {
		t.Errorf("Expected 2 consecutive failures, got %d", b.Failures())
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 100})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Allow()
				if j%2 == 0 {
					b.Record(nil)
				} else {
					b.Record(fmt.Errorf("fault %d/%d", n, j))
				}
				b.State()
				b.Failures()
			}
		}(i)
	}
	wg.Wait()
}
