package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestZeroDurationFiresExactlyOnce(t *testing.T) {
	var fires int32
	c := New(0, nil, func() { atomic.AddInt32(&fires, 1) })

	c.Start()
	c.Start() // second Start is a no-op

	time.Sleep(20 * time.Millisecond)

	if n := atomic.LoadInt32(&fires); n != 1 {
		t.Errorf("onComplete fired %d times, want 1", n)
	}
	if rem := c.Remaining(); rem != 0 {
		t.Errorf("remaining = %v, want 0", rem)
	}
	if !c.Expired() {
		t.Error("countdown not marked expired")
	}
}

func TestCountdownCompletesAfterFullDuration(t *testing.T) {
	var fires int32
	var ticks int32

	c := New(50*time.Millisecond,
		func(time.Duration) { atomic.AddInt32(&ticks, 1) },
		func() { atomic.AddInt32(&fires, 1) },
	)
	c.interval = 10 * time.Millisecond
	c.Start()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&fires) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if n := atomic.LoadInt32(&fires); n != 1 {
		t.Fatalf("onComplete fired %d times, want 1", n)
	}
	if n := atomic.LoadInt32(&ticks); n < 5 {
		t.Errorf("ticked %d times, want at least 5", n)
	}
	if rem := c.Remaining(); rem != 0 {
		t.Errorf("remaining = %v, want clamped 0", rem)
	}

	// No late re-fire.
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&fires); n != 1 {
		t.Errorf("onComplete re-fired, total %d", n)
	}
}

func TestStopPreventsCompletion(t *testing.T) {
	var fires int32
	c := New(30*time.Millisecond, nil, func() { atomic.AddInt32(&fires, 1) })
	c.interval = 10 * time.Millisecond
	c.Start()

	c.Stop()
	c.Stop() // idempotent

	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt32(&fires); n != 0 {
		t.Errorf("stopped countdown fired %d times", n)
	}
}

func TestRemainingDecreasesAndClamps(t *testing.T) {
	c := New(30*time.Millisecond, nil, nil)
	c.interval = 10 * time.Millisecond

	if rem := c.Remaining(); rem != 30*time.Millisecond {
		t.Fatalf("initial remaining = %v", rem)
	}

	c.Start()
	time.Sleep(100 * time.Millisecond)

	if rem := c.Remaining(); rem != 0 {
		t.Errorf("remaining = %v, want 0 (never negative)", rem)
	}
}
