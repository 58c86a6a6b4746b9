package service

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerFirstCallRunsImmediately(t *testing.T) {
	d := newDebouncer()
	var n int32
	d.Schedule(func() { atomic.AddInt32(&n, 1) })
	if atomic.LoadInt32(&n) != 1 {
		t.Fatalf("first schedule deferred, want immediate run")
	}
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	d := newDebouncer()
	var n int32
	inc := func() { atomic.AddInt32(&n, 1) }

	d.Schedule(inc) // immediate
	d.Schedule(inc) // deferred
	d.Schedule(inc) // replaces the deferred one
	d.Schedule(inc)

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&n); got != 2 {
		t.Fatalf("runs = %d, want 2 (immediate + one coalesced)", got)
	}
}

func TestDebouncerCancelDropsPending(t *testing.T) {
	d := newDebouncer()
	var n int32
	inc := func() { atomic.AddInt32(&n, 1) }

	d.Schedule(inc)
	d.Schedule(inc)
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&n); got != 1 {
		t.Fatalf("runs = %d after cancel, want 1", got)
	}
}

func TestDebouncerReopensAfterQuietPeriod(t *testing.T) {
	d := newDebouncer()
	var n int32
	inc := func() { atomic.AddInt32(&n, 1) }

	d.Schedule(inc)
	time.Sleep(refreshWindow + 10*time.Millisecond)
	d.Schedule(inc)
	if got := atomic.LoadInt32(&n); got != 2 {
		t.Fatalf("runs = %d, want 2 immediate runs across quiet periods", got)
	}
}
