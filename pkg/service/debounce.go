package service

import (
	"sync"
	"time"

	"github.com/muimsd/esri-go/internal/observability"
)

const (
	// refreshWindow is the quiet period required between applied refreshes.
	refreshWindow = 50 * time.Millisecond
	// refreshFrame is the deferral used when a refresh lands inside the
	// window, standing in for "next animation frame".
	refreshFrame = 16 * time.Millisecond
)

// debouncer coalesces rapid-fire refresh requests into a single applied
// refresh. The refresh function recomputes its state at run time, so the
// applied refresh always reflects the latest mutations regardless of when it
// was scheduled; at most one refresh is pending per burst.
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	frame  time.Duration
	last   time.Time
	timer  *time.Timer
	now    func() time.Time
}

func newDebouncer() *debouncer {
	return &debouncer{window: refreshWindow, frame: refreshFrame, now: time.Now}
}

// Schedule runs fn immediately when the window since the last applied
// refresh has elapsed; otherwise it cancels any pending refresh and defers a
// single new one.
func (d *debouncer) Schedule(fn func()) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		observability.IncRefresh("coalesced")
	}
	if d.now().Sub(d.last) >= d.window {
		d.last = d.now()
		d.mu.Unlock()
		fn()
		return
	}
	d.timer = time.AfterFunc(d.frame, func() {
		d.mu.Lock()
		d.timer = nil
		d.last = d.now()
		d.mu.Unlock()
		fn()
	})
	d.mu.Unlock()
}

// Cancel drops any pending refresh.
func (d *debouncer) Cancel() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
}
