package delta

import (
	"sync"
	"time"
)

// Delta is the shared cell through which the controller loop tells the
// scheduler how many tasks it wants right now. A positive count asks for
// warmer tasks, a negative count for cooler tasks, zero for nothing.
//
// The cell holds the latest controller intent, not a queue: a newer write
// replaces an older one, and demand never accumulates across ticks.
type Delta struct {
	mu    sync.Mutex
	count int
	stamp time.Time
}

// New returns an empty cell.
func New() *Delta {
	return &Delta{}
}

// Store overwrites the cell with (count, stamp) if stamp is newer than the
// stored stamp. Returns true if the write won.
func (d *Delta) Store(count int, stamp time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !stamp.After(d.stamp) {
		return false
	}
	d.count = count
	d.stamp = stamp
	return true
}

// Value returns the current (count, stamp) without consuming it.
func (d *Delta) Value() (int, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count, d.stamp
}

// Consume atomically claims up to capacity tasks from the cell and returns
// the signed number claimed. haveWarmer and haveCooler gate which sign can
// be served; an unservable sign leaves the cell untouched and returns 0.
//
// The residual written back keeps the sign of the original count, and the
// stamp is refreshed so a stale controller tick cannot overwrite it.
func (d *Delta) Consume(capacity int, haveWarmer, haveCooler bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.count
	if n == 0 || capacity <= 0 {
		return 0
	}
	if n > 0 && !haveWarmer {
		return 0
	}
	if n < 0 && !haveCooler {
		return 0
	}

	want := n
	if want < 0 {
		want = -want
	}
	take := want
	if capacity < take {
		take = capacity
	}

	residual := want - take
	if n < 0 {
		residual = -residual
		take = -take
	}

	d.count = residual
	d.stamp = d.nextStamp()
	return take
}

// nextStamp returns a stamp strictly newer than the stored one. Callers
// must hold d.mu.
func (d *Delta) nextStamp() time.Time {
	now := time.Now()
	if !now.After(d.stamp) {
		return d.stamp.Add(time.Nanosecond)
	}
	return now
}
