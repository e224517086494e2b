package accounting

import (
	"math"
	"sync"
	"time"
)

// maxTotal is the largest accumulated time; additions saturate here.
const maxTotal = time.Duration(math.MaxInt64)

// ActiveTimer accumulates the time it spends running while the gate is on
// battery. Intervals are measured against the gate's on-battery clock, so a
// running timer stops accruing the instant the device switches to external
// power and resumes when it switches back.
//
// Calling StartRunning on a running timer is a no-op: the original start
// point is kept and no elapsed time is lost or double counted.
type ActiveTimer struct {
	gate *Gate

	mu      sync.Mutex
	total   time.Duration
	running bool
	start   time.Duration // gate uptime when the current interval began
}

// NewActiveTimer returns a stopped timer reading from gate.
func NewActiveTimer(gate *Gate) *ActiveTimer {
	return &ActiveTimer{gate: gate}
}

func (t *ActiveTimer) StartRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.start = t.gate.Uptime()
}

// StopRunning credits the on-battery portion of the current interval.
// Stopping a stopped timer does nothing.
func (t *ActiveTimer) StopRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.total = addSat(t.total, t.liveLocked())
	t.running = false
	t.start = 0
}

// IsRunning reports whether an interval is open.
func (t *ActiveTimer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// AddRunningTimeMs credits delta milliseconds when delta is positive and the
// device is on battery at the time of the call.
func (t *ActiveTimer) AddRunningTimeMs(delta int64) {
	if delta <= 0 || !t.gate.IsOnBattery() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = addSat(t.total, fromMs(delta))
}

// GetRunningTimeMs returns the accumulated time including the live portion
// of a running interval.
func (t *ActiveTimer) GetRunningTimeMs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.total
	if t.running {
		d = addSat(d, t.liveLocked())
	}
	return d.Milliseconds()
}

// Reset zeroes the accumulated time. A running timer keeps running from now.
func (t *ActiveTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = 0
	if t.running {
		t.start = t.gate.Uptime()
	}
}

// Restore replaces the accumulated time with a persisted value. It bypasses
// the gate; it is meant for reloading totals, not for recording activity.
func (t *ActiveTimer) Restore(ms int64) {
	if ms < 0 {
		ms = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = fromMs(ms)
	if t.running {
		t.start = t.gate.Uptime()
	}
}

func (t *ActiveTimer) liveLocked() time.Duration {
	d := t.gate.Uptime() - t.start
	if d < 0 {
		return 0
	}
	return d
}

// fromMs converts non-negative milliseconds, saturating at maxTotal.
func fromMs(ms int64) time.Duration {
	if ms > int64(maxTotal/time.Millisecond) {
		return maxTotal
	}
	return time.Duration(ms) * time.Millisecond
}

// addSat adds two non-negative durations without wrapping.
func addSat(a, b time.Duration) time.Duration {
	if b > maxTotal-a {
		return maxTotal
	}
	return a + b
}
