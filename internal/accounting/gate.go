// Package accounting implements the battery-gated time and event primitives
// every consumption category is built from.
package accounting

import (
	"sync"
	"sync/atomic"
	"time"
)

// Gate is the shared power-source state. Readers go through an atomic
// snapshot so the hot path of every timer start/stop never takes a lock;
// writers serialize on mu and publish a new snapshot.
type Gate struct {
	mu    sync.Mutex
	now   func() time.Time
	state atomic.Pointer[gateState]
}

type gateState struct {
	onBattery bool
	screenOff bool
	// uptime is the on-battery time accumulated up to since.
	uptime time.Duration
	since  time.Time
}

// NewGate returns a gate that starts off battery with the screen on.
func NewGate() *Gate {
	return NewGateWithClock(time.Now)
}

// NewGateWithClock is NewGate with an injected clock.
func NewGateWithClock(now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	g := &Gate{now: now}
	g.state.Store(&gateState{since: now()})
	return g
}

// SetOnBattery switches the power source. Time on battery is only credited
// while on is true.
func (g *Gate) SetOnBattery(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.state.Load()
	if cur.onBattery == on {
		return
	}
	now := g.now()
	next := *cur
	next.uptime = cur.uptimeAt(now)
	next.since = now
	next.onBattery = on
	g.state.Store(&next)
}

// SetScreenOff records whether the display is off.
func (g *Gate) SetScreenOff(off bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.state.Load()
	if cur.screenOff == off {
		return
	}
	next := *cur
	next.screenOff = off
	g.state.Store(&next)
}

func (g *Gate) IsOnBattery() bool {
	return g.state.Load().onBattery
}

func (g *Gate) IsScreenOff() bool {
	return g.state.Load().screenOff
}

// IsOnBatteryScreenOff reports on battery and screen off together.
func (g *Gate) IsOnBatteryScreenOff() bool {
	s := g.state.Load()
	return s.onBattery && s.screenOff
}

// Uptime returns the monotonic time spent on battery since the gate was
// created. It never decreases.
func (g *Gate) Uptime() time.Duration {
	return g.state.Load().uptimeAt(g.now())
}

// GetOnBatteryUpTimeMs is Uptime in milliseconds.
func (g *Gate) GetOnBatteryUpTimeMs() int64 {
	return g.Uptime().Milliseconds()
}

func (s *gateState) uptimeAt(now time.Time) time.Duration {
	if !s.onBattery {
		return s.uptime
	}
	elapsed := now.Sub(s.since)
	if elapsed < 0 {
		elapsed = 0
	}
	return s.uptime + elapsed
}
