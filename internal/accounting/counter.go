package accounting

import "sync/atomic"

// Counter is a gated monotonic event or byte counter.
type Counter struct {
	gate  *Gate
	count atomic.Int64
}

func NewCounter(gate *Gate) *Counter {
	return &Counter{gate: gate}
}

// AddCount adds delta when it is positive and the device is on battery.
func (c *Counter) AddCount(delta int64) {
	if delta <= 0 || !c.gate.IsOnBattery() {
		return
	}
	for {
		old := c.count.Load()
		next := old + delta
		if next < old {
			// saturate instead of wrapping negative
			next = int64(^uint64(0) >> 1)
		}
		if c.count.CompareAndSwap(old, next) {
			return
		}
	}
}

func (c *Counter) GetCount() int64 {
	return c.count.Load()
}

func (c *Counter) Reset() {
	c.count.Store(0)
}

// Restore replaces the count with a persisted value, bypassing the gate.
func (c *Counter) Restore(n int64) {
	if n < 0 {
		n = 0
	}
	c.count.Store(n)
}
