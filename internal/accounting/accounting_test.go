package accounting

import (
	"math"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGate(t *testing.T) (*Gate, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	return NewGateWithClock(clk.Now), clk
}

func TestGatePredicates(t *testing.T) {
	tests := []struct {
		name      string
		onBattery bool
		screenOff bool
		want      bool
	}{
		{"on battery screen off", true, true, true},
		{"on battery screen on", true, false, false},
		{"charging screen off", false, true, false},
		{"charging screen on", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGate(t)
			g.SetOnBattery(tt.onBattery)
			g.SetScreenOff(tt.screenOff)
			if got := g.IsOnBatteryScreenOff(); got != tt.want {
				t.Fatalf("IsOnBatteryScreenOff() = %v, want %v", got, tt.want)
			}
			if got := g.IsOnBattery(); got != tt.onBattery {
				t.Fatalf("IsOnBattery() = %v, want %v", got, tt.onBattery)
			}
		})
	}
}

func TestGateUptimeOnlyAdvancesOnBattery(t *testing.T) {
	g, clk := newTestGate(t)

	clk.Advance(5 * time.Second)
	if got := g.GetOnBatteryUpTimeMs(); got != 0 {
		t.Fatalf("GetOnBatteryUpTimeMs() off battery = %d, want 0", got)
	}

	g.SetOnBattery(true)
	clk.Advance(2 * time.Second)
	if got := g.GetOnBatteryUpTimeMs(); got != 2000 {
		t.Fatalf("GetOnBatteryUpTimeMs() = %d, want 2000", got)
	}

	g.SetOnBattery(false)
	clk.Advance(10 * time.Second)
	g.SetOnBattery(true)
	clk.Advance(500 * time.Millisecond)
	if got := g.GetOnBatteryUpTimeMs(); got != 2500 {
		t.Fatalf("GetOnBatteryUpTimeMs() = %d, want 2500", got)
	}
}

func TestTimerOffBatteryCreditsNothing(t *testing.T) {
	g, clk := newTestGate(t)
	timer := NewActiveTimer(g)

	timer.StartRunning()
	clk.Advance(3 * time.Second)
	timer.StopRunning()

	if got := timer.GetRunningTimeMs(); got != 0 {
		t.Fatalf("GetRunningTimeMs() = %d, want 0", got)
	}
}

func TestTimerOnBatteryCreditsInterval(t *testing.T) {
	g, clk := newTestGate(t)
	g.SetOnBattery(true)
	timer := NewActiveTimer(g)

	timer.StartRunning()
	clk.Advance(1500 * time.Millisecond)
	if got := timer.GetRunningTimeMs(); got != 1500 {
		t.Fatalf("GetRunningTimeMs() while running = %d, want 1500", got)
	}
	timer.StopRunning()
	clk.Advance(time.Second)
	if got := timer.GetRunningTimeMs(); got != 1500 {
		t.Fatalf("GetRunningTimeMs() after stop = %d, want 1500", got)
	}
}

func TestTimerSplitsAtGateTransitions(t *testing.T) {
	g, clk := newTestGate(t)
	timer := NewActiveTimer(g)

	timer.StartRunning()
	clk.Advance(time.Second) // off battery
	g.SetOnBattery(true)
	clk.Advance(2 * time.Second)
	g.SetOnBattery(false)
	clk.Advance(4 * time.Second)
	g.SetOnBattery(true)
	clk.Advance(300 * time.Millisecond)
	timer.StopRunning()

	if got := timer.GetRunningTimeMs(); got != 2300 {
		t.Fatalf("GetRunningTimeMs() = %d, want 2300", got)
	}
}

func TestTimerStopWhileOffBatteryKeepsEarlierPortion(t *testing.T) {
	g, clk := newTestGate(t)
	g.SetOnBattery(true)
	timer := NewActiveTimer(g)

	timer.StartRunning()
	clk.Advance(700 * time.Millisecond)
	g.SetOnBattery(false)
	clk.Advance(5 * time.Second)
	timer.StopRunning()

	if got := timer.GetRunningTimeMs(); got != 700 {
		t.Fatalf("GetRunningTimeMs() = %d, want 700", got)
	}
}

func TestTimerDoubleStartKeepsFirstStart(t *testing.T) {
	g, clk := newTestGate(t)
	g.SetOnBattery(true)
	timer := NewActiveTimer(g)

	timer.StartRunning()
	clk.Advance(time.Second)
	timer.StartRunning()
	clk.Advance(time.Second)
	timer.StopRunning()

	if got := timer.GetRunningTimeMs(); got != 2000 {
		t.Fatalf("GetRunningTimeMs() = %d, want 2000", got)
	}

	// A second stop is ignored.
	clk.Advance(time.Second)
	timer.StopRunning()
	if got := timer.GetRunningTimeMs(); got != 2000 {
		t.Fatalf("GetRunningTimeMs() after double stop = %d, want 2000", got)
	}
}

func TestTimerAddRunningTimeIsGated(t *testing.T) {
	g, _ := newTestGate(t)
	timer := NewActiveTimer(g)

	timer.AddRunningTimeMs(20)
	if got := timer.GetRunningTimeMs(); got != 0 {
		t.Fatalf("GetRunningTimeMs() off battery = %d, want 0", got)
	}

	g.SetOnBattery(true)
	timer.AddRunningTimeMs(20)
	timer.AddRunningTimeMs(0)
	timer.AddRunningTimeMs(-50)
	if got := timer.GetRunningTimeMs(); got != 20 {
		t.Fatalf("GetRunningTimeMs() = %d, want 20", got)
	}
}

func TestTimerResetWhileRunning(t *testing.T) {
	g, clk := newTestGate(t)
	g.SetOnBattery(true)
	timer := NewActiveTimer(g)

	timer.StartRunning()
	clk.Advance(4 * time.Second)
	timer.Reset()
	if got := timer.GetRunningTimeMs(); got != 0 {
		t.Fatalf("GetRunningTimeMs() after Reset = %d, want 0", got)
	}
	if !timer.IsRunning() {
		t.Fatal("IsRunning() after Reset = false, want true")
	}
	clk.Advance(time.Second)
	timer.StopRunning()
	if got := timer.GetRunningTimeMs(); got != 1000 {
		t.Fatalf("GetRunningTimeMs() = %d, want 1000", got)
	}
}

func TestTimerRestoreBypassesGate(t *testing.T) {
	g, _ := newTestGate(t)
	timer := NewActiveTimer(g)
	timer.Restore(12345)
	if got := timer.GetRunningTimeMs(); got != 12345 {
		t.Fatalf("GetRunningTimeMs() = %d, want 12345", got)
	}
	timer.Restore(-1)
	if got := timer.GetRunningTimeMs(); got != 0 {
		t.Fatalf("GetRunningTimeMs() = %d, want 0", got)
	}
}

func TestTimerSaturates(t *testing.T) {
	g, clk := newTestGate(t)
	g.SetOnBattery(true)
	maxMs := int64(math.MaxInt64 / int64(time.Millisecond))

	timer := NewActiveTimer(g)
	timer.AddRunningTimeMs(10_000_000_000_000)
	if got := timer.GetRunningTimeMs(); got != maxMs {
		t.Fatalf("GetRunningTimeMs() = %d, want %d", got, maxMs)
	}
	timer.AddRunningTimeMs(1)
	timer.StartRunning()
	clk.Advance(time.Hour)
	if got := timer.GetRunningTimeMs(); got != maxMs {
		t.Fatalf("GetRunningTimeMs() while running = %d, want %d", got, maxMs)
	}
	timer.StopRunning()
	if got := timer.GetRunningTimeMs(); got != maxMs {
		t.Fatalf("GetRunningTimeMs() after stop = %d, want %d", got, maxMs)
	}

	restored := NewActiveTimer(g)
	restored.Restore(math.MaxInt64)
	if got := restored.GetRunningTimeMs(); got != maxMs {
		t.Fatalf("GetRunningTimeMs() after Restore = %d, want %d", got, maxMs)
	}
	restored.AddRunningTimeMs(maxMs)
	if got := restored.GetRunningTimeMs(); got < 0 {
		t.Fatalf("GetRunningTimeMs() = %d, want non-negative", got)
	}
}

func TestCounterGating(t *testing.T) {
	g, _ := newTestGate(t)
	c := NewCounter(g)

	c.AddCount(20)
	if got := c.GetCount(); got != 0 {
		t.Fatalf("GetCount() off battery = %d, want 0", got)
	}

	g.SetOnBattery(true)
	c.AddCount(20)
	c.AddCount(0)
	c.AddCount(-3)
	if got := c.GetCount(); got != 20 {
		t.Fatalf("GetCount() = %d, want 20", got)
	}

	c.Reset()
	if got := c.GetCount(); got != 0 {
		t.Fatalf("GetCount() after Reset = %d, want 0", got)
	}
}

func TestCounterSaturates(t *testing.T) {
	g, _ := newTestGate(t)
	g.SetOnBattery(true)
	c := NewCounter(g)
	c.Restore(int64(^uint64(0)>>1) - 1)
	c.AddCount(10)
	if got := c.GetCount(); got < 0 {
		t.Fatalf("GetCount() = %d, want non-negative", got)
	}
}

func TestConcurrentTimerAndCounter(t *testing.T) {
	g := NewGate()
	g.SetOnBattery(true)
	timer := NewActiveTimer(g)
	c := NewCounter(g)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch (i + j) % 5 {
				case 0:
					timer.StartRunning()
				case 1:
					timer.StopRunning()
				case 2:
					g.SetOnBattery(j%2 == 0)
				case 3:
					c.AddCount(1)
				default:
					if timer.GetRunningTimeMs() < 0 || c.GetCount() < 0 {
						t.Error("negative accumulated value")
					}
				}
			}
		}(i)
	}
	wg.Wait()

	if c.GetCount() > 100*20 {
		t.Fatalf("GetCount() = %d, want <= %d", c.GetCount(), 100*20)
	}
}
