package collector

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
)

// CollectBacklight reads backlight state from /sys/class/backlight/*.
func CollectBacklight() (*BacklightSample, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/backlight/*"))
	if err != nil {
		return nil, fmt.Errorf("glob backlight: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no backlight found")
	}

	dir := matches[0]
	brightness, err := readIntFile(filepath.Join(dir, "brightness"))
	if err != nil {
		return nil, fmt.Errorf("read brightness: %w", err)
	}
	maxBrightness, err := readIntFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("read max_brightness: %w", err)
	}
	// bl_power is optional; drivers without it are always powered.
	blPower, _ := readIntFile(filepath.Join(dir, "bl_power"))

	return &BacklightSample{
		Timestamp:     time.Now().Unix(),
		Brightness:    brightness,
		MaxBrightness: maxBrightness,
		BlPower:       blPower,
	}, nil
}

// ScreenTracker turns backlight samples into screen-on and brightness
// updates, emitting only on change.
type ScreenTracker struct {
	sink Sink

	mu    sync.Mutex
	known bool
	on    bool
	level int16
}

func NewScreenTracker(sink Sink) *ScreenTracker {
	return &ScreenTracker{sink: sink, level: stats.InvalidLevel}
}

// Apply forwards s to the sink. Brightness is reported as a percentage level
// and is only timed while the screen is on.
func (t *ScreenTracker) Apply(s BacklightSample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	on := s.ScreenOn()
	level := s.Level()

	if level != t.level {
		t.sink.UpdateStats(stats.TypeScreenBrightness, stats.StateActivated, level, stats.InvalidUID)
		t.level = level
	}
	if t.known && on == t.on {
		return
	}
	t.known, t.on = true, on
	t.sink.SetScreenOff(!on)
	state := stats.StateDeactivated
	if on {
		state = stats.StateActivated
	}
	t.sink.UpdateStats(stats.TypeScreenOn, state, stats.InvalidLevel, stats.InvalidUID)
}
