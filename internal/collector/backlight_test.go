package collector

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
)

func TestCollectBacklight_ParsesValues(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "brightness"), "123\n")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "456\n")

	sample, err := CollectBacklight()
	if err != nil {
		t.Fatalf("CollectBacklight() error = %v", err)
	}

	if sample.Timestamp <= 0 {
		t.Fatalf("Timestamp = %d, want > 0", sample.Timestamp)
	}
	if sample.Brightness != 123 {
		t.Fatalf("Brightness = %d, want 123", sample.Brightness)
	}
	if sample.MaxBrightness != 456 {
		t.Fatalf("MaxBrightness = %d, want 456", sample.MaxBrightness)
	}
	if sample.BlPower != 0 || !sample.ScreenOn() {
		t.Fatalf("BlPower = %d, ScreenOn() = %v, want powered panel", sample.BlPower, sample.ScreenOn())
	}
	if got := sample.Level(); got != 27 {
		t.Fatalf("Level() = %d, want 27", got)
	}
}

func TestCollectBacklight_BlankedPanel(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/amdgpu_bl0")
	writeTestFile(t, filepath.Join(dir, "brightness"), "200\n")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "255\n")
	writeTestFile(t, filepath.Join(dir, "bl_power"), "4\n")

	sample, err := CollectBacklight()
	if err != nil {
		t.Fatalf("CollectBacklight() error = %v", err)
	}
	if sample.ScreenOn() {
		t.Fatal("ScreenOn() = true for bl_power=4, want false")
	}
}

func TestCollectBacklight_NoBacklightFound(t *testing.T) {
	_ = setTestSysfsRoot(t)

	_, err := CollectBacklight()
	if err == nil {
		t.Fatal("CollectBacklight() error = nil, want no backlight found error")
	}
	if !strings.Contains(err.Error(), "no backlight found") {
		t.Fatalf("CollectBacklight() error = %q, want contains %q", err.Error(), "no backlight found")
	}
}

func TestCollectBacklight_BrightnessReadError(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "456\n")

	_, err := CollectBacklight()
	if err == nil {
		t.Fatal("CollectBacklight() error = nil, want read brightness error")
	}
	if !strings.Contains(err.Error(), "read brightness") {
		t.Fatalf("CollectBacklight() error = %q, want contains %q", err.Error(), "read brightness")
	}
}

func TestCollectBacklight_MaxBrightnessReadError(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "brightness"), "123\n")

	_, err := CollectBacklight()
	if err == nil {
		t.Fatal("CollectBacklight() error = nil, want read max_brightness error")
	}
	if !strings.Contains(err.Error(), "read max_brightness") {
		t.Fatalf("CollectBacklight() error = %q, want contains %q", err.Error(), "read max_brightness")
	}
}

func TestCollectBacklight_InvalidBrightnessValue(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "brightness"), "not-a-number\n")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "456\n")

	_, err := CollectBacklight()
	if err == nil {
		t.Fatal("CollectBacklight() error = nil, want parse error")
	}
	if !strings.Contains(err.Error(), "read brightness") {
		t.Fatalf("CollectBacklight() error = %q, want contains %q", err.Error(), "read brightness")
	}
}

func TestBacklightLevel(t *testing.T) {
	tests := []struct {
		brightness, max int64
		want            int16
	}{
		{0, 100, 0},
		{50, 0, 0},
		{255, 255, 100},
		{128, 255, 50},
		{300, 255, 100},
	}
	for _, tt := range tests {
		s := BacklightSample{Brightness: tt.brightness, MaxBrightness: tt.max}
		if got := s.Level(); got != tt.want {
			t.Fatalf("Level(%d/%d) = %d, want %d", tt.brightness, tt.max, got, tt.want)
		}
	}
}

func TestScreenTracker(t *testing.T) {
	sink := &recordingSink{}
	tr := NewScreenTracker(sink)
	none := stats.InvalidUID

	tr.Apply(BacklightSample{Brightness: 50, MaxBrightness: 100})
	tr.Apply(BacklightSample{Brightness: 50, MaxBrightness: 100})
	tr.Apply(BacklightSample{Brightness: 80, MaxBrightness: 100})
	tr.Apply(BacklightSample{Brightness: 80, MaxBrightness: 100, BlPower: 4})

	want := []stateUpdate{
		{stats.TypeScreenBrightness, stats.StateActivated, 50, none},
		{stats.TypeScreenOn, stats.StateActivated, stats.InvalidLevel, none},
		{stats.TypeScreenBrightness, stats.StateActivated, 80, none},
		{stats.TypeScreenOn, stats.StateDeactivated, stats.InvalidLevel, none},
	}
	if !reflect.DeepEqual(sink.states, want) {
		t.Fatalf("updates = %#v\nwant %#v", sink.states, want)
	}
	if !reflect.DeepEqual(sink.screenOff, []bool{false, true}) {
		t.Fatalf("SetScreenOff calls = %v, want [false true]", sink.screenOff)
	}
}
