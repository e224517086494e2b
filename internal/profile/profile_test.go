package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testProfile = `{
	// reference handset
	"cpu.suspend": 5,
	"cpu.idle": 10,
	"cpu.active": 80,
	"cpu.clusters": [
		{"on": 20, "speeds": [30, 45, 60]},
		{"on": 35, "speeds": [70, 110]},
	],
	"wifi.on": 2.5,
	"wifi.scan": 0.25,
	"screen.on": 5.0,
	"screen.brightness": 2.0,
	"radio.on": [40, 30, 20, 15, 10],
	"radio.active": 120,
	"vendor.name": "ignored",
}`

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "power_profile.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestParseLookups(t *testing.T) {
	p, err := Parse([]byte(testProfile))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name  string
		key   string
		level int
		want  float64
	}{
		{"scalar", KeyScreenOn, 0, 5.0},
		{"scalar negative level", KeyWifiOn, -1, 0},
		{"level table negative level", KeyRadioOn, -2, 0},
		{"cluster negative index", KeyCPUCluster, -1, 0},
		{"scalar out of range level", KeyWifiOn, 1, 0},
		{"level table", KeyRadioOn, 2, 20},
		{"level table last", KeyRadioOn, 4, 10},
		{"level table out of range", KeyRadioOn, 5, 0},
		{"unknown key", "toaster.on", 0, 0},
		{"missing known key", KeyGNSSOn, 0, 0},
		{"non numeric value", "vendor.name", 0, 0},
		{"cluster on", KeyCPUCluster, 1, 35},
		{"cluster out of range", KeyCPUCluster, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.GetAveragePowerMa(tt.key, tt.level); got != tt.want {
				t.Fatalf("GetAveragePowerMa(%q, %d) = %v, want %v", tt.key, tt.level, got, tt.want)
			}
		})
	}
}

func TestClusterTopology(t *testing.T) {
	p, err := Parse([]byte(testProfile))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := p.GetClusterNum(); got != 2 {
		t.Fatalf("GetClusterNum() = %d, want 2", got)
	}
	if got := p.GetSpeedNum(0); got != 3 {
		t.Fatalf("GetSpeedNum(0) = %d, want 3", got)
	}
	if got := p.GetSpeedNum(1); got != 2 {
		t.Fatalf("GetSpeedNum(1) = %d, want 2", got)
	}
	if got := p.GetSpeedNum(7); got != 0 {
		t.Fatalf("GetSpeedNum(7) = %d, want 0", got)
	}
	if got := p.GetSpeedPowerMa(1, 1); got != 110 {
		t.Fatalf("GetSpeedPowerMa(1, 1) = %v, want 110", got)
	}
	if got := p.GetSpeedPowerMa(1, 2); got != 0 {
		t.Fatalf("GetSpeedPowerMa(1, 2) = %v, want 0", got)
	}
	if got := p.GetSpeedPowerMa(9, 0); got != 0 {
		t.Fatalf("GetSpeedPowerMa(9, 0) = %v, want 0", got)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", "screen.on = 5"},
		{"truncated", `{"screen.on": 5`},
		{"array root", `[1, 2, 3]`},
		{"number root", `42`},
		{"clusters not array", `{"cpu.clusters": 5}`},
		{"cluster not object", `{"cpu.clusters": [1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Parse() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestParsePartialDocument(t *testing.T) {
	p, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse({}) error = %v", err)
	}
	if p.GetClusterNum() != 0 || p.GetAveragePowerMa(KeyScreenOn, 0) != 0 {
		t.Fatal("empty document should yield an empty table")
	}
}

func TestParseSanitizesNegativeCurrents(t *testing.T) {
	p, err := Parse([]byte(`{"wifi.on": -3, "radio.on": [1, -2, "x"]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := p.GetAveragePowerMa(KeyWifiOn, 0); got != 0 {
		t.Fatalf("GetAveragePowerMa(wifi.on) = %v, want 0", got)
	}
	if got := p.GetAveragePowerMa(KeyRadioOn, 1); got != 0 {
		t.Fatalf("GetAveragePowerMa(radio.on, 1) = %v, want 0", got)
	}
	if got := p.GetLevelNum(KeyRadioOn); got != 3 {
		t.Fatalf("GetLevelNum(radio.on) = %d, want 3", got)
	}
}

func TestNilProfileLookups(t *testing.T) {
	var p *Profile
	if p.GetAveragePowerMa(KeyScreenOn, 0) != 0 || p.GetClusterNum() != 0 || p.GetSpeedNum(0) != 0 {
		t.Fatal("nil profile lookups should return 0")
	}
}

func TestHolderInit(t *testing.T) {
	h := NewHolder(nil)
	if !h.Init(writeProfile(t, testProfile)) {
		t.Fatal("Init() = false, want true")
	}
	if got := h.Get().GetAveragePowerMa(KeyScreenOn, 0); got != 5 {
		t.Fatalf("GetAveragePowerMa(screen.on) = %v, want 5", got)
	}

	if h.Init(filepath.Join(t.TempDir(), "missing.json")) {
		t.Fatal("Init(missing) = true, want false")
	}
	if got := h.Get().GetAveragePowerMa(KeyScreenOn, 0); got != 0 {
		t.Fatalf("GetAveragePowerMa() after failed Init = %v, want 0", got)
	}

	if h.Init(writeProfile(t, "garbage")) {
		t.Fatal("Init(garbage) = true, want false")
	}
}

func TestHolderReloadKeepsPreviousOnError(t *testing.T) {
	h := NewHolder(nil)
	path := writeProfile(t, testProfile)
	if !h.Init(path) {
		t.Fatal("Init() = false")
	}
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := h.Reload(path); err == nil {
		t.Fatal("Reload() error = nil, want error")
	}
	if got := h.Get().GetAveragePowerMa(KeyScreenOn, 0); got != 5 {
		t.Fatalf("GetAveragePowerMa() after failed reload = %v, want 5", got)
	}
}

func TestDumpInfo(t *testing.T) {
	p, err := Parse([]byte(testProfile))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var b strings.Builder
	p.DumpInfo(&b)
	out := b.String()
	for _, want := range []string{"POWER PROFILE:", "screen.on: 5", "radio.on: 40 30 20 15 10", "cpu.clusters[1]: on=35"} {
		if !strings.Contains(out, want) {
			t.Fatalf("DumpInfo() missing %q in:\n%s", want, out)
		}
	}
}

func TestSetEntries(t *testing.T) {
	out, err := SetEntries([]byte(testProfile), map[string]float64{
		KeyScreenOn:         7.5,
		KeyScreenBrightness: 0.125,
	})
	if err != nil {
		t.Fatalf("SetEntries() error = %v", err)
	}
	p, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(SetEntries()) error = %v", err)
	}
	if got := p.GetAveragePowerMa(KeyScreenOn, 0); got != 7.5 {
		t.Fatalf("screen.on = %v, want 7.5", got)
	}
	if got := p.GetAveragePowerMa(KeyScreenBrightness, 0); got != 0.125 {
		t.Fatalf("screen.brightness = %v, want 0.125", got)
	}
	if got := p.GetAveragePowerMa(KeyRadioOn, 1); got != 30 {
		t.Fatalf("radio.on[1] = %v, want 30 (untouched)", got)
	}
	if _, err := SetEntries([]byte("{nope"), map[string]float64{KeyScreenOn: 1}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("SetEntries(malformed) error = %v, want ErrMalformed", err)
	}
}

func TestWriteEntriesCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "profile.json")
	if err := WriteEntries(path, map[string]float64{KeyWifiOn: 3}); err != nil {
		t.Fatalf("WriteEntries() error = %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := p.GetAveragePowerMa(KeyWifiOn, 0); got != 3 {
		t.Fatalf("wifi.on = %v, want 3", got)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeProfile(t, testProfile)
	h := NewHolder(nil)
	if !h.Init(path) {
		t.Fatal("Init() = false")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx, path) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := WriteEntries(path, map[string]float64{KeyScreenOn: 9}); err != nil {
		t.Fatalf("WriteEntries() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.Get().GetAveragePowerMa(KeyScreenOn, 0) == 9 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("screen.on = %v after write, want 9", h.Get().GetAveragePowerMa(KeyScreenOn, 0))
}
