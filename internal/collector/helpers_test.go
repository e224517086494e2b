package collector

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
)

func setTestSysfsRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	oldRoot := sysfsRoot
	sysfsRoot = root
	t.Cleanup(func() {
		sysfsRoot = oldRoot
	})

	return root
}

func setTestProcRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	oldRoot := procRoot
	procRoot = root
	t.Cleanup(func() {
		procRoot = oldRoot
	})

	return root
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

type stateUpdate struct {
	Type  stats.Type
	State stats.State
	Level int16
	UID   int32
}

type timeUpdate struct {
	Type   stats.Type
	TimeMs int64
	Data   int64
	UID    int32
}

// recordingSink captures every update it receives.
type recordingSink struct {
	mu        sync.Mutex
	onBattery []bool
	screenOff []bool
	states    []stateUpdate
	times     []timeUpdate
}

func (s *recordingSink) SetOnBattery(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBattery = append(s.onBattery, on)
}

func (s *recordingSink) SetScreenOff(off bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenOff = append(s.screenOff, off)
}

func (s *recordingSink) UpdateStats(t stats.Type, state stats.State, level int16, uid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, stateUpdate{t, state, level, uid})
}

func (s *recordingSink) UpdateStatsTime(t stats.Type, timeMs, data int64, uid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times = append(s.times, timeUpdate{t, timeMs, data, uid})
}
