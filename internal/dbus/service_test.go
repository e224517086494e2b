package dbus

import (
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/accounting"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/collector"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/core"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/profile"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/storage"
)

func newTestService(t *testing.T) (*Service, *core.Core, *storage.DB, *time.Time) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(path)
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("db.Close() error = %v", err)
		}
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := profile.Parse([]byte(`{"screen.on": 5, "cpu.active": 50}`))
	if err != nil {
		t.Fatalf("profile.Parse() error = %v", err)
	}
	holder := profile.NewHolder(logger)
	holder.Swap(p)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gate := accounting.NewGateWithClock(func() time.Time { return now })
	gate.SetOnBattery(true)

	c := core.New(gate, holder, db, logger)
	return NewService(c, db), c, db, &now
}

func TestService_InvalidTimeRanges(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	tests := []struct {
		name string
		call func() *godbus.Error
	}{
		{
			name: "GetHistory negative from",
			call: func() *godbus.Error {
				_, err := svc.GetHistory(-1, 0)
				return err
			},
		},
		{
			name: "GetHistory to before from",
			call: func() *godbus.Error {
				_, err := svc.GetHistory(10, 9)
				return err
			},
		},
		{
			name: "GetHistory range too large",
			call: func() *godbus.Error {
				_, err := svc.GetHistory(0, 86400*366)
				return err
			},
		},
		{
			name: "GetPowerStateEvents negative from",
			call: func() *godbus.Error {
				_, err := svc.GetPowerStateEvents(-1, 0)
				return err
			},
		},
		{
			name: "GetPowerStateEvents to before from",
			call: func() *godbus.Error {
				_, err := svc.GetPowerStateEvents(10, 9)
				return err
			},
		},
		{
			name: "GetPowerStateEvents range too large",
			call: func() *godbus.Error {
				_, err := svc.GetPowerStateEvents(0, 86400*366)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err == nil {
				t.Fatal("expected D-Bus error, got nil")
			}
		})
	}
}

func TestService_UnknownNames(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.GetPartStatsMah("toaster"); err == nil {
		t.Fatal("GetPartStatsMah(toaster) error = nil, want error")
	}
	if _, err := svc.GetPartStatsPercent(""); err == nil {
		t.Fatal("GetPartStatsPercent(\"\") error = nil, want error")
	}
	if _, err := svc.GetTotalTimeSecond("STATS_TYPE_TOAST", -1); err == nil {
		t.Fatal("GetTotalTimeSecond(unknown) error = nil, want error")
	}
	if _, err := svc.GetTotalDataCount("nope", -1); err == nil {
		t.Fatal("GetTotalDataCount(unknown) error = nil, want error")
	}
}

func TestService_Queries(t *testing.T) {
	svc, c, _, now := newTestService(t)

	c.UpdateStats(stats.TypeScreenOn, stats.StateActivated, stats.InvalidLevel, stats.InvalidUID)
	*now = now.Add(time.Hour)
	c.UpdateStats(stats.TypeScreenOn, stats.StateDeactivated, stats.InvalidLevel, stats.InvalidUID)
	c.UpdateStatsTime(stats.TypeCPUActive, 3_600_000, 0, 1000)

	total, dbusErr := svc.GetTotalPowerMah()
	if dbusErr != nil || total < 54.999 || total > 55.001 {
		t.Fatalf("GetTotalPowerMah() = %v, %v, want 55", total, dbusErr)
	}
	app, _ := svc.GetAppStatsMah(1000)
	if app < 49.999 || app > 50.001 {
		t.Fatalf("GetAppStatsMah(1000) = %v, want 50", app)
	}
	screen, dbusErr := svc.GetPartStatsMah("screen")
	if dbusErr != nil || screen < 4.999 || screen > 5.001 {
		t.Fatalf("GetPartStatsMah(screen) = %v, %v, want 5", screen, dbusErr)
	}
	ratio, _ := svc.GetAppStatsPercent(1000)
	if ratio <= 0 || ratio > 1 {
		t.Fatalf("GetAppStatsPercent(1000) = %v, want (0, 1]", ratio)
	}
	secs, dbusErr := svc.GetTotalTimeSecond("SCREEN_ON", -5)
	if dbusErr != nil || secs != 3600 {
		t.Fatalf("GetTotalTimeSecond(SCREEN_ON) = %d, %v, want 3600", secs, dbusErr)
	}

	statsJSON, dbusErr := svc.GetBatteryStats()
	if dbusErr != nil {
		t.Fatalf("GetBatteryStats() error = %v", dbusErr)
	}
	var entries []StatsEntry
	if err := json.Unmarshal([]byte(statsJSON), &entries); err != nil {
		t.Fatalf("unmarshal stats JSON: %v", err)
	}
	if len(entries) != 2 || entries[0].Category != "app" || entries[0].UID != 1000 || entries[1].Category != "screen" {
		t.Fatalf("GetBatteryStats() = %s, want app 1000 then screen", statsJSON)
	}

	dump, _ := svc.Dump()
	if !strings.Contains(dump, "BATTERY STATS:") {
		t.Fatalf("Dump() = %q, want BATTERY STATS header", dump)
	}

	if err := svc.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if total, _ := svc.GetTotalPowerMah(); total != 0 {
		t.Fatalf("GetTotalPowerMah() after Reset = %v, want 0", total)
	}
	if statsJSON, _ := svc.GetBatteryStats(); statsJSON != "[]" {
		t.Fatalf("GetBatteryStats() after Reset = %s, want []", statsJSON)
	}
}

func TestService_HistoryJSONShapes(t *testing.T) {
	svc, _, db, _ := newTestService(t)

	if err := db.InsertPartSamples([]storage.PartSample{{Timestamp: 100, Category: "screen", UID: -1, PowerMah: 1.5}}); err != nil {
		t.Fatalf("InsertPartSamples() error = %v", err)
	}
	if _, err := db.InsertPowerStateEvent(collector.PowerStateEvent{StartTime: 90, EndTime: 95, Type: "suspend", SuspendSecs: 5}); err != nil {
		t.Fatalf("InsertPowerStateEvent() error = %v", err)
	}

	historyJSON, dbusErr := svc.GetHistory(0, 200)
	if dbusErr != nil {
		t.Fatalf("GetHistory() error = %v", dbusErr)
	}
	var history []map[string]any
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		t.Fatalf("unmarshal history JSON: %v", err)
	}
	if len(history) != 1 || history[0]["category"] != "screen" {
		t.Fatalf("GetHistory() = %s, want one screen sample", historyJSON)
	}

	eventsJSON, dbusErr := svc.GetPowerStateEvents(0, 200)
	if dbusErr != nil {
		t.Fatalf("GetPowerStateEvents() error = %v", dbusErr)
	}
	var events []collector.PowerStateEvent
	if err := json.Unmarshal([]byte(eventsJSON), &events); err != nil {
		t.Fatalf("unmarshal events JSON: %v", err)
	}
	if len(events) != 1 || events[0].SuspendSecs != 5 {
		t.Fatalf("GetPowerStateEvents() = %s, want one suspend event", eventsJSON)
	}

	emptyJSON, _ := svc.GetHistory(500, 600)
	if emptyJSON != "[]" {
		t.Fatalf("GetHistory(empty range) = %s, want []", emptyJSON)
	}
}

func TestService_NilHistory(t *testing.T) {
	svc := NewService(core.New(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), nil)

	got, err := svc.GetPowerStateEvents(0, 10)
	if err != nil || got != "[]" {
		t.Fatalf("GetPowerStateEvents() = %q, %v, want []", got, err)
	}
}
