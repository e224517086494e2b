// Package collector turns Linux power, display, sleep and process state into
// battery-stats updates.
package collector

import "github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"

// Sink receives the updates produced by the collectors. *core.Core
// satisfies it.
type Sink interface {
	SetOnBattery(on bool)
	SetScreenOff(off bool)
	UpdateStats(t stats.Type, state stats.State, level int16, uid int32)
	UpdateStatsTime(t stats.Type, timeMs, data int64, uid int32)
}

// PowerSource is the state of the power supplies.
type PowerSource struct {
	Timestamp   int64  `json:"timestamp"`
	Status      string `json:"status"` // battery status: "Charging", "Discharging", "Full", ...
	CapacityPct int    `json:"capacity_pct"`
	CurrentUA   int64  `json:"current_ua"` // discharge current, 0 when unreported
	ACOnline    bool   `json:"ac_online"`
}

// OnBattery reports whether the device is drawing from its battery. A
// battery that reports discharging while AC is online (some firmware does at
// full capacity) is treated as on AC.
func (p PowerSource) OnBattery() bool {
	if p.ACOnline {
		return false
	}
	return p.Status == "Discharging" || p.Status == "Not charging" || p.Status == "Unknown"
}

// CurrentMa is the battery current in milliamps.
func (p PowerSource) CurrentMa() float64 {
	return float64(p.CurrentUA) / 1000
}

// BacklightSample holds a snapshot of display backlight state.
type BacklightSample struct {
	Timestamp     int64 `json:"timestamp"`
	Brightness    int64 `json:"brightness"`
	MaxBrightness int64 `json:"max_brightness"`
	// BlPower is the fbdev blank state; 0 means the panel is powered.
	BlPower int64 `json:"bl_power"`
}

// ScreenOn reports whether the panel is lit.
func (s BacklightSample) ScreenOn() bool {
	return s.BlPower == 0 && s.Brightness > 0
}

// Level returns the brightness as a percentage in [0, 100].
func (s BacklightSample) Level() int16 {
	if s.MaxBrightness <= 0 || s.Brightness <= 0 {
		return 0
	}
	pct := (s.Brightness*100 + s.MaxBrightness/2) / s.MaxBrightness
	if pct > 100 {
		pct = 100
	}
	return int16(pct)
}

// PowerStateEvent is one suspend, hibernate or shutdown period reconstructed
// from the systemd sleep hook log.
type PowerStateEvent struct {
	StartTime     int64  `json:"start_time"`
	EndTime       int64  `json:"end_time"`
	Type          string `json:"type"`
	SuspendSecs   int64  `json:"suspend_secs"`
	HibernateSecs int64  `json:"hibernate_secs"`
}

// SleepMs returns the time the machine spent suspended or hibernated.
func (e PowerStateEvent) SleepMs() int64 {
	secs := e.SuspendSecs + e.HibernateSecs
	if secs <= 0 {
		return 0
	}
	return secs * stats.MsPerSecond
}

// UIDSample is the CPU time an app uid consumed during one interval.
type UIDSample struct {
	UID    int32 `json:"uid"`
	Ticks  int64 `json:"ticks"`
	TimeMs int64 `json:"time_ms"`
}
