package entity

import (
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/profile"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
)

// Kind selects the accumulator a stat type records into.
type Kind int

const (
	// KindTimer accumulates gated active time.
	KindTimer Kind = iota
	// KindCounter accumulates gated discrete events.
	KindCounter
)

// Lookup selects how the profile current for a key is resolved.
type Lookup int

const (
	// LookupScalar reads level 0 of Current. The key level is dropped, so
	// all levels share one accumulator.
	LookupScalar Lookup = iota
	// LookupLevel reads Current at the key level.
	LookupLevel
	// LookupLevelScaled multiplies level 0 of Current by the key level.
	LookupLevelScaled
	// LookupClusterSpeed decodes the key level with stats.SplitSpeedLevel
	// and reads the cluster speed step current.
	LookupClusterSpeed
)

// Rule describes how one stat type is accounted.
type Rule struct {
	Kind    Kind
	Current string
	Lookup  Lookup
	// System drops the uid: the activity is attributed to the device.
	System bool
	// Exclusive stops the other running levels of the same type and uid
	// when a level is activated.
	Exclusive bool
	// Group, when set, narrows Exclusive to levels in the same group.
	Group func(level int16) int
	// Parent, when valid, only lets this type run while the parent timer
	// for the same uid is running.
	Parent stats.Type
}

// excludes reports whether activating level a stops a running level b.
func (r Rule) excludes(a, b int16) bool {
	if !r.Exclusive || a == b {
		return false
	}
	return r.Group == nil || r.Group(a) == r.Group(b)
}

// speedCluster groups cpu speed levels by cluster: each cluster runs at one
// speed, but clusters run concurrently.
func speedCluster(level int16) int {
	cluster, _ := stats.SplitSpeedLevel(level)
	return int(cluster)
}

// Rules maps each owned stat type to its rule.
type Rules map[stats.Type]Rule

func timer(current string) Rule {
	return Rule{Kind: KindTimer, Current: current, Parent: stats.TypeInvalid}
}

func systemTimer(current string) Rule {
	r := timer(current)
	r.System = true
	return r
}

var categoryRules = map[stats.Category]Rules{
	stats.CategoryBluetooth: {
		stats.TypeBluetoothBROn:    timer(profile.KeyBluetoothBROn),
		stats.TypeBluetoothBRScan:  timer(profile.KeyBluetoothBRScan),
		stats.TypeBluetoothBLEOn:   timer(profile.KeyBluetoothBLEOn),
		stats.TypeBluetoothBLEScan: timer(profile.KeyBluetoothBLEScan),
	},
	stats.CategoryWifi: {
		stats.TypeWifiOn:   systemTimer(profile.KeyWifiOn),
		stats.TypeWifiScan: {Kind: KindCounter, Current: profile.KeyWifiScan, System: true, Parent: stats.TypeInvalid},
	},
	stats.CategoryPhone: {
		stats.TypeRadioOn:   {Kind: KindTimer, Current: profile.KeyRadioOn, Lookup: LookupLevel, System: true, Exclusive: true, Parent: stats.TypeInvalid},
		stats.TypeRadioData: systemTimer(profile.KeyRadioActive),
	},
	stats.CategoryScreen: {
		stats.TypeScreenOn: systemTimer(profile.KeyScreenOn),
		stats.TypeScreenBrightness: {
			Kind:      KindTimer,
			Current:   profile.KeyScreenBrightness,
			Lookup:    LookupLevelScaled,
			System:    true,
			Exclusive: true,
			Parent:    stats.TypeScreenOn,
		},
	},
	stats.CategoryCamera: {
		stats.TypeCameraOn: timer(profile.KeyCameraOn),
	},
	stats.CategoryFlashlight: {
		stats.TypeFlashlightOn:       timer(profile.KeyCameraFlashlight),
		stats.TypeCameraFlashlightOn: timer(profile.KeyCameraFlashlight),
	},
	stats.CategoryAudio: {
		stats.TypeAudioOn: timer(profile.KeyAudioOn),
	},
	stats.CategoryGNSS: {
		stats.TypeGNSSOn: timer(profile.KeyGNSSOn),
	},
	stats.CategorySensor: {
		stats.TypeSensorGravityOn:   timer(profile.KeySensorGravity),
		stats.TypeSensorProximityOn: timer(profile.KeySensorProximity),
	},
	stats.CategoryWakelock: {
		stats.TypeWakelockHold: timer(profile.KeyCPUAwake),
	},
	stats.CategoryAlarm: {
		stats.TypeAlarm: {Kind: KindCounter, Current: profile.KeyAlarmOn, Parent: stats.TypeInvalid},
	},
	stats.CategoryIdle: {
		stats.TypePhoneIdle: systemTimer(profile.KeyCPUIdle),
	},
	stats.CategoryCPU: {
		stats.TypeCPUActive:  timer(profile.KeyCPUActive),
		stats.TypeCPUCluster: {Kind: KindTimer, Current: profile.KeyCPUCluster, Lookup: LookupLevel, Parent: stats.TypeInvalid},
		stats.TypeCPUSpeed:   {Kind: KindTimer, Lookup: LookupClusterSpeed, Exclusive: true, Group: speedCluster, Parent: stats.TypeInvalid},
		stats.TypeCPUSuspend: systemTimer(profile.KeyCPUSuspend),
	},
}

// RulesFor returns the rules of category c, or nil for a category without
// an aggregator.
func RulesFor(c stats.Category) Rules {
	return categoryRules[c]
}

// Owner returns the category whose aggregator accounts t, or
// stats.CategoryInvalid when no aggregator does (the debug-only types).
func Owner(t stats.Type) stats.Category {
	if c, ok := owners[t]; ok {
		return c
	}
	return stats.CategoryInvalid
}

var owners = func() map[stats.Type]stats.Category {
	m := make(map[stats.Type]stats.Category)
	for c, rules := range categoryRules {
		for t := range rules {
			m[t] = c
		}
	}
	return m
}()
