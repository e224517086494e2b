// Package stats defines the identifiers shared by every accounting component:
// stat types, state transitions, consumption categories and the keys that
// address a single timer or counter.
package stats

import (
	"fmt"
	"strings"
)

const (
	// InvalidUID marks an update or query that is not attributed to an app.
	InvalidUID int32 = -1
	// InvalidLevel marks an update or query without a level discriminator.
	InvalidLevel int16 = -1
)

// Type identifies a trackable hardware or software activity.
type Type int

const (
	TypeInvalid Type = iota - 1
	TypeBluetoothBROn
	TypeBluetoothBRScan
	TypeBluetoothBLEOn
	TypeBluetoothBLEScan
	TypeWifiOn
	TypeWifiScan
	TypeRadioOn
	TypeRadioData
	TypeCameraOn
	TypeCameraFlashlightOn
	TypeFlashlightOn
	TypeGNSSOn
	TypeSensorGravityOn
	TypeSensorProximityOn
	TypeAudioOn
	TypeScreenOn
	TypeScreenBrightness
	TypeAlarm
	TypeWakelockHold
	TypePhoneIdle
	TypeCPUCluster
	TypeCPUSpeed
	TypeCPUActive
	TypeCPUSuspend
	TypeBattery
	TypeWorkScheduler
	TypeThermal
	TypeDistributedScheduler

	typeCount
)

var typeNames = [...]string{
	TypeBluetoothBROn:        "STATS_TYPE_BLUETOOTH_BR_ON",
	TypeBluetoothBRScan:      "STATS_TYPE_BLUETOOTH_BR_SCAN",
	TypeBluetoothBLEOn:       "STATS_TYPE_BLUETOOTH_BLE_ON",
	TypeBluetoothBLEScan:     "STATS_TYPE_BLUETOOTH_BLE_SCAN",
	TypeWifiOn:               "STATS_TYPE_WIFI_ON",
	TypeWifiScan:             "STATS_TYPE_WIFI_SCAN",
	TypeRadioOn:              "STATS_TYPE_PHONE_ACTIVE",
	TypeRadioData:            "STATS_TYPE_PHONE_DATA",
	TypeCameraOn:             "STATS_TYPE_CAMERA_ON",
	TypeCameraFlashlightOn:   "STATS_TYPE_CAMERA_FLASHLIGHT_ON",
	TypeFlashlightOn:         "STATS_TYPE_FLASHLIGHT_ON",
	TypeGNSSOn:               "STATS_TYPE_GNSS_ON",
	TypeSensorGravityOn:      "STATS_TYPE_SENSOR_GRAVITY_ON",
	TypeSensorProximityOn:    "STATS_TYPE_SENSOR_PROXIMITY_ON",
	TypeAudioOn:              "STATS_TYPE_AUDIO_ON",
	TypeScreenOn:             "STATS_TYPE_SCREEN_ON",
	TypeScreenBrightness:     "STATS_TYPE_SCREEN_BRIGHTNESS",
	TypeAlarm:                "STATS_TYPE_ALARM",
	TypeWakelockHold:         "STATS_TYPE_WAKELOCK_HOLD",
	TypePhoneIdle:            "STATS_TYPE_PHONE_IDLE",
	TypeCPUCluster:           "STATS_TYPE_CPU_CLUSTER",
	TypeCPUSpeed:             "STATS_TYPE_CPU_SPEED",
	TypeCPUActive:            "STATS_TYPE_CPU_ACTIVE",
	TypeCPUSuspend:           "STATS_TYPE_CPU_SUSPEND",
	TypeBattery:              "STATS_TYPE_BATTERY",
	TypeWorkScheduler:        "STATS_TYPE_WORKSCHEDULER",
	TypeThermal:              "STATS_TYPE_THERMAL",
	TypeDistributedScheduler: "STATS_TYPE_DISTRIBUTEDSCHEDULER",
}

// Valid reports whether t is one of the enumerated types (TypeInvalid excluded).
func (t Type) Valid() bool {
	return t > TypeInvalid && t < typeCount
}

// String returns the STATS_TYPE_* name, or "" for invalid values.
func (t Type) String() string {
	if !t.Valid() {
		return ""
	}
	return typeNames[t]
}

// Types returns every valid type in declaration order.
func Types() []Type {
	out := make([]Type, 0, int(typeCount))
	for t := TypeInvalid + 1; t < typeCount; t++ {
		out = append(out, t)
	}
	return out
}

// ParseType resolves a STATS_TYPE_* name (case-insensitive, prefix optional).
func ParseType(name string) (Type, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(want, "STATS_TYPE_") {
		want = "STATS_TYPE_" + want
	}
	for t := TypeInvalid + 1; t < typeCount; t++ {
		if typeNames[t] == want {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("unknown stat type %q", name)
}

// State is the transition carried by an activation update.
type State int

const (
	StateInvalid State = iota - 1
	StateActivated
	StateDeactivated
)

// Valid reports whether s is activated or deactivated.
func (s State) Valid() bool {
	return s == StateActivated || s == StateDeactivated
}

func (s State) String() string {
	switch s {
	case StateActivated:
		return "activated"
	case StateDeactivated:
		return "deactivated"
	default:
		return "invalid"
	}
}

// Category is a consumption bucket. Each category except CategoryApp is owned
// by exactly one aggregator; CategoryApp is the per-uid roll-up.
type Category int

const (
	CategoryInvalid Category = iota - 1
	CategoryApp
	CategoryBluetooth
	CategoryIdle
	CategoryPhone
	CategoryScreen
	CategoryWifi
	CategoryCamera
	CategoryFlashlight
	CategoryAudio
	CategorySensor
	CategoryGNSS
	CategoryCPU
	CategoryWakelock
	CategoryAlarm

	categoryCount
)

var categoryNames = [...]string{
	CategoryApp:        "app",
	CategoryBluetooth:  "bluetooth",
	CategoryIdle:       "idle",
	CategoryPhone:      "phone",
	CategoryScreen:     "screen",
	CategoryWifi:       "wifi",
	CategoryCamera:     "camera",
	CategoryFlashlight: "flashlight",
	CategoryAudio:      "audio",
	CategorySensor:     "sensor",
	CategoryGNSS:       "gnss",
	CategoryCPU:        "cpu",
	CategoryWakelock:   "wakelock",
	CategoryAlarm:      "alarm",
}

// Valid reports whether c is an enumerated category (CategoryInvalid excluded).
func (c Category) Valid() bool {
	return c > CategoryInvalid && c < categoryCount
}

func (c Category) String() string {
	if !c.Valid() {
		return "invalid"
	}
	return categoryNames[c]
}

// Categories returns the categories backed by an aggregator, in declaration order.
func Categories() []Category {
	out := make([]Category, 0, int(categoryCount))
	for c := CategoryApp + 1; c < categoryCount; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCategory resolves a category name as returned by String.
func ParseCategory(name string) (Category, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for c := CategoryApp; c < categoryCount; c++ {
		if categoryNames[c] == want {
			return c, nil
		}
	}
	return CategoryInvalid, fmt.Errorf("unknown category %q", name)
}

// Key addresses one timer or counter inside an aggregator.
type Key struct {
	Type  Type
	Level int16
	UID   int32
}

// NewKey builds a key, degrading out-of-range level and uid values to their
// "none" sentinels.
func NewKey(t Type, level int16, uid int32) Key {
	if level < 0 {
		level = InvalidLevel
	}
	if uid < 0 {
		uid = InvalidUID
	}
	return Key{Type: t, Level: level, UID: uid}
}

func (k Key) String() string {
	return fmt.Sprintf("%s level=%d uid=%d", k.Type, k.Level, k.UID)
}
