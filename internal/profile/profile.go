// Package profile parses the power profile: the per-subsystem current draw
// table (mA) and the CPU cluster/speed topology used by the power
// computation.
//
// The document is a JSON object, optionally with comments and trailing
// commas. Scalar values are one-level tables, numeric arrays are level
// tables, and "cpu.clusters" is an array of {"on": mA, "speeds": [mA...]}.
package profile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/tailscale/hujson"
	"github.com/tidwall/gjson"
)

// Recognized profile keys.
const (
	KeyCPUSuspend       = "cpu.suspend"
	KeyCPUIdle          = "cpu.idle"
	KeyCPUActive        = "cpu.active"
	KeyCPUAwake         = "cpu.awake"
	KeyCPUClusters      = "cpu.clusters"
	KeyCPUCluster       = "cpu.cluster" // virtual: cluster "on" current by index
	KeyWifiOn           = "wifi.on"
	KeyWifiScan         = "wifi.scan"
	KeyBluetoothBROn    = "bluetooth.br.on"
	KeyBluetoothBRScan  = "bluetooth.br.scan"
	KeyBluetoothBLEOn   = "bluetooth.ble.on"
	KeyBluetoothBLEScan = "bluetooth.ble.scan"
	KeyGNSSOn           = "gnss.on"
	KeyCameraOn         = "camera.on"
	KeyCameraFlashlight = "camera.flashlight"
	KeyAudioOn          = "audio.on"
	KeySensorGravity    = "sensors.gravity"
	KeySensorProximity  = "sensors.proximity"
	KeyScreenOn         = "screen.on"
	KeyScreenBrightness = "screen.brightness"
	KeyRadioOn          = "radio.on"
	KeyRadioActive      = "radio.active"
	KeyAlarmOn          = "alarm.on"
)

// ErrMalformed is wrapped by every error caused by a document that is not a
// JSON object.
var ErrMalformed = errors.New("malformed power profile")

// Cluster is one CPU cluster: the current drawn while it is online and the
// additional current per speed step.
type Cluster struct {
	On     float64
	Speeds []float64
}

// Profile is an immutable parsed power profile. The zero value and nil are
// both valid empty profiles whose lookups return 0.
type Profile struct {
	entries  map[string][]float64
	clusters []Cluster
}

// Empty returns a profile with no entries.
func Empty() *Profile {
	return &Profile{entries: map[string][]float64{}}
}

// Parse decodes a profile document. Missing keys are not an error; values of
// a type other than number or array are ignored.
func Parse(data []byte) (*Profile, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !gjson.ValidBytes(std) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(std)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: root is %s, want object", ErrMalformed, root.Type)
	}

	p := Empty()
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == KeyCPUClusters {
			clusters, err := parseClusters(value)
			if err != nil {
				parseErr = err
				return false
			}
			p.clusters = clusters
			return true
		}
		switch {
		case value.Type == gjson.Number:
			p.entries[name] = []float64{sanitize(value.Float())}
		case value.IsArray():
			p.entries[name] = numbers(value)
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return p, nil
}

// Load reads and parses the profile at path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}

func parseClusters(value gjson.Result) ([]Cluster, error) {
	if !value.IsArray() {
		return nil, fmt.Errorf("%w: %s must be an array", ErrMalformed, KeyCPUClusters)
	}
	var out []Cluster
	for i, c := range value.Array() {
		if !c.IsObject() {
			return nil, fmt.Errorf("%w: %s[%d] must be an object", ErrMalformed, KeyCPUClusters, i)
		}
		out = append(out, Cluster{
			On:     sanitize(c.Get("on").Float()),
			Speeds: numbers(c.Get("speeds")),
		})
	}
	return out, nil
}

func numbers(arr gjson.Result) []float64 {
	if !arr.IsArray() {
		return nil
	}
	items := arr.Array()
	out := make([]float64, len(items))
	for i, v := range items {
		if v.Type == gjson.Number {
			out[i] = sanitize(v.Float())
		}
	}
	return out
}

// sanitize maps negative and non-finite currents to 0.
func sanitize(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// GetAveragePowerMa returns the current for key at level. Unknown keys and
// out-of-range levels, negative ones included, yield 0.
func (p *Profile) GetAveragePowerMa(key string, level int) float64 {
	if p == nil || level < 0 {
		return 0
	}
	if key == KeyCPUCluster {
		if level >= len(p.clusters) {
			return 0
		}
		return p.clusters[level].On
	}
	values, ok := p.entries[key]
	if !ok || level >= len(values) {
		return 0
	}
	return values[level]
}

// GetLevelNum returns the number of levels configured for key.
func (p *Profile) GetLevelNum(key string) int {
	if p == nil {
		return 0
	}
	return len(p.entries[key])
}

func (p *Profile) GetClusterNum() uint16 {
	if p == nil {
		return 0
	}
	return uint16(len(p.clusters))
}

// GetSpeedNum returns the number of speed steps in cluster, or 0 when the
// cluster does not exist.
func (p *Profile) GetSpeedNum(cluster uint16) uint16 {
	if p == nil || int(cluster) >= len(p.clusters) {
		return 0
	}
	return uint16(len(p.clusters[cluster].Speeds))
}

// GetSpeedPowerMa returns the current of one speed step, or 0 when out of range.
func (p *Profile) GetSpeedPowerMa(cluster, speed uint16) float64 {
	if p == nil || int(cluster) >= len(p.clusters) {
		return 0
	}
	speeds := p.clusters[cluster].Speeds
	if int(speed) >= len(speeds) {
		return 0
	}
	return speeds[speed]
}

// Keys returns the configured keys in sorted order.
func (p *Profile) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DumpInfo writes the table in a human-readable form.
func (p *Profile) DumpInfo(w io.Writer) {
	fmt.Fprintln(w, "POWER PROFILE:")
	for _, k := range p.Keys() {
		fmt.Fprintf(w, "  %s:", k)
		for _, v := range p.entries[k] {
			fmt.Fprintf(w, " %g", v)
		}
		fmt.Fprintln(w)
	}
	for i := uint16(0); i < p.GetClusterNum(); i++ {
		c := p.clusters[i]
		fmt.Fprintf(w, "  %s[%d]: on=%g speeds=%v\n", KeyCPUClusters, i, c.On, c.Speeds)
	}
}
