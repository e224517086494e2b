package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	sysfsRoot = "/sys"
	procRoot  = "/proc"
)

// CollectPowerSource reads the first battery's uevent and every AC adapter's
// online flag under /sys/class/power_supply.
func CollectPowerSource() (*PowerSource, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/BAT*"))
	if err != nil {
		return nil, fmt.Errorf("glob battery: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no battery found")
	}

	data, err := os.ReadFile(filepath.Join(matches[0], "uevent"))
	if err != nil {
		return nil, fmt.Errorf("read uevent: %w", err)
	}
	props := parseUevent(string(data))

	ps := &PowerSource{
		Timestamp: time.Now().Unix(),
		Status:    props["POWER_SUPPLY_STATUS"],
		ACOnline:  isACOnline(),
	}
	capacity, _ := strconv.ParseInt(props["POWER_SUPPLY_CAPACITY"], 10, 64)
	ps.CapacityPct = int(capacity)
	ps.CurrentUA = currentUA(props)
	return ps, nil
}

// currentUA reads current_now, or derives it from power_now and
// voltage_now on batteries that only report power. Signs vary by driver.
func currentUA(props map[string]string) int64 {
	if v, err := strconv.ParseInt(props["POWER_SUPPLY_CURRENT_NOW"], 10, 64); err == nil {
		return abs(v)
	}
	power, err := strconv.ParseInt(props["POWER_SUPPLY_POWER_NOW"], 10, 64)
	if err != nil {
		return 0
	}
	voltage, err := strconv.ParseInt(props["POWER_SUPPLY_VOLTAGE_NOW"], 10, 64)
	if err != nil || voltage == 0 {
		return 0
	}
	return abs(power) * 1_000_000 / abs(voltage)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// isACOnline checks if any external supply (mains or USB) is online.
func isACOnline() bool {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/*/online"))
	if err != nil {
		return false
	}
	for _, path := range matches {
		typ, err := os.ReadFile(filepath.Join(filepath.Dir(path), "type"))
		if err == nil && strings.TrimSpace(string(typ)) == "Battery" {
			continue
		}
		data, err := os.ReadFile(path)
		if err == nil && strings.TrimSpace(string(data)) == "1" {
			return true
		}
	}
	return false
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}
	return props
}

func readIntFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

// PowerTracker forwards power source changes to a Sink.
type PowerTracker struct {
	sink Sink

	mu    sync.Mutex
	known bool
	on    bool
}

func NewPowerTracker(sink Sink) *PowerTracker {
	return &PowerTracker{sink: sink}
}

// Apply forwards ps when the on-battery state changed. It reports whether
// an update was sent.
func (t *PowerTracker) Apply(ps PowerSource) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	on := ps.OnBattery()
	if t.known && on == t.on {
		return false
	}
	t.known, t.on = true, on
	t.sink.SetOnBattery(on)
	return true
}
