// Package calibration measures display current draw and fits the screen
// entries of the power profile.
package calibration

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/collector"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/profile"
)

var sysfsRoot = "/sys"

// CurrentReader returns the instantaneous battery discharge current.
type CurrentReader interface {
	ReadCurrentMa() (float64, error)
}

// BatteryReader reads the current from the first battery in sysfs.
type BatteryReader struct{}

func (BatteryReader) ReadCurrentMa() (float64, error) {
	ps, err := collector.CollectPowerSource()
	if err != nil {
		return 0, err
	}
	if ps.CurrentUA == 0 {
		return 0, fmt.Errorf("battery does not report current")
	}
	return ps.CurrentMa(), nil
}

// CurrentReading is a timestamped current measurement.
type CurrentReading struct {
	Timestamp time.Time
	CurrentMa float64
}

// BrightnessSample holds the average current at a given brightness level.
type BrightnessSample struct {
	BrightnessPct int     `json:"brightness_pct"`
	CurrentMa     float64 `json:"current_ma"`
}

// ScreenCurrents are the fitted profile entries.
type ScreenCurrents struct {
	OnMa         float64 `json:"screen_on_ma"`
	BrightnessMa float64 `json:"screen_brightness_ma"` // per brightness percent
}

// Result holds the output of a calibration run.
type Result struct {
	BaselineMa   float64            `json:"baseline_ma"`
	Samples      []BrightnessSample `json:"samples"`
	Screen       ScreenCurrents     `json:"screen"`
	CalibratedAt string             `json:"calibrated_at"`
}

// Fit estimates screen currents from per-level samples by least squares
// over current = baseline + on + brightness*level. baselineMa is the draw
// with the panel off. Negative estimates are clamped to zero.
func Fit(baselineMa float64, samples []BrightnessSample) (ScreenCurrents, error) {
	levels := make(map[int]bool)
	for _, s := range samples {
		levels[s.BrightnessPct] = true
	}
	if len(levels) < 2 {
		return ScreenCurrents{}, fmt.Errorf("need samples at 2 or more brightness levels, got %d", len(levels))
	}

	n := float64(len(samples))
	var sumX, sumY float64
	for _, s := range samples {
		sumX += float64(s.BrightnessPct)
		sumY += s.CurrentMa
	}
	meanX, meanY := sumX/n, sumY/n
	var sxx, sxy float64
	for _, s := range samples {
		dx := float64(s.BrightnessPct) - meanX
		sxx += dx * dx
		sxy += dx * (s.CurrentMa - meanY)
	}
	slope := sxy / sxx
	intercept := meanY - slope*meanX

	return ScreenCurrents{
		OnMa:         math.Max(0, intercept-baselineMa),
		BrightnessMa: math.Max(0, slope),
	}, nil
}

// Apply writes the fitted currents into the profile at path, keeping every
// other entry.
func Apply(path string, c ScreenCurrents) error {
	return profile.WriteEntries(path, map[string]float64{
		profile.KeyScreenOn:         c.OnMa,
		profile.KeyScreenBrightness: c.BrightnessMa,
	})
}

// MeasureCurrentOverWindow averages the current over window, polling every
// poll interval.
func MeasureCurrentOverWindow(r CurrentReader, window, poll time.Duration) (float64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("window must be positive")
	}
	if poll <= 0 {
		return 0, fmt.Errorf("poll interval must be positive")
	}

	var readings []CurrentReading
	deadline := time.Now().Add(window)
	for {
		ma, err := r.ReadCurrentMa()
		if err != nil {
			return 0, fmt.Errorf("read current: %w", err)
		}
		readings = append(readings, CurrentReading{Timestamp: time.Now(), CurrentMa: ma})
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(poll)
	}
	return AvgCurrent(readings), nil
}

// AvgCurrent computes the average current from a slice of readings.
func AvgCurrent(readings []CurrentReading) float64 {
	if len(readings) == 0 {
		return 0
	}
	var total float64
	for _, r := range readings {
		total += r.CurrentMa
	}
	return total / float64(len(readings))
}

// WaitForStable samples current at interval until the transient after a
// step change is over: the slope of the older half of the window matches
// the newer half within one standard deviation, and noise is under 2%.
func WaitForStable(r CurrentReader, interval, maxWait time.Duration, logger *slog.Logger) ([]CurrentReading, error) {
	const windowSize = 20

	var all []CurrentReading
	deadline := time.Now().Add(maxWait)

	for time.Now().Before(deadline) {
		ma, err := r.ReadCurrentMa()
		if err != nil {
			time.Sleep(interval)
			continue
		}
		all = append(all, CurrentReading{Timestamp: time.Now(), CurrentMa: ma})

		if len(all) >= windowSize {
			window := all[len(all)-windowSize:]
			if stable(window, logger) {
				logger.Debug("stabilized", "samples", len(all))
				return window, nil
			}
		}
		time.Sleep(interval)
	}
	return nil, fmt.Errorf("readings did not stabilize within %v", maxWait)
}

func stable(window []CurrentReading, logger *slog.Logger) bool {
	avg := AvgCurrent(window)
	sd := stdDev(window, avg)

	q := len(window) / 4
	q1 := AvgCurrent(window[:q])
	q2 := AvgCurrent(window[q : 2*q])
	q3 := AvgCurrent(window[2*q : 3*q])
	q4 := AvgCurrent(window[3*q:])
	slopeDiff := math.Abs((q2 - q1) - (q4 - q3))

	sigmas := 0.0
	if sd > 0 {
		sigmas = slopeDiff / sd
	}
	logger.Debug("stabilize", "avg_ma", avg, "stddev_ma", sd, "slope_diff_sigma", sigmas)
	return sigmas < 1.0 && avg > 0 && sd/avg < 0.02
}

func stdDev(readings []CurrentReading, mean float64) float64 {
	if len(readings) < 2 {
		return 0
	}
	var sumSq float64
	for _, r := range readings {
		d := r.CurrentMa - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(readings)-1))
}

// Median returns the median of the readings' current.
func Median(readings []CurrentReading) float64 {
	if len(readings) == 0 {
		return 0
	}
	vals := make([]float64, len(readings))
	for i, r := range readings {
		vals[i] = r.CurrentMa
	}
	sort.Float64s(vals)
	return vals[len(vals)/2]
}

// SetBrightness sets the backlight brightness as a percentage (0-100).
func SetBrightness(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("brightness %d%% out of range", pct)
	}
	blDir, err := findBacklightDir()
	if err != nil {
		return err
	}
	maxStr, err := readSysFile(filepath.Join(blDir, "max_brightness"))
	if err != nil {
		return fmt.Errorf("read max_brightness: %w", err)
	}
	max, err := strconv.ParseInt(maxStr, 10, 64)
	if err != nil {
		return err
	}
	target := max * int64(pct) / 100
	return os.WriteFile(filepath.Join(blDir, "brightness"), []byte(strconv.FormatInt(target, 10)), 0644)
}

// GetBrightness returns the current brightness as a percentage.
func GetBrightness() (int, error) {
	s, err := collector.CollectBacklight()
	if err != nil {
		return 0, err
	}
	return int(s.Level()), nil
}

// SetPanelPower blanks (off) or unblanks the panel through bl_power.
func SetPanelPower(on bool) error {
	blDir, err := findBacklightDir()
	if err != nil {
		return err
	}
	v := "4" // FB_BLANK_POWERDOWN
	if on {
		v = "0"
	}
	return os.WriteFile(filepath.Join(blDir, "bl_power"), []byte(v), 0644)
}

func findBacklightDir() (string, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/backlight/*"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no backlight found")
	}
	return matches[0], nil
}

func readSysFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
