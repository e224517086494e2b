package stats

import "math"

const (
	MsPerSecond = 1000
	MsPerHour   = 3600 * MsPerSecond
)

// MilliampHours converts an active duration at a constant current into mAh.
// Non-positive durations or non-finite currents yield 0.
func MilliampHours(activeMs int64, currentMa float64) float64 {
	if activeMs <= 0 || currentMa <= 0 || math.IsNaN(currentMa) || math.IsInf(currentMa, 0) {
		return 0
	}
	return float64(activeMs) * currentMa / MsPerHour
}

// RoundSeconds converts milliseconds to whole seconds, rounding half up.
func RoundSeconds(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return (ms + MsPerSecond/2) / MsPerSecond
}

// Ratio returns part/total clamped to [0, 1]; a zero or negative total yields 0.
func Ratio(part, total float64) float64 {
	if total <= 0 || part <= 0 || math.IsNaN(part) || math.IsNaN(total) {
		return 0
	}
	r := part / total
	if r > 1 {
		return 1
	}
	return r
}

// MaxSpeedCluster is the highest cluster index SpeedLevel can encode.
const MaxSpeedCluster = 127

// SpeedLevel packs a cpu cluster and speed step into one level value.
// Clusters above MaxSpeedCluster yield InvalidLevel.
func SpeedLevel(cluster, speed uint8) int16 {
	if cluster > MaxSpeedCluster {
		return InvalidLevel
	}
	return int16(cluster)<<8 | int16(speed)
}

// SplitSpeedLevel reverses SpeedLevel.
func SplitSpeedLevel(level int16) (cluster, speed uint16) {
	if level < 0 {
		return 0, 0
	}
	return uint16(level) >> 8, uint16(level) & 0xff
}
