package collector

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
)

// userHZ is the clock tick rate /proc reports in (USER_HZ), 100 on x86 and
// arm.
const userHZ = 100

// ProcessCollector tracks per-uid CPU time across sampling intervals. It is
// safe for concurrent use; overlapping Collect calls are serialized.
type ProcessCollector struct {
	mu        sync.Mutex
	prevTicks map[int]int64 // pid -> previous utime+stime
	uids      map[int]int32 // pid -> real uid (read once per pid lifetime)
	minUID    int32
}

// NewProcessCollector returns a collector that attributes CPU time to uids
// at or above minUID; lower uids (system accounts) are folded out.
func NewProcessCollector(minUID int32) *ProcessCollector {
	if minUID < 0 {
		minUID = 0
	}
	return &ProcessCollector{
		prevTicks: make(map[int]int64),
		uids:      make(map[int]int32),
		minUID:    minUID,
	}
}

// Collect reads /proc/*/stat, computes tick deltas from the previous call
// and sums them per uid, busiest first. The first call only primes the
// baseline.
func (pc *ProcessCollector) Collect() ([]UIDSample, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", procRoot, err)
	}

	current := make(map[int]int64, len(entries))
	perUID := make(map[int32]int64)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		ticks, err := readProcTicks(pid)
		if err != nil {
			continue
		}
		current[pid] = ticks

		prev, ok := pc.prevTicks[pid]
		if !ok {
			continue // first observation, no delta
		}
		delta := ticks - prev
		if delta <= 0 {
			continue
		}
		uid, ok := pc.uids[pid]
		if !ok {
			uid, err = readProcUID(pid)
			if err != nil {
				continue
			}
			pc.uids[pid] = uid
		}
		if uid < pc.minUID {
			continue
		}
		perUID[uid] += delta
	}

	pc.prevTicks = current
	for pid := range pc.uids {
		if _, alive := current[pid]; !alive {
			delete(pc.uids, pid)
		}
	}

	samples := make([]UIDSample, 0, len(perUID))
	for uid, ticks := range perUID {
		samples = append(samples, UIDSample{UID: uid, Ticks: ticks, TimeMs: ticks * 1000 / userHZ})
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Ticks != samples[j].Ticks {
			return samples[i].Ticks > samples[j].Ticks
		}
		return samples[i].UID < samples[j].UID
	})
	return samples, nil
}

// readProcTicks returns utime+stime from /proc/[pid]/stat.
func readProcTicks(pid int) (int64, error) {
	data, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, err
	}

	// comm is in parens and may contain spaces/parens, so find last ')'
	end := bytes.LastIndexByte(data, ')')
	if end < 0 || end >= len(data)-1 {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}

	// Fields after ')' start at state; utime and stime are the 12th and
	// 13th of them.
	fields := strings.Fields(string(data[end+2:]))
	if len(fields) < 13 {
		return 0, fmt.Errorf("too few fields for pid %d", pid)
	}
	utime, _ := strconv.ParseInt(fields[11], 10, 64)
	stime, _ := strconv.ParseInt(fields[12], 10, 64)
	return utime + stime, nil
}

// readProcUID returns the real uid from /proc/[pid]/status.
func readProcUID(pid int) (int32, error) {
	f, err := os.Open(filepath.Join(procRoot, strconv.Itoa(pid), "status"))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		rest, ok := strings.CutPrefix(sc.Text(), "Uid:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			break
		}
		uid, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("parse uid for pid %d: %w", pid, err)
		}
		return int32(uid), nil
	}
	return 0, fmt.Errorf("no Uid line for pid %d", pid)
}

// CreditCPU records each sample as cpu-active time of its uid.
func CreditCPU(sink Sink, samples []UIDSample) {
	for _, s := range samples {
		sink.UpdateStatsTime(stats.TypeCPUActive, s.TimeMs, 0, s.UID)
	}
}
