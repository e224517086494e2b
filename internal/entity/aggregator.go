// Package entity implements the per-category consumption aggregator. Every
// category (wifi, screen, cpu, ...) is the same Aggregator driven by a
// different Rules table.
package entity

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/accounting"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/profile"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
)

// TotalKind names the accumulator a persisted total belongs to.
type TotalKind string

const (
	TotalTime  TotalKind = "time"
	TotalCount TotalKind = "count"
	TotalData  TotalKind = "data"
)

// Total is one accumulated value, as saved and restored.
type Total struct {
	Key   stats.Key
	Kind  TotalKind
	Value int64
}

type pendingKey struct {
	typ stats.Type
	uid int32
}

// Aggregator owns the timers and counters of one category. Accumulators are
// created on first use and never removed; Reset zeroes them in place.
type Aggregator struct {
	category stats.Category
	rules    Rules
	gate     *accounting.Gate
	system   bool

	mu      sync.Mutex
	timers  map[stats.Key]*accounting.ActiveTimer
	events  map[stats.Key]*accounting.Counter
	data    map[stats.Key]*accounting.Counter
	power   map[stats.Key]float64
	pending map[pendingKey]int16
}

// New returns an aggregator for category c using its registered rules.
func New(c stats.Category, gate *accounting.Gate) *Aggregator {
	return NewWithRules(c, RulesFor(c), gate)
}

// NewWithRules returns an aggregator driven by rules.
func NewWithRules(c stats.Category, rules Rules, gate *accounting.Gate) *Aggregator {
	system := len(rules) > 0
	for _, r := range rules {
		if !r.System {
			system = false
		}
	}
	return &Aggregator{
		category: c,
		rules:    rules,
		gate:     gate,
		system:   system,
		timers:   make(map[stats.Key]*accounting.ActiveTimer),
		events:   make(map[stats.Key]*accounting.Counter),
		data:     make(map[stats.Key]*accounting.Counter),
		power:    make(map[stats.Key]float64),
		pending:  make(map[pendingKey]int16),
	}
}

func (a *Aggregator) Category() stats.Category { return a.category }

// SystemLevel reports whether every owned type is attributed to the device
// rather than to an app. Uid scoping is ignored for such aggregators.
func (a *Aggregator) SystemLevel() bool { return a.system }

// Owns reports whether t is accounted here.
func (a *Aggregator) Owns(t stats.Type) bool {
	_, ok := a.rules[t]
	return ok
}

// key normalizes a write key: system types drop the uid, scalar types drop
// the level.
func (a *Aggregator) key(r Rule, t stats.Type, level int16, uid int32) stats.Key {
	if r.System {
		uid = stats.InvalidUID
	}
	if r.Lookup == LookupScalar {
		level = stats.InvalidLevel
	}
	return stats.NewKey(t, level, uid)
}

// UpdateStats applies a state transition. Timer types start or stop the
// timer for (t, level, uid); counter types count one event on activation.
// Unknown types and invalid states are ignored.
func (a *Aggregator) UpdateStats(t stats.Type, state stats.State, level int16, uid int32) {
	r, ok := a.rules[t]
	if !ok || !state.Valid() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	k := a.key(r, t, level, uid)
	if r.Kind == KindCounter {
		if state == stats.StateActivated {
			a.eventLocked(k).AddCount(1)
		}
		return
	}

	if state == stats.StateActivated {
		a.activateLocked(r, k)
		a.resumeChildrenLocked(t, k.UID)
		return
	}
	a.deactivateLocked(r, k)
	a.stopChildrenLocked(t, k.UID)
}

// UpdateStatsTime records a measured activity. Timer types are credited
// timeMs of active time and data bytes; counter types count data events,
// or one event when data is not positive.
func (a *Aggregator) UpdateStatsTime(t stats.Type, timeMs, data int64, uid int32) {
	r, ok := a.rules[t]
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	k := a.key(r, t, stats.InvalidLevel, uid)
	if r.Kind == KindCounter {
		if data <= 0 {
			data = 1
		}
		a.eventLocked(k).AddCount(data)
		return
	}
	a.timerLocked(k).AddRunningTimeMs(timeMs)
	if data > 0 {
		a.dataLocked(k).AddCount(data)
	}
}

func (a *Aggregator) activateLocked(r Rule, k stats.Key) {
	if r.Parent.Valid() {
		a.pending[pendingKey{k.Type, k.UID}] = k.Level
		parent := a.timers[stats.NewKey(r.Parent, stats.InvalidLevel, k.UID)]
		if parent == nil || !parent.IsRunning() {
			return
		}
	}
	if r.Lookup != LookupScalar && k.Level < 0 {
		// a leveled type without a level has no current to charge
		return
	}
	for other, tm := range a.timers {
		if other.Type == k.Type && other.UID == k.UID && r.excludes(k.Level, other.Level) {
			tm.StopRunning()
		}
	}
	a.timerLocked(k).StartRunning()
}

func (a *Aggregator) deactivateLocked(r Rule, k stats.Key) {
	if r.Parent.Valid() {
		delete(a.pending, pendingKey{k.Type, k.UID})
	}
	if k.Level == stats.InvalidLevel {
		a.stopAllLocked(k.Type, k.UID)
		return
	}
	for other, tm := range a.timers {
		if other.Type == k.Type && other.UID == k.UID && (other.Level == k.Level || r.excludes(k.Level, other.Level)) {
			tm.StopRunning()
		}
	}
}

func (a *Aggregator) stopAllLocked(t stats.Type, uid int32) {
	for k, tm := range a.timers {
		if k.Type == t && k.UID == uid {
			tm.StopRunning()
		}
	}
}

func (a *Aggregator) resumeChildrenLocked(parent stats.Type, uid int32) {
	for t, r := range a.rules {
		if r.Parent != parent {
			continue
		}
		level, ok := a.pending[pendingKey{t, uid}]
		if !ok {
			continue
		}
		a.activateLocked(r, stats.NewKey(t, level, uid))
	}
}

func (a *Aggregator) stopChildrenLocked(parent stats.Type, uid int32) {
	for t, r := range a.rules {
		if r.Parent == parent {
			a.stopAllLocked(t, uid)
		}
	}
}

func (a *Aggregator) timerLocked(k stats.Key) *accounting.ActiveTimer {
	tm, ok := a.timers[k]
	if !ok {
		tm = accounting.NewActiveTimer(a.gate)
		a.timers[k] = tm
	}
	return tm
}

func (a *Aggregator) eventLocked(k stats.Key) *accounting.Counter {
	c, ok := a.events[k]
	if !ok {
		c = accounting.NewCounter(a.gate)
		a.events[k] = c
	}
	return c
}

func (a *Aggregator) dataLocked(k stats.Key) *accounting.Counter {
	c, ok := a.data[k]
	if !ok {
		c = accounting.NewCounter(a.gate)
		a.data[k] = c
	}
	return c
}

// match reports whether k is selected by a query. TypeInvalid matches every
// type, InvalidLevel every level and InvalidUID every uid. A uid never
// scopes a system type asked for by name, and never selects system entries
// when summing a whole mixed category for one app.
func (a *Aggregator) match(k stats.Key, t stats.Type, level int16, uid int32) bool {
	if t != stats.TypeInvalid && k.Type != t {
		return false
	}
	if level >= 0 && k.Level != level {
		return false
	}
	if uid < 0 || a.system {
		return true
	}
	if a.rules[k.Type].System {
		return t != stats.TypeInvalid
	}
	return k.UID == uid
}

// Calculate converts the accumulated time and counts into mAh using p. With
// a valid uid only that uid's entries are recomputed. The result replaces
// the previous figures, so repeated calls do not accumulate.
func (a *Aggregator) Calculate(p *profile.Profile, uid int32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := make(map[stats.Key]float64, len(a.power))
	if uid >= 0 {
		for k, v := range a.power {
			if k.UID != uid {
				next[k] = v
			}
		}
	}
	for k, tm := range a.timers {
		if uid >= 0 && k.UID != uid {
			continue
		}
		if mah := stats.MilliampHours(tm.GetRunningTimeMs(), a.currentMa(p, k)); mah > 0 {
			next[k] = mah
		}
	}
	for k, c := range a.events {
		if uid >= 0 && k.UID != uid {
			continue
		}
		if mah := float64(c.GetCount()) * a.currentMa(p, k); mah > 0 {
			next[k] = mah
		}
	}
	a.power = next
}

func (a *Aggregator) currentMa(p *profile.Profile, k stats.Key) float64 {
	r := a.rules[k.Type]
	switch r.Lookup {
	case LookupLevel:
		if k.Level < 0 {
			return 0
		}
		return p.GetAveragePowerMa(r.Current, int(k.Level))
	case LookupLevelScaled:
		if k.Level <= 0 {
			return 0
		}
		return p.GetAveragePowerMa(r.Current, 0) * float64(k.Level)
	case LookupClusterSpeed:
		if k.Level < 0 {
			return 0
		}
		cluster, speed := stats.SplitSpeedLevel(k.Level)
		return p.GetSpeedPowerMa(cluster, speed)
	default:
		return p.GetAveragePowerMa(r.Current, 0)
	}
}

// GetEntityPowerMah returns the category consumption, scoped to uid when it
// is valid and the category is attributed per app.
func (a *Aggregator) GetEntityPowerMah(uid int32) float64 {
	return a.GetStatsPowerMah(stats.TypeInvalid, uid)
}

// GetStatsPowerMah returns the consumption of t for uid as of the last
// Calculate, or 0 when nothing was computed.
func (a *Aggregator) GetStatsPowerMah(t stats.Type, uid int32) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sum float64
	for k, v := range a.power {
		if a.match(k, t, stats.InvalidLevel, uid) {
			sum += v
		}
	}
	return sum
}

// GetSystemPowerMah returns the consumption not attributed to any app.
func (a *Aggregator) GetSystemPowerMah() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sum float64
	for k, v := range a.power {
		if k.UID < 0 {
			sum += v
		}
	}
	return sum
}

// GetActiveTimeMs returns the accumulated time of t, including running
// intervals.
func (a *Aggregator) GetActiveTimeMs(uid int32, t stats.Type, level int16) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sum int64
	for k, tm := range a.timers {
		if a.match(k, t, level, uid) {
			sum += tm.GetRunningTimeMs()
		}
	}
	return sum
}

// GetTotalConsumptionCount returns the number of events counted for t.
func (a *Aggregator) GetTotalConsumptionCount(t stats.Type, uid int32) int64 {
	return a.sumCounters(a.events, t, uid)
}

// GetTotalDataCount returns the data volume recorded for t.
func (a *Aggregator) GetTotalDataCount(t stats.Type, uid int32) int64 {
	return a.sumCounters(a.data, t, uid)
}

func (a *Aggregator) sumCounters(m map[stats.Key]*accounting.Counter, t stats.Type, uid int32) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sum int64
	for k, c := range m {
		if a.match(k, t, stats.InvalidLevel, uid) {
			sum += c.GetCount()
		}
	}
	return sum
}

// UIDs returns the app uids with computed consumption, ascending.
func (a *Aggregator) UIDs() []int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := make(map[int32]struct{})
	for k, v := range a.power {
		if k.UID >= 0 && v > 0 {
			seen[k.UID] = struct{}{}
		}
	}
	out := make([]int32, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset zeroes every timer, counter and computed figure. Running timers keep
// running from now.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, tm := range a.timers {
		tm.Reset()
	}
	for _, c := range a.events {
		c.Reset()
	}
	for _, c := range a.data {
		c.Reset()
	}
	a.power = make(map[stats.Key]float64)
}

// Totals returns every non-zero accumulated value.
func (a *Aggregator) Totals() []Total {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Total
	for k, tm := range a.timers {
		if v := tm.GetRunningTimeMs(); v > 0 {
			out = append(out, Total{Key: k, Kind: TotalTime, Value: v})
		}
	}
	for k, c := range a.events {
		if v := c.GetCount(); v > 0 {
			out = append(out, Total{Key: k, Kind: TotalCount, Value: v})
		}
	}
	for k, c := range a.data {
		if v := c.GetCount(); v > 0 {
			out = append(out, Total{Key: k, Kind: TotalData, Value: v})
		}
	}
	sortTotals(out)
	return out
}

// Restore sets each total's accumulator to its value. Totals for types this
// aggregator does not own are skipped.
func (a *Aggregator) Restore(totals []Total) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, tot := range totals {
		r, ok := a.rules[tot.Key.Type]
		if !ok {
			continue
		}
		k := stats.NewKey(tot.Key.Type, tot.Key.Level, tot.Key.UID)
		switch {
		case tot.Kind == TotalTime && r.Kind == KindTimer:
			a.timerLocked(k).Restore(tot.Value)
		case tot.Kind == TotalCount && r.Kind == KindCounter:
			a.eventLocked(k).Restore(tot.Value)
		case tot.Kind == TotalData:
			a.dataLocked(k).Restore(tot.Value)
		}
	}
}

// DumpInfo writes the non-zero accumulators and computed figures.
func (a *Aggregator) DumpInfo(w io.Writer) {
	totals := a.Totals()
	a.mu.Lock()
	power := make(map[stats.Key]float64, len(a.power))
	for k, v := range a.power {
		power[k] = v
	}
	a.mu.Unlock()

	fmt.Fprintf(w, "%s:\n", a.category)
	for _, tot := range totals {
		fmt.Fprintf(w, "  %s %s=%d", tot.Key, tot.Kind, tot.Value)
		if mah, ok := power[tot.Key]; ok && tot.Kind != TotalData {
			fmt.Fprintf(w, " power=%.6fmAh", mah)
		}
		fmt.Fprintln(w)
	}
}

func sortTotals(ts []Total) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.Key.Type != b.Key.Type {
			return a.Key.Type < b.Key.Type
		}
		if a.Key.UID != b.Key.UID {
			return a.Key.UID < b.Key.UID
		}
		if a.Key.Level != b.Key.Level {
			return a.Key.Level < b.Key.Level
		}
		return a.Kind < b.Kind
	})
}
