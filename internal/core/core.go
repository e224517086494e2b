// Package core is the aggregation root: it owns one aggregator per
// consumption category, routes updates to them and answers roll-up queries.
//
// Nothing here returns an error to callers. Lookups that find nothing read
// as zero, and persistence reports success as a bool and logs the cause.
package core

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/accounting"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/entity"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/profile"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
)

// StatsInfo is one line of the consumption breakdown: an app (Category ==
// stats.CategoryApp, UID set) or a device category (UID == stats.InvalidUID).
type StatsInfo struct {
	Category stats.Category
	UID      int32
	PowerMah float64
}

// Core is safe for concurrent use.
type Core struct {
	gate     *accounting.Gate
	profiles *profile.Holder
	store    Store
	logger   *slog.Logger
	now      func() time.Time

	// aggs is fixed at construction and only read afterwards.
	aggs  map[stats.Category]*entity.Aggregator
	order []stats.Category

	saves singleflight.Group

	debugMu sync.Mutex
	debug   strings.Builder
}

// New builds a Core with one aggregator per category. A nil gate or profile
// holder gets a fresh one; a nil store disables persistence; a nil logger
// uses slog.Default().
func New(gate *accounting.Gate, profiles *profile.Holder, store Store, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	if gate == nil {
		gate = accounting.NewGate()
	}
	if profiles == nil {
		profiles = profile.NewHolder(logger)
	}
	c := &Core{
		gate:     gate,
		profiles: profiles,
		store:    store,
		logger:   logger,
		now:      time.Now,
		aggs:     make(map[stats.Category]*entity.Aggregator),
	}
	for _, cat := range stats.Categories() {
		if entity.RulesFor(cat) == nil {
			continue
		}
		c.aggs[cat] = entity.New(cat, gate)
		c.order = append(c.order, cat)
	}
	return c
}

func (c *Core) Gate() *accounting.Gate     { return c.gate }
func (c *Core) Profiles() *profile.Holder { return c.profiles }

// Aggregator returns the aggregator owning category cat, or nil.
func (c *Core) Aggregator(cat stats.Category) *entity.Aggregator {
	return c.aggs[cat]
}

func (c *Core) SetOnBattery(on bool) { c.gate.SetOnBattery(on) }
func (c *Core) SetScreenOff(off bool) { c.gate.SetScreenOff(off) }

func (c *Core) owner(t stats.Type) *entity.Aggregator {
	return c.aggs[entity.Owner(t)]
}

// UpdateStats routes a state transition. Types without an aggregator are
// ignored.
func (c *Core) UpdateStats(t stats.Type, state stats.State, level int16, uid int32) {
	if a := c.owner(t); a != nil {
		a.UpdateStats(t, state, level, uid)
	}
}

// UpdateStatsTime routes a measured time and data update.
func (c *Core) UpdateStatsTime(t stats.Type, timeMs, data int64, uid int32) {
	if a := c.owner(t); a != nil {
		a.UpdateStatsTime(t, timeMs, data, uid)
	}
}

// ComputePower recalculates every category against the current profile.
// All categories see the same profile snapshot; each category is internally
// consistent but categories are not frozen relative to each other.
func (c *Core) ComputePower() {
	p := c.profiles.Get()
	var g errgroup.Group
	for _, a := range c.aggs {
		g.Go(func() error {
			a.Calculate(p, stats.InvalidUID)
			return nil
		})
	}
	_ = g.Wait()
}

// GetAppStatsMah sums the consumption attributed to uid across the per-app
// categories.
func (c *Core) GetAppStatsMah(uid int32) float64 {
	if uid < 0 {
		return 0
	}
	var sum float64
	for _, a := range c.aggs {
		if a.SystemLevel() {
			continue
		}
		sum += a.GetEntityPowerMah(uid)
	}
	return sum
}

// GetAppStatsPercent is the share of uid in the total, in [0, 1].
func (c *Core) GetAppStatsPercent(uid int32) float64 {
	return stats.Ratio(c.GetAppStatsMah(uid), c.GetTotalPowerMah())
}

// GetPartStatsMah returns the consumption of one category. CategoryApp is
// the sum attributed to apps.
func (c *Core) GetPartStatsMah(cat stats.Category) float64 {
	if cat == stats.CategoryApp {
		var sum float64
		for _, uid := range c.UIDs() {
			sum += c.GetAppStatsMah(uid)
		}
		return sum
	}
	if a := c.aggs[cat]; a != nil {
		return a.GetEntityPowerMah(stats.InvalidUID)
	}
	return 0
}

// GetPartStatsPercent is the share of cat in the total, in [0, 1].
func (c *Core) GetPartStatsPercent(cat stats.Category) float64 {
	return stats.Ratio(c.GetPartStatsMah(cat), c.GetTotalPowerMah())
}

// GetTotalPowerMah is the consumption of every category.
func (c *Core) GetTotalPowerMah() float64 {
	var sum float64
	for _, a := range c.aggs {
		sum += a.GetEntityPowerMah(stats.InvalidUID)
	}
	return sum
}

// GetStatsPowerMah returns the consumption of one type, scoped to uid.
func (c *Core) GetStatsPowerMah(t stats.Type, uid int32) float64 {
	if a := c.owner(t); a != nil {
		return a.GetStatsPowerMah(t, uid)
	}
	return 0
}

func (c *Core) GetTotalTimeMs(t stats.Type, uid int32) int64 {
	return c.GetActiveTimeMs(t, stats.InvalidLevel, uid)
}

// GetActiveTimeMs returns the time of t at level, or all levels when level
// is stats.InvalidLevel.
func (c *Core) GetActiveTimeMs(t stats.Type, level int16, uid int32) int64 {
	if a := c.owner(t); a != nil {
		return a.GetActiveTimeMs(uid, t, level)
	}
	return 0
}

// GetTotalTimeSecond is GetTotalTimeMs rounded half up to whole seconds.
func (c *Core) GetTotalTimeSecond(t stats.Type, uid int32) int64 {
	return stats.RoundSeconds(c.GetTotalTimeMs(t, uid))
}

// GetTotalDataCount returns the number of discrete events counted for t.
func (c *Core) GetTotalDataCount(t stats.Type, uid int32) int64 {
	if a := c.owner(t); a != nil {
		return a.GetTotalConsumptionCount(t, uid)
	}
	return 0
}

// GetTotalDataBytes returns the data volume recorded for t.
func (c *Core) GetTotalDataBytes(t stats.Type, uid int32) int64 {
	if a := c.owner(t); a != nil {
		return a.GetTotalDataCount(t, uid)
	}
	return 0
}

// UIDs returns every app uid with computed consumption, ascending.
func (c *Core) UIDs() []int32 {
	seen := make(map[int32]struct{})
	for _, a := range c.aggs {
		if a.SystemLevel() {
			continue
		}
		for _, uid := range a.UIDs() {
			seen[uid] = struct{}{}
		}
	}
	out := make([]int32, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetBatteryStats returns the consumption breakdown: one entry per app and
// one per category for its device-attributed share, largest first. Entries
// with no consumption are omitted, so the entries sum to GetTotalPowerMah.
func (c *Core) GetBatteryStats() []StatsInfo {
	var out []StatsInfo
	for _, uid := range c.UIDs() {
		if mah := c.GetAppStatsMah(uid); mah > 0 {
			out = append(out, StatsInfo{Category: stats.CategoryApp, UID: uid, PowerMah: mah})
		}
	}
	for _, cat := range c.order {
		if mah := c.aggs[cat].GetSystemPowerMah(); mah > 0 {
			out = append(out, StatsInfo{Category: cat, UID: stats.InvalidUID, PowerMah: mah})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PowerMah > out[j].PowerMah })
	return out
}

// Reset zeroes every category and clears the debug buffer.
func (c *Core) Reset() {
	for _, a := range c.aggs {
		a.Reset()
	}
	c.debugMu.Lock()
	c.debug.Reset()
	c.debugMu.Unlock()
}

// UpdateDebugInfo appends text to the debug buffer.
func (c *Core) UpdateDebugInfo(text string) {
	c.debugMu.Lock()
	defer c.debugMu.Unlock()
	c.debug.WriteString(text)
}

func (c *Core) GetDebugInfo() string {
	c.debugMu.Lock()
	defer c.debugMu.Unlock()
	return c.debug.String()
}
