package core

import (
	"math"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/entity"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/stats"
	"github.com/cptspacemanspiff/gnome-battery-stats/internal/storage"
)

// Store persists snapshots of the accumulated totals.
type Store interface {
	// SaveSnapshot stores totals as one snapshot taken at ts (unix seconds).
	SaveSnapshot(ts int64, totals []storage.Total) (int64, error)
	// LatestSnapshot returns the newest snapshot. A store without
	// snapshots returns ts 0 and no error.
	LatestSnapshot() (int64, []storage.Total, error)
}

// SaveBatteryStatsData writes the current totals to the store. Concurrent
// callers share one write.
func (c *Core) SaveBatteryStatsData() bool {
	if c.store == nil {
		c.logger.Warn("save battery stats: no store configured", "topic", "persist")
		return false
	}
	v, err, shared := c.saves.Do("save", func() (any, error) {
		totals := c.snapshotTotals()
		return c.store.SaveSnapshot(c.now().Unix(), totals)
	})
	if err != nil {
		c.logger.Error("save battery stats", "err", err, "topic", "persist")
		return false
	}
	c.logger.Debug("battery stats saved", "snapshot", v, "shared", shared, "topic", "persist")
	return true
}

// LoadBatteryStatsData replaces the in-memory totals with the latest
// snapshot. On any failure, or when there is nothing to load, every
// category is left at zero and false is returned.
func (c *Core) LoadBatteryStatsData() bool {
	if c.store == nil {
		c.logger.Warn("load battery stats: no store configured", "topic", "persist")
		return false
	}
	ts, totals, err := c.store.LatestSnapshot()
	for _, a := range c.aggs {
		a.Reset()
	}
	if err != nil {
		c.logger.Error("load battery stats", "err", err, "topic", "persist")
		return false
	}
	if ts == 0 {
		c.logger.Info("no saved battery stats", "topic", "persist")
		return false
	}

	byCategory := make(map[stats.Category][]entity.Total)
	skipped := 0
	for _, row := range totals {
		cat, tot, ok := fromRecord(row)
		if !ok || c.aggs[cat] == nil {
			skipped++
			continue
		}
		byCategory[cat] = append(byCategory[cat], tot)
	}
	for cat, tots := range byCategory {
		c.aggs[cat].Restore(tots)
	}
	c.logger.Info("battery stats loaded", "snapshot_time", ts, "totals", len(totals)-skipped, "skipped", skipped, "topic", "persist")
	return true
}

func (c *Core) snapshotTotals() []storage.Total {
	var out []storage.Total
	for _, cat := range c.order {
		for _, tot := range c.aggs[cat].Totals() {
			out = append(out, storage.Total{
				Category: cat.String(),
				Type:     tot.Key.Type.String(),
				Level:    int(tot.Key.Level),
				UID:      int(tot.Key.UID),
				Kind:     string(tot.Kind),
				Value:    tot.Value,
			})
		}
	}
	return out
}

func fromRecord(r storage.Total) (stats.Category, entity.Total, bool) {
	cat, err := stats.ParseCategory(r.Category)
	if err != nil {
		return stats.CategoryInvalid, entity.Total{}, false
	}
	t, err := stats.ParseType(r.Type)
	if err != nil {
		return stats.CategoryInvalid, entity.Total{}, false
	}
	if r.Level > math.MaxInt16 || r.Level < math.MinInt16 || r.UID > math.MaxInt32 || r.UID < math.MinInt32 {
		return stats.CategoryInvalid, entity.Total{}, false
	}
	switch entity.TotalKind(r.Kind) {
	case entity.TotalTime, entity.TotalCount, entity.TotalData:
	default:
		return stats.CategoryInvalid, entity.Total{}, false
	}
	return cat, entity.Total{
		Key:   stats.NewKey(t, int16(r.Level), int32(r.UID)),
		Kind:  entity.TotalKind(r.Kind),
		Value: r.Value,
	}, true
}
