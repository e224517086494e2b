package storage

import "fmt"

// DeleteOlderThan deletes history rows and snapshots older than the given
// unix epoch. The most recently saved snapshot is always kept so the totals can still be
// reloaded. Returns the total number of deleted rows.
func (d *DB) DeleteOlderThan(before int64) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	var total int64
	steps := []struct {
		name  string
		query string
	}{
		{"stats_totals", `DELETE FROM stats_totals WHERE snapshot_id IN (
			SELECT id FROM stats_snapshots WHERE timestamp < ?
			AND id <> (SELECT id FROM stats_snapshots ORDER BY id DESC LIMIT 1))`},
		{"stats_snapshots", `DELETE FROM stats_snapshots WHERE timestamp < ?
			AND id <> (SELECT id FROM stats_snapshots ORDER BY id DESC LIMIT 1)`},
		{"part_samples", "DELETE FROM part_samples WHERE timestamp < ?"},
		{"power_state_events", "DELETE FROM power_state_events WHERE start_time < ?"},
	}

	for _, s := range steps {
		res, err := tx.Exec(s.query, before)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("delete from %s: %w", s.name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}
