package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cptspacemanspiff/gnome-battery-stats/internal/collector"
)

const schema = `
CREATE TABLE IF NOT EXISTS stats_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON stats_snapshots(timestamp);

CREATE TABLE IF NOT EXISTS stats_totals (
	snapshot_id INTEGER NOT NULL REFERENCES stats_snapshots(id) ON DELETE CASCADE,
	category TEXT NOT NULL,
	stat_type TEXT NOT NULL,
	level INTEGER NOT NULL,
	uid INTEGER NOT NULL,
	kind TEXT NOT NULL,
	value INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_totals_snapshot ON stats_totals(snapshot_id);

CREATE TABLE IF NOT EXISTS part_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	category TEXT NOT NULL,
	uid INTEGER NOT NULL,
	power_mah REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_part_ts ON part_samples(timestamp);

CREATE TABLE IF NOT EXISTS power_state_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL,
	type TEXT NOT NULL,
	suspend_secs INTEGER NOT NULL DEFAULT 0,
	hibernate_secs INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_power_state_ts ON power_state_events(start_time);
`

// Total is one persisted accumulator value. Category and Type are stored by
// name so snapshots survive enum reordering.
type Total struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	Level    int    `json:"level"`
	UID      int    `json:"uid"`
	Kind     string `json:"kind"`
	Value    int64  `json:"value"`
}

// PartSample is one consumption figure recorded at a point in time: a
// category share (UID -1) or an app total (Category "app").
type PartSample struct {
	Timestamp int64   `json:"timestamp"`
	Category  string  `json:"category"`
	UID       int     `json:"uid"`
	PowerMah  float64 `json:"power_mah"`
}

// DB wraps a SQLite database holding battery stats snapshots and history.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveSnapshot stores totals as one snapshot taken at ts and returns its id.
func (d *DB) SaveSnapshot(ts int64, totals []Total) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	res, err := tx.Exec("INSERT INTO stats_snapshots (timestamp) VALUES (?)", ts)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("snapshot id: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO stats_totals (snapshot_id, category, stat_type, level, uid, kind, value) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare totals: %w", err)
	}
	defer stmt.Close()
	for _, t := range totals {
		if _, err := stmt.Exec(id, t.Category, t.Type, t.Level, t.UID, t.Kind, t.Value); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("insert total: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns the timestamp and totals of the most recently saved
// snapshot, or ts 0 when there is none. Snapshots are append-only, so the
// row id orders them even when the wall clock was stepped back.
func (d *DB) LatestSnapshot() (int64, []Total, error) {
	var id, ts int64
	err := d.db.QueryRow("SELECT id, timestamp FROM stats_snapshots ORDER BY id DESC LIMIT 1").Scan(&id, &ts)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("latest snapshot: %w", err)
	}

	rows, err := d.db.Query("SELECT category, stat_type, level, uid, kind, value FROM stats_totals WHERE snapshot_id = ?", id)
	if err != nil {
		return 0, nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()
	var totals []Total
	for rows.Next() {
		var t Total
		if err := rows.Scan(&t.Category, &t.Type, &t.Level, &t.UID, &t.Kind, &t.Value); err != nil {
			return 0, nil, fmt.Errorf("scan total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}
	return ts, totals, nil
}

// SnapshotCount returns the number of stored snapshots.
func (d *DB) SnapshotCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM stats_snapshots").Scan(&n)
	return n, err
}

// InsertPartSamples batch-inserts consumption samples in a single transaction.
func (d *DB) InsertPartSamples(samples []PartSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO part_samples (timestamp, category, uid, power_mah) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, s := range samples {
		if _, err := stmt.Exec(s.Timestamp, s.Category, s.UID, s.PowerMah); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// PartSamplesInRange returns consumption samples within the given time range.
func (d *DB) PartSamplesInRange(from, to int64) ([]PartSample, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, category, uid, power_mah FROM part_samples WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var samples []PartSample
	for rows.Next() {
		var s PartSample
		if err := rows.Scan(&s.Timestamp, &s.Category, &s.UID, &s.PowerMah); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// InsertPowerStateEvent inserts a power state event, deduplicating by
// start_time. It reports whether the event was new.
func (d *DB) InsertPowerStateEvent(e collector.PowerStateEvent) (bool, error) {
	res, err := d.db.Exec(
		"INSERT INTO power_state_events (start_time, end_time, type, suspend_secs, hibernate_secs) SELECT ?, ?, ?, ?, ? WHERE NOT EXISTS (SELECT 1 FROM power_state_events WHERE start_time = ?)",
		e.StartTime, e.EndTime, e.Type, e.SuspendSecs, e.HibernateSecs, e.StartTime,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PowerStateEventsInRange returns power state events within the given time range.
func (d *DB) PowerStateEventsInRange(from, to int64) ([]collector.PowerStateEvent, error) {
	rows, err := d.db.Query(
		"SELECT start_time, end_time, type, suspend_secs, hibernate_secs FROM power_state_events WHERE start_time >= ? AND start_time <= ? ORDER BY start_time",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []collector.PowerStateEvent
	for rows.Next() {
		var e collector.PowerStateEvent
		if err := rows.Scan(&e.StartTime, &e.EndTime, &e.Type, &e.SuspendSecs, &e.HibernateSecs); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
