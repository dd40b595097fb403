// Package persistence provides SQLite-based storage for regions and their
// phased plans.
package persistence

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/outpost/internal/codec"
	"github.com/talgya/outpost/internal/phase"
	"github.com/talgya/outpost/internal/region"
)

// ErrNotFound is returned when a region or plan is not stored.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for plan persistence.
type DB struct {
	conn *sqlx.DB
}

// PlanRecord is one stored plan: the token stream plus where it came from.
type PlanRecord struct {
	RegionID  string `db:"region_id"`
	RunID     string `db:"run_id"`
	PlannedAt int64  `db:"planned_at"` // unix seconds
	Levels    int    `db:"levels"`
	AnchorX   int    `db:"anchor_x"`
	AnchorY   int    `db:"anchor_y"`
	Stream    string `db:"stream"`
}

// RunRecord logs the outcome of one planning run.
type RunRecord struct {
	RunID      string `db:"run_id" json:"run_id"`
	RegionID   string `db:"region_id" json:"region"`
	At         int64  `db:"at" json:"at"`
	DurationMS int64  `db:"duration_ms" json:"duration_ms"`
	Outcome    string `db:"outcome" json:"outcome"`
	Detail     string `db:"detail" json:"detail,omitempty"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; concurrent planners queue here instead of
	// failing with a busy database.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS regions (
		id TEXT PRIMARY KEY,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		input_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS plans (
		region_id TEXT PRIMARY KEY REFERENCES regions(id),
		run_id TEXT NOT NULL,
		planned_at INTEGER NOT NULL,
		levels INTEGER NOT NULL,
		anchor_x INTEGER NOT NULL,
		anchor_y INTEGER NOT NULL,
		stream TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		region_id TEXT NOT NULL,
		at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS planner_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_region ON runs(region_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveRegion stores the input document of r, replacing any earlier copy.
func (db *DB) SaveRegion(r *region.Region) error {
	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		return fmt.Errorf("encode region %s: %w", r.ID, err)
	}
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO regions (id, width, height, input_json) VALUES (?, ?, ?, ?)",
		r.ID, r.Terrain.W, r.Terrain.H, buf.String(),
	)
	return err
}

// LoadRegion decodes a stored region.
func (db *DB) LoadRegion(id string) (*region.Region, error) {
	var raw string
	err := db.conn.Get(&raw, "SELECT input_json FROM regions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("region %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return region.DecodeBytes([]byte(raw))
}

// RegionIDs lists every stored region.
func (db *DB) RegionIDs() ([]string, error) {
	var ids []string
	err := db.conn.Select(&ids, "SELECT id FROM regions ORDER BY id")
	return ids, err
}

// SavePlan replaces the plan of a region.
func (db *DB) SavePlan(rec PlanRecord) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM plans WHERE region_id = ?", rec.RegionID); err != nil {
		return err
	}
	_, err = tx.NamedExec(`INSERT INTO plans
		(region_id, run_id, planned_at, levels, anchor_x, anchor_y, stream)
		VALUES (:region_id, :run_id, :planned_at, :levels, :anchor_x, :anchor_y, :stream)`, rec)
	if err != nil {
		return fmt.Errorf("insert plan %s: %w", rec.RegionID, err)
	}

	return tx.Commit()
}

// PlanRecord returns the stored plan row of a region.
func (db *DB) PlanRecord(regionID string) (PlanRecord, error) {
	var rec PlanRecord
	err := db.conn.Get(&rec, "SELECT * FROM plans WHERE region_id = ?", regionID)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("plan %s: %w", regionID, ErrNotFound)
	}
	return rec, err
}

// LoadPlan decodes a region's plan up to and including level; a negative
// level decodes all of them.
func (db *DB) LoadPlan(regionID string, level int) (*phase.Leveled, error) {
	rec, err := db.PlanRecord(regionID)
	if err != nil {
		return nil, err
	}
	l, err := codec.Decode(rec.Stream, level)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", regionID, err)
	}
	return l, nil
}

// Plans lists the stored plan rows without their streams.
func (db *DB) Plans() ([]PlanRecord, error) {
	var recs []PlanRecord
	err := db.conn.Select(&recs,
		"SELECT region_id, run_id, planned_at, levels, anchor_x, anchor_y, '' AS stream FROM plans ORDER BY region_id")
	return recs, err
}

// RecordRun appends a run to the run log.
func (db *DB) RecordRun(rec RunRecord) error {
	_, err := db.conn.NamedExec(`INSERT INTO runs
		(run_id, region_id, at, duration_ms, outcome, detail)
		VALUES (:run_id, :region_id, :at, :duration_ms, :outcome, :detail)`, rec)
	return err
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := db.conn.Select(&runs,
		"SELECT run_id, region_id, at, duration_ms, outcome, detail FROM runs ORDER BY id DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// SaveMeta stores a key-value pair in planner metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO planner_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM planner_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %s: %w", key, ErrNotFound)
	}
	return value, err
}

// SaveResult stores a region together with its freshly planned stream.
func (db *DB) SaveResult(r *region.Region, rec PlanRecord) error {
	slog.Info("saving plan", "region", r.ID, "run", rec.RunID, "levels", rec.Levels, "bytes", len(rec.Stream))

	if err := db.SaveRegion(r); err != nil {
		return fmt.Errorf("save region: %w", err)
	}
	if err := db.SavePlan(rec); err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	if err := db.SaveMeta("last_plan_at", time.Unix(rec.PlannedAt, 0).UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}
