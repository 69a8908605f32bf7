package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"moltbot/internal/logging"
)

// Archive is the append-only observation archive. The JSON state files hold
// only the live window of data; the archive keeps the long tail (cycle
// outcomes, trend snapshots) for offline inspection via the CLI.
type Archive struct {
	db *sql.DB
}

// CycleRecord is one completed heartbeat cycle.
type CycleRecord struct {
	CycleCount int
	Action     string
	Reason     string
	TargetID   string
	Karma      int
	Delta      int
	Failed     bool
	RecordedAt time.Time
}

// TrendRecord is one trending keyword observation from a full refresh.
type TrendRecord struct {
	Keyword          string
	MentionCount     int
	Momentum         int
	OpportunityScore int
	RecordedAt       time.Time
}

// OpenArchive opens (and migrates) the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_count INTEGER NOT NULL,
			action TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			target_id TEXT NOT NULL DEFAULT '',
			karma INTEGER NOT NULL DEFAULT 0,
			delta INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_recorded_at ON cycles(recorded_at)`,
		`CREATE TABLE IF NOT EXISTS trend_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			keyword TEXT NOT NULL,
			mention_count INTEGER NOT NULL,
			momentum INTEGER NOT NULL,
			opportunity_score INTEGER NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trend_snapshots_keyword ON trend_snapshots(keyword)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate archive: %w", err)
		}
	}

	return &Archive{db: db}, nil
}

// Close closes the archive database.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// RecordCycle appends one cycle outcome.
func (a *Archive) RecordCycle(rec CycleRecord) error {
	if a == nil || a.db == nil {
		return nil
	}
	failed := 0
	if rec.Failed {
		failed = 1
	}
	_, err := a.db.Exec(
		`INSERT INTO cycles (cycle_count, action, reason, target_id, karma, delta, failed, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CycleCount, rec.Action, rec.Reason, rec.TargetID, rec.Karma, rec.Delta, failed, rec.RecordedAt,
	)
	if err != nil {
		logging.StoreError("Failed to archive cycle %d: %v", rec.CycleCount, err)
	}
	return err
}

// RecordTrends appends a batch of trend observations in one transaction.
func (a *Archive) RecordTrends(recs []TrendRecord) error {
	if a == nil || a.db == nil || len(recs) == 0 {
		return nil
	}
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO trend_snapshots (keyword, mention_count, momentum, opportunity_score, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, rec := range recs {
		if _, err := stmt.Exec(rec.Keyword, rec.MentionCount, rec.Momentum, rec.OpportunityScore, rec.RecordedAt); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return err
		}
	}
	_ = stmt.Close()
	return tx.Commit()
}

// RecentCycles returns the most recent cycle records, newest first.
func (a *Archive) RecentCycles(limit int) ([]CycleRecord, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.Query(
		`SELECT cycle_count, action, reason, target_id, karma, delta, failed, recorded_at
		 FROM cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var failed int
		if err := rows.Scan(&rec.CycleCount, &rec.Action, &rec.Reason, &rec.TargetID, &rec.Karma, &rec.Delta, &failed, &rec.RecordedAt); err != nil {
			return nil, err
		}
		rec.Failed = failed != 0
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
