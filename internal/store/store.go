// Package store handles SQLite persistence of the alarm history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/tuimer/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for alarm records.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alarms (
			id INTEGER PRIMARY KEY,
			label TEXT NOT NULL,
			initial_seconds INTEGER NOT NULL,
			fired_at TEXT NOT NULL,
			sounded INTEGER NOT NULL,
			notified INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_fired_at ON alarms(fired_at);`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_label ON alarms(label);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertAlarm stores one fired alarm.
func (s *Store) InsertAlarm(ctx context.Context, rec model.AlarmRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alarms (label, initial_seconds, fired_at, sounded, notified)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Label,
		rec.InitialSeconds,
		rec.FiredAt.UTC().Format(timeLayout),
		boolInt(rec.Sounded),
		boolInt(rec.Notified),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListAlarms returns alarms matching cfg, oldest first.
func (s *Store) ListAlarms(ctx context.Context, cfg model.HistoryConfig) ([]model.AlarmRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Label != "" {
		clauses = append(clauses, "label = ?")
		args = append(args, cfg.Label)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "fired_at >= ?")
		args = append(args, cfg.Since.UTC().Format(timeLayout))
	}
	query := fmt.Sprintf(`SELECT id, label, initial_seconds, fired_at, sounded, notified
		FROM alarms
		WHERE %s
		ORDER BY fired_at ASC, id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var alarms []model.AlarmRecord
	for rows.Next() {
		var rec model.AlarmRecord
		var firedAt string
		var sounded, notified int
		if err := rows.Scan(&rec.ID, &rec.Label, &rec.InitialSeconds, &firedAt, &sounded, &notified); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(timeLayout, firedAt)
		if err != nil {
			return nil, err
		}
		rec.FiredAt = parsed
		rec.Sounded = sounded != 0
		rec.Notified = notified != 0
		alarms = append(alarms, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(alarms) > cfg.Last {
		alarms = alarms[len(alarms)-cfg.Last:]
	}
	return alarms, nil
}

// SummarizeByLabel aggregates alarm counts per label.
func (s *Store) SummarizeByLabel(ctx context.Context) ([]model.LabelSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, COUNT(*), SUM(sounded), SUM(notified), MAX(fired_at)
		 FROM alarms
		 GROUP BY label
		 ORDER BY label ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.LabelSummary
	for rows.Next() {
		var sum model.LabelSummary
		var lastFired string
		if err := rows.Scan(&sum.Label, &sum.Alarms, &sum.Sounded, &sum.Notified, &lastFired); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(timeLayout, lastFired)
		if err != nil {
			return nil, err
		}
		sum.LastFired = parsed
		result = append(result, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
