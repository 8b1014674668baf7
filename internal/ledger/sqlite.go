// Package ledger keeps a queryable SQLite history of outcome records across
// runs.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/safeocr/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", dbPath, err)
	}
	// Writes come from a single goroutine; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) runMigrations() error {
	schema := `
		CREATE TABLE IF NOT EXISTS outcomes (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id         TEXT NOT NULL,
		path           TEXT NOT NULL,
		decision       TEXT NOT NULL,
		state          TEXT NOT NULL,          -- skipped|would_process|committed|failed
		attempts       INTEGER NOT NULL DEFAULT 0,
		duration_ms    INTEGER NOT NULL DEFAULT 0,
		error          TEXT,
		return_code    INTEGER,
		file_hash      TEXT,
		original_path  TEXT,
		processed_path TEXT,
		recorded_at    TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_run_state ON outcomes(run_id, state);
		CREATE INDEX IF NOT EXISTS idx_outcomes_path ON outcomes(path, recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Write inserts one record.
func (s *Store) Write(ctx context.Context, rec models.OutcomeRecord) error {
	var code sql.NullInt64
	if rec.ReturnCode != nil {
		code = sql.NullInt64{Int64: int64(*rec.ReturnCode), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO outcomes (run_id, path, decision, state, attempts, duration_ms, error, return_code, file_hash, original_path, processed_path, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Path, string(rec.Decision), string(rec.State), rec.Attempts, rec.DurationMs,
		nullable(rec.ErrorMessage), code, nullable(rec.FileHash), nullable(rec.OriginalPath), nullable(rec.ProcessedPath),
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert outcome for %s: %w", rec.Path, err)
	}
	return nil
}

// Stats counts records by state, for one run or for all runs when runID is
// empty.
func (s *Store) Stats(ctx context.Context, runID string) (map[models.JobState]int, error) {
	query := `SELECT state, COUNT(*) FROM outcomes GROUP BY state`
	var args []any
	if runID != "" {
		query = `SELECT state, COUNT(*) FROM outcomes WHERE run_id = ? GROUP BY state`
		args = append(args, runID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger stats: %w", err)
	}
	defer rows.Close()

	out := map[models.JobState]int{
		models.StateSkipped: 0, models.StateWouldProcess: 0,
		models.StateCommitted: 0, models.StateFailed: 0,
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[models.JobState(st)] = n
	}
	return out, rows.Err()
}

// LatestRunID returns the run that recorded most recently, or "" when the
// ledger is empty.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `SELECT run_id FROM outcomes ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest run: %w", err)
	}
	return runID, nil
}

// Failures lists the failed records of a run in recording order.
func (s *Store) Failures(ctx context.Context, runID string) ([]models.OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, path, decision, state, attempts, duration_ms, error, return_code
FROM outcomes
WHERE run_id = ? AND state = ?
ORDER BY id ASC`, runID, string(models.StateFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var out []models.OutcomeRecord
	for rows.Next() {
		var rec models.OutcomeRecord
		var errMsg sql.NullString
		var code sql.NullInt64
		if err := rows.Scan(&rec.RunID, &rec.Path, &rec.Decision, &rec.State, &rec.Attempts, &rec.DurationMs, &errMsg, &code); err != nil {
			return nil, err
		}
		rec.ErrorMessage = errMsg.String
		if code.Valid {
			c := int(code.Int64)
			rec.ReturnCode = &c
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
