package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Index mirrors the discovery record into sqlite so discoveries can be
// queried by substring without parsing the JSON file. It is derived
// state, the JSON record stays the source of truth.
type Index struct {
	db *sql.DB
}

type Discovery struct {
	Candidate string
	RunID     string
	FirstSeen time.Time
}

func OpenIndex(ctx context.Context, dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS discoveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			candidate TEXT NOT NULL UNIQUE,
			run_id TEXT NOT NULL,
			first_seen TEXT NOT NULL
		)`,
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

// Record inserts new discoveries under the given run id. Candidates seen
// in an earlier run keep their original row.
func (ix *Index) Record(ctx context.Context, runID string, candidates ...string) error {
	if len(candidates) == 0 {
		return nil
	}
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(ctx context.Context) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("run_id", runID))
		}
	}(ctx)

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range candidates {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO discoveries (candidate, run_id, first_seen) VALUES (?,?,?);`,
			c, runID, now,
		)
		if err != nil {
			return fmt.Errorf("executing sql insert failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// Search returns discoveries whose candidate contains substr, sorted by
// candidate. An empty substr returns everything.
func (ix *Index) Search(ctx context.Context, substr string) ([]Discovery, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT candidate, run_id, first_seen FROM discoveries
		 WHERE instr(candidate, ?) > 0 OR ? = ''
		 ORDER BY candidate`,
		substr, substr,
	)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Discovery
	for rows.Next() {
		var d Discovery
		var seen string
		if err := rows.Scan(&d.Candidate, &d.RunID, &seen); err != nil {
			return nil, fmt.Errorf("scanning sql row failed: %w", err)
		}
		d.FirstSeen, err = time.Parse(time.RFC3339, seen)
		if err != nil {
			return nil, fmt.Errorf("parsing first_seen %q: %w", seen, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sql rows failed: %w", err)
	}
	return out, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}
