package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// IngestRun records one bulk import: where the data came from, how long the
// run took and how many printings it touched.
type IngestRun struct {
	RunID             string
	Source            string
	StartedAt         time.Time
	FinishedAt        *time.Time
	PrintingsSeen     int
	PrintingsUpserted int
	PrintingsSkipped  int
	Error             *string
}

// IngestRunRepository provides access to the ingest_runs table.
type IngestRunRepository interface {
	// SaveRun saves or updates an ingest run record.
	SaveRun(ctx context.Context, run *IngestRun) error

	// LastRun retrieves the most recently started run. Returns nil when
	// no import has happened yet.
	LastRun(ctx context.Context) (*IngestRun, error)

	// RecentRuns retrieves up to limit runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]*IngestRun, error)
}

type ingestRunRepository struct {
	db *sql.DB
}

// NewIngestRunRepository creates a new ingest run repository.
func NewIngestRunRepository(db *sql.DB) IngestRunRepository {
	return &ingestRunRepository{db: db}
}

// SaveRun saves or updates an ingest run record.
func (r *ingestRunRepository) SaveRun(ctx context.Context, run *IngestRun) error {
	query := `
		INSERT INTO ingest_runs (
			run_id, source, started_at, finished_at,
			printings_seen, printings_upserted, printings_skipped, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			printings_seen = excluded.printings_seen,
			printings_upserted = excluded.printings_upserted,
			printings_skipped = excluded.printings_skipped,
			error = excluded.error
	`

	var finishedAt sql.NullTime
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		run.RunID, run.Source, run.StartedAt.UTC(), finishedAt,
		run.PrintingsSeen, run.PrintingsUpserted, run.PrintingsSkipped, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save ingest run: %w", err)
	}

	return nil
}

// LastRun retrieves the most recently started run.
func (r *ingestRunRepository) LastRun(ctx context.Context) (*IngestRun, error) {
	runs, err := r.RecentRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// RecentRuns retrieves up to limit runs, newest first.
func (r *ingestRunRepository) RecentRuns(ctx context.Context, limit int) ([]*IngestRun, error) {
	query := `
		SELECT run_id, source, started_at, finished_at,
		       printings_seen, printings_upserted, printings_skipped, error
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*IngestRun
	for rows.Next() {
		var run IngestRun
		var finishedAt sql.NullTime
		err := rows.Scan(
			&run.RunID, &run.Source, &run.StartedAt, &finishedAt,
			&run.PrintingsSeen, &run.PrintingsUpserted, &run.PrintingsSkipped, &run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ingest run: %w", err)
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingest runs: %w", err)
	}

	return runs, nil
}
