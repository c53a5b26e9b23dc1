package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/storefront-ingest/internal/store"
)

const defaultRunListLimit = 20

// RunStore implements store.RunRepository against the ingest_runs table.
type RunStore struct {
	pool Pool
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore wraps pool.
func NewRunStore(pool Pool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// StartRun inserts a running row for id.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, command string, startedAt time.Time) error {
	query := `
		INSERT INTO ingest_runs (run_id, command, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, id, command, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

// AddCounts increments the outcome counters of id.
func (s *RunStore) AddCounts(ctx context.Context, id uuid.UUID, delta store.Counts) error {
	query := `
		UPDATE ingest_runs
		SET games = games + $2,
			out_of_scope = out_of_scope + $3,
			nonexistent = nonexistent + $4,
			failed = failed + $5
		WHERE run_id = $1;
	`
	_, err := s.pool.Exec(ctx, query, id, delta.Games, delta.OutOfScope, delta.Nonexistent, delta.Failed)
	if err != nil {
		return fmt.Errorf("update run counts: %w", err)
	}
	return nil
}

// FinishRun marks id finished with status and an optional error message.
func (s *RunStore) FinishRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE ingest_runs
		SET finished_at = $2, status = $3, error_message = $4
		WHERE run_id = $1;
	`
	if _, err := s.pool.Exec(ctx, query, id, finishedAt, string(status), nullable(errMsg)); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun loads one run by id.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	query := `
		SELECT run_id, command, started_at, finished_at, status,
			games, out_of_scope, nonexistent, failed, error_message
		FROM ingest_runs
		WHERE run_id = $1;
	`
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	query := `
		SELECT run_id, command, started_at, finished_at, status,
			games, out_of_scope, nonexistent, failed, error_message
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT $1;
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Command,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Counts.Games,
		&run.Counts.OutOfScope,
		&run.Counts.Nonexistent,
		&run.Counts.Failed,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.Run{}, err
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
