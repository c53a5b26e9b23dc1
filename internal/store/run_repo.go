package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the ingest_runs status column.
type RunStatus string

// Run statuses persisted in ingest_runs.status.
const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunError    RunStatus = "error"
	RunCanceled RunStatus = "canceled"
)

// Counts tallies identifier outcomes within a run.
type Counts struct {
	Games       int64
	OutOfScope  int64
	Nonexistent int64
	Failed      int64
}

// Add returns the element-wise sum of c and other.
func (c Counts) Add(other Counts) Counts {
	return Counts{
		Games:       c.Games + other.Games,
		OutOfScope:  c.OutOfScope + other.OutOfScope,
		Nonexistent: c.Nonexistent + other.Nonexistent,
		Failed:      c.Failed + other.Failed,
	}
}

// IsZero reports whether no outcome has been counted.
func (c Counts) IsZero() bool {
	return c == Counts{}
}

// Total is the number of identifiers handled.
func (c Counts) Total() int64 {
	return c.Games + c.OutOfScope + c.Nonexistent + c.Failed
}

// Run models one row of ingest_runs.
type Run struct {
	ID uuid.UUID
	// Command is the CLI verb that started the run (ingest, reprocess).
	Command   string
	StartedAt time.Time
	// FinishedAt is nil while the run is in progress.
	FinishedAt   *time.Time
	Status       RunStatus
	Counts       Counts
	ErrorMessage *string
}

// RunRepository persists ingest run history.
type RunRepository interface {
	// StartRun inserts the run, ignoring duplicates.
	StartRun(ctx context.Context, id uuid.UUID, command string, startedAt time.Time) error
	// AddCounts applies outcome deltas to a running run.
	AddCounts(ctx context.Context, id uuid.UUID, delta Counts) error
	// FinishRun records the terminal status and optional error.
	FinishRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
