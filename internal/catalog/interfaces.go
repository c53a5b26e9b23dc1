package catalog

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// RecordFetcher retrieves catalog records and review summaries.
type RecordFetcher interface {
	FetchRecord(ctx context.Context, id int64, locale string) (Record, error)
	FetchReviews(ctx context.Context, id int64) (ReviewsSummary, error)
}

// LabelFetcher retrieves the descriptive tags of an item.
type LabelFetcher interface {
	FetchLabels(ctx context.Context, id int64) ([]string, error)
}

// EstimateResolver looks up completion-time estimates by display name.
// Implementations return Unavailable on any failure except cancellation.
type EstimateResolver interface {
	Resolve(ctx context.Context, name string) (Estimate, error)
}

// GameStore persists in-scope games and owns the checkpoint.
type GameStore interface {
	CommitGame(ctx context.Context, game Game) error
	Checkpoint(ctx context.Context) (int64, error)
	AdvanceCheckpoint(ctx context.Context, id int64) error
}

// ItemStore persists out-of-scope and nonexistent identifiers.
type ItemStore interface {
	CommitItem(ctx context.Context, item OutOfScopeItem) error
}

// BlobStore reads and writes small durable documents such as the backlog.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher emits commit notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}
