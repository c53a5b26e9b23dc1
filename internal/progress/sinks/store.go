package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-ingest/internal/progress"
	"github.com/JakeFAU/storefront-ingest/internal/store"
)

// StoreSink persists run history via a store.RunRepository. Item outcomes are
// collapsed into one counter update per run and batch.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch in order. Counters pending for a run are written
// before that run is finished.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]store.Counts)
	var order []uuid.UUID

	flush := func(id uuid.UUID) error {
		delta, ok := pending[id]
		if !ok {
			return nil
		}
		delete(pending, id)
		if delta.IsZero() {
			return nil
		}
		if err := s.repo.AddCounts(ctx, id, delta); err != nil {
			return fmt.Errorf("add run counts: %w", err)
		}
		return nil
	}

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, runID, evt.Command, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageItemDone:
			if _, ok := pending[runID]; !ok {
				order = append(order, runID)
			}
			pending[runID] = pending[runID].Add(countsFor(evt.Status))
		case progress.StageRunDone, progress.StageRunError, progress.StageRunCanceled:
			if err := flush(runID); err != nil {
				return err
			}
			if err := s.repo.FinishRun(ctx, runID, evt.TS, terminalStatus(evt.Stage), optionalNote(evt.Note)); err != nil {
				return fmt.Errorf("finish run: %w", err)
			}
		}
	}
	for _, id := range order {
		if err := flush(id); err != nil {
			return err
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func countsFor(status progress.ItemStatus) store.Counts {
	switch status {
	case progress.ItemGame:
		return store.Counts{Games: 1}
	case progress.ItemOutOfScope:
		return store.Counts{OutOfScope: 1}
	case progress.ItemNonexistent:
		return store.Counts{Nonexistent: 1}
	default:
		return store.Counts{Failed: 1}
	}
}

func terminalStatus(stage progress.Stage) store.RunStatus {
	switch stage {
	case progress.StageRunDone:
		return store.RunSuccess
	case progress.StageRunCanceled:
		return store.RunCanceled
	default:
		return store.RunError
	}
}

func optionalNote(note string) *string {
	if note == "" {
		return nil
	}
	return &note
}
