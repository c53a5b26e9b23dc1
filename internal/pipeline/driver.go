package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-ingest/internal/backlog"
	"github.com/JakeFAU/storefront-ingest/internal/catalog"
	"github.com/JakeFAU/storefront-ingest/internal/logging"
	"github.com/JakeFAU/storefront-ingest/internal/normalize"
	"github.com/JakeFAU/storefront-ingest/internal/progress"
	"github.com/JakeFAU/storefront-ingest/internal/retry"
	"github.com/JakeFAU/storefront-ingest/internal/skiplist"
	"github.com/JakeFAU/storefront-ingest/internal/store"
)

// State is the lifecycle of a Driver.
type State string

// Driver states.
const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
)

// Run commands recorded in run history.
const (
	CommandIngest    = "ingest"
	CommandReprocess = "reprocess"
)

// ErrRunning is returned when a run is requested while another is active.
var ErrRunning = errors.New("pipeline is already running")

// Config tunes the driver.
type Config struct {
	PrimaryLocale   string
	LocalizedLocale string
	// ItemBudget is the minimum wall-clock time spent per identifier.
	ItemBudget time.Duration
	Layout     catalog.Layout
	// Topic receives commit notices; empty disables publishing.
	Topic string
}

// Deps are the collaborators of a Driver. Estimates, Publisher, and Progress
// are optional.
type Deps struct {
	Records   catalog.RecordFetcher
	Labels    catalog.LabelFetcher
	Estimates catalog.EstimateResolver
	Games     catalog.GameStore
	Items     catalog.ItemStore
	SkipList  *skiplist.List
	Retry     *retry.Runner
	Clock     catalog.Clock
	IDs       catalog.IDGenerator
	Publisher catalog.Publisher
	Progress  progress.Emitter
	Logger    *zap.Logger
}

// Summary describes a finished run.
type Summary struct {
	RunID   uuid.UUID
	Command string
	State   State
	// Total is the number of identifiers selected for the run.
	Total      int
	Counts     store.Counts
	Checkpoint int64
	Elapsed    time.Duration
}

// Driver orchestrates fetch, classification, and commit per identifier.
type Driver struct {
	cfg        Config
	deps       Deps
	normalizer *normalize.Normalizer
	logger     *zap.Logger

	mu    sync.Mutex
	state State
}

// New validates deps and builds a Driver.
func New(cfg Config, deps Deps) (*Driver, error) {
	switch {
	case deps.Records == nil:
		return nil, fmt.Errorf("record fetcher is required")
	case deps.Labels == nil:
		return nil, fmt.Errorf("label fetcher is required")
	case deps.Games == nil:
		return nil, fmt.Errorf("game store is required")
	case deps.Items == nil:
		return nil, fmt.Errorf("item store is required")
	case deps.SkipList == nil:
		return nil, fmt.Errorf("skip-list is required")
	case deps.Retry == nil:
		return nil, fmt.Errorf("retry runner is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.PrimaryLocale == "" {
		cfg.PrimaryLocale = "en"
	}
	if cfg.LocalizedLocale == "" {
		cfg.LocalizedLocale = "ru"
	}
	if cfg.ItemBudget < 0 {
		cfg.ItemBudget = 0
	}
	if deps.Progress == nil {
		deps.Progress = progress.NopEmitter{}
	}
	return &Driver{
		cfg:        cfg,
		deps:       deps,
		normalizer: normalize.New(cfg.Layout),
		logger:     logging.OrNop(deps.Logger),
		state:      StateIdle,
	}, nil
}

// State reports the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Run processes the identifiers of ids strictly greater than the checkpoint.
// An interrupted run returns its partial Summary with an error wrapping the
// context error.
func (d *Driver) Run(ctx context.Context, ids []int64) (Summary, error) {
	if err := d.begin(); err != nil {
		return Summary{}, err
	}
	checkpoint, err := d.deps.Games.Checkpoint(ctx)
	if err != nil {
		d.setState(StateIdle)
		return Summary{}, fmt.Errorf("read checkpoint: %w", err)
	}
	pending := backlog.After(backlog.Normalize(ids), checkpoint)
	d.logger.Info("resuming after checkpoint",
		zap.Int64("checkpoint", checkpoint),
		zap.Int("backlog", len(ids)),
		zap.Int("pending", len(pending)),
	)
	return d.execute(ctx, CommandIngest, pending, checkpoint)
}

// Reprocess replays every skip-listed identifier regardless of the checkpoint.
// The skip-list is append-only; replay outcomes land in the run's counters.
func (d *Driver) Reprocess(ctx context.Context) (Summary, error) {
	if err := d.begin(); err != nil {
		return Summary{}, err
	}
	checkpoint, err := d.deps.Games.Checkpoint(ctx)
	if err != nil {
		d.setState(StateIdle)
		return Summary{}, fmt.Errorf("read checkpoint: %w", err)
	}
	pending := d.deps.SkipList.IDs()
	d.logger.Info("reprocessing skip-list", zap.Int("pending", len(pending)))
	return d.execute(ctx, CommandReprocess, pending, checkpoint)
}

func (d *Driver) begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateRunning {
		return ErrRunning
	}
	d.state = StateRunning
	return nil
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

func (d *Driver) execute(ctx context.Context, command string, ids []int64, checkpoint int64) (Summary, error) {
	runID, err := d.deps.IDs.NewRunID()
	if err != nil {
		d.setState(StateIdle)
		return Summary{}, fmt.Errorf("new run id: %w", err)
	}
	runBytes := progress.UUIDToBytes(runID)
	started := d.deps.Clock.Now()
	summary := Summary{RunID: runID, Command: command, Total: len(ids), Checkpoint: checkpoint}
	logger := d.logger.With(zap.String("run_id", runID.String()), zap.String("command", command))
	d.deps.Progress.Emit(progress.Event{RunID: runBytes, TS: started, Stage: progress.StageRunStart, Command: command})
	logger.Info("run started", zap.Int("total", len(ids)))

	tracker := progress.NewTracker(len(ids))
	interrupted := ctx.Err() != nil
	for _, id := range ids {
		if interrupted {
			break
		}
		itemStart := d.deps.Clock.Now()
		outcome, err := d.processOne(ctx, id)
		if err != nil && catalog.IsCancellation(ctx, err) {
			logger.Info("identifier interrupted", zap.Int64("appid", id))
			interrupted = true
			break
		}
		status := itemStatus(outcome, err)
		if err == nil {
			if id > summary.Checkpoint {
				summary.Checkpoint = id
			}
		}
		summary.Counts = summary.Counts.Add(countFor(status))

		if sleepErr := d.waitBudget(ctx, itemStart); sleepErr != nil {
			interrupted = true
		}
		elapsed := d.deps.Clock.Now().Sub(itemStart)
		snap := tracker.Observe(elapsed)
		d.logItem(logger, id, status, err, snap)
		d.deps.Progress.Emit(progress.Event{
			RunID:  runBytes,
			TS:     d.deps.Clock.Now(),
			Stage:  progress.StageItemDone,
			AppID:  id,
			Status: status,
			Dur:    elapsed,
			Note:   errorNote(err),
		})
	}

	summary.Elapsed = d.deps.Clock.Now().Sub(started)
	final := progress.Event{RunID: runBytes, TS: d.deps.Clock.Now(), Dur: summary.Elapsed}
	if interrupted {
		summary.State = StateInterrupted
		final.Stage = progress.StageRunCanceled
		final.Note = "interrupted"
	} else {
		summary.State = StateCompleted
		final.Stage = progress.StageRunDone
	}
	d.deps.Progress.Emit(final)
	d.setState(summary.State)
	logger.Info("run finished",
		zap.String("state", string(summary.State)),
		zap.Int64("checkpoint", summary.Checkpoint),
		zap.Int64("games", summary.Counts.Games),
		zap.Int64("out_of_scope", summary.Counts.OutOfScope),
		zap.Int64("nonexistent", summary.Counts.Nonexistent),
		zap.Int64("failed", summary.Counts.Failed),
		zap.Duration("elapsed", summary.Elapsed),
	)
	if interrupted {
		cause := context.Cause(ctx)
		if cause == nil {
			cause = context.Canceled
		}
		return summary, fmt.Errorf("run interrupted: %w", cause)
	}
	return summary, nil
}

// waitBudget sleeps out the remainder of the per-item budget.
func (d *Driver) waitBudget(ctx context.Context, itemStart time.Time) error {
	remaining := d.cfg.ItemBudget - d.deps.Clock.Now().Sub(itemStart)
	if remaining <= 0 {
		return ctx.Err()
	}
	return d.deps.Clock.Sleep(ctx, remaining)
}

func (d *Driver) logItem(logger *zap.Logger, id int64, status progress.ItemStatus, err error, snap progress.Snapshot) {
	fields := []zap.Field{
		zap.Int64("appid", id),
		zap.String("status", string(status)),
		zap.Int("index", snap.Index),
		zap.Int("total", snap.Total),
		zap.Duration("elapsed", snap.Elapsed),
		zap.Duration("average", snap.Average),
		zap.Int("remaining", snap.Remaining),
		zap.String("eta", progress.FormatETA(snap.ETA)),
	}
	if err != nil {
		logger.Warn("identifier failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("identifier processed", fields...)
}

func itemStatus(outcome catalog.Outcome, err error) progress.ItemStatus {
	if err != nil {
		return progress.ItemFailed
	}
	switch outcome {
	case catalog.OutcomeGame:
		return progress.ItemGame
	case catalog.OutcomeOutOfScope:
		return progress.ItemOutOfScope
	default:
		return progress.ItemNonexistent
	}
}

func countFor(status progress.ItemStatus) store.Counts {
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

func errorNote(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
