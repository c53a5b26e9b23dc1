package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-ingest/internal/progress"
	"github.com/JakeFAU/storefront-ingest/internal/store"
)

func TestStoreSinkPersistsRunLifecycle(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: now, Command: "ingest"},
		{RunID: runID, Stage: progress.StageItemDone, TS: now, AppID: 1, Status: progress.ItemGame},
		{RunID: runID, Stage: progress.StageItemDone, TS: now, AppID: 2, Status: progress.ItemGame},
		{RunID: runID, Stage: progress.StageItemDone, TS: now, AppID: 3, Status: progress.ItemNonexistent},
		{RunID: runID, Stage: progress.StageItemDone, TS: now, AppID: 4, Status: progress.ItemFailed},
		{RunID: runID, Stage: progress.StageRunError, TS: now.Add(time.Second), Note: "boom"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []string{"start", "counts", "finish"}, repo.calls)
	require.Equal(t, "ingest", repo.command)
	require.Equal(t, store.Counts{Games: 2, Nonexistent: 1, Failed: 1}, repo.counts[runUUID])
	require.Equal(t, store.RunError, repo.status)
	require.NotNil(t, repo.errMsg)
	require.Equal(t, "boom", *repo.errMsg)
}

func TestStoreSinkFlushesCountsForOpenRuns(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageItemDone, TS: time.Now(), AppID: 9, Status: progress.ItemOutOfScope},
	}))
	require.Equal(t, []string{"counts"}, repo.calls)
	require.Equal(t, store.Counts{OutOfScope: 1}, repo.counts[runUUID])
}

func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), Stage: progress.StageRunStart, TS: time.Now()},
	})
	require.ErrorContains(t, err, "start run")
}

type fakeRunRepo struct {
	fail    bool
	calls   []string
	command string
	counts  map[uuid.UUID]store.Counts
	status  store.RunStatus
	errMsg  *string
}

func (f *fakeRunRepo) StartRun(_ context.Context, _ uuid.UUID, command string, _ time.Time) error {
	if f.fail {
		return assertErr("start")
	}
	f.calls = append(f.calls, "start")
	f.command = command
	return nil
}

func (f *fakeRunRepo) AddCounts(_ context.Context, id uuid.UUID, delta store.Counts) error {
	if f.fail {
		return assertErr("counts")
	}
	if f.counts == nil {
		f.counts = make(map[uuid.UUID]store.Counts)
	}
	f.calls = append(f.calls, "counts")
	f.counts[id] = f.counts[id].Add(delta)
	return nil
}

func (f *fakeRunRepo) FinishRun(_ context.Context, _ uuid.UUID, _ time.Time, status store.RunStatus, errMsg *string) error {
	if f.fail {
		return assertErr("finish")
	}
	f.calls = append(f.calls, "finish")
	f.status = status
	f.errMsg = errMsg
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, store.ErrNotFound
}

func (f *fakeRunRepo) ListRuns(context.Context, int) ([]store.Run, error) {
	return nil, assertErr("list")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
