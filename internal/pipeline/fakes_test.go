package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
	"github.com/JakeFAU/storefront-ingest/internal/progress"
	"github.com/JakeFAU/storefront-ingest/internal/publisher/memory"
	"github.com/JakeFAU/storefront-ingest/internal/retry"
	"github.com/JakeFAU/storefront-ingest/internal/skiplist"
	memblobs "github.com/JakeFAU/storefront-ingest/internal/storage/memory"
)

const skipPath = "skipped_appids.json"

var errUpstream = &catalog.TransientError{Op: "test", StatusCode: 503}

// fakeRecords serves records from a table. Identifiers missing from the table
// do not exist upstream.
type fakeRecords struct {
	mu      sync.Mutex
	records map[int64]catalog.Record
	dates   map[int64]string
	// failures forces the first n calls of an operation on an id to fail.
	failures map[string]int
	calls    map[string]int
	// beforeFetch runs before every record fetch.
	beforeFetch func(id int64, locale string)
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		records:  make(map[int64]catalog.Record),
		dates:    make(map[int64]string),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (f *fakeRecords) addGame(id int64) {
	f.records[id] = catalog.Record{
		ID:     id,
		Exists: true,
		Kind:   catalog.KindGame,
		Name:   fmt.Sprintf("Game %d", id),
		Attributes: catalog.Attributes{
			ReleaseDate:        catalog.ReleaseDescriptor{Date: "3 Jul, 2020"},
			SupportedLanguages: "English*, French",
			Genres:             []string{"Action", "Action"},
		},
		Raw: json.RawMessage(fmt.Sprintf(`{"steam_appid":%d,"type":"game"}`, id)),
	}
	f.dates[id] = "3 июл. 2020"
}

func (f *fakeRecords) addComingSoon(id int64) {
	f.addGame(id)
	rec := f.records[id]
	rec.Attributes.ReleaseDate = catalog.ReleaseDescriptor{ComingSoon: true, Date: "Coming soon"}
	f.records[id] = rec
	f.dates[id] = "Скоро"
}

func (f *fakeRecords) addKind(id int64, kind string) {
	f.records[id] = catalog.Record{
		ID:     id,
		Exists: true,
		Kind:   kind,
		Name:   fmt.Sprintf("Item %d", id),
		Raw:    json.RawMessage(fmt.Sprintf(`{"steam_appid":%d,"type":%q}`, id, kind)),
	}
}

func (f *fakeRecords) fail(op string, id int64, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[fmt.Sprintf("%s/%d", op, id)] = n
}

func (f *fakeRecords) count(op string, id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[fmt.Sprintf("%s/%d", op, id)]
}

func (f *fakeRecords) tick(op string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s/%d", op, id)
	f.calls[key]++
	if f.failures[key] != 0 {
		if f.failures[key] > 0 {
			f.failures[key]--
		}
		return errUpstream
	}
	return nil
}

func (f *fakeRecords) FetchRecord(ctx context.Context, id int64, locale string) (catalog.Record, error) {
	if f.beforeFetch != nil {
		f.beforeFetch(id, locale)
	}
	if err := ctx.Err(); err != nil {
		return catalog.Record{}, err
	}
	if err := f.tick("record_"+locale, id); err != nil {
		return catalog.Record{}, err
	}
	rec, ok := f.records[id]
	if !ok {
		return catalog.Record{ID: id, Locale: locale}, nil
	}
	rec.Locale = locale
	if locale != "en" {
		rec.Attributes.ReleaseDate.Date = f.dates[id]
	}
	return rec, nil
}

func (f *fakeRecords) FetchReviews(ctx context.Context, id int64) (catalog.ReviewsSummary, error) {
	if err := ctx.Err(); err != nil {
		return catalog.ReviewsSummary{}, err
	}
	if err := f.tick("reviews", id); err != nil {
		return catalog.ReviewsSummary{}, err
	}
	return catalog.ReviewsSummary{Total: 100, Positive: 87, Negative: 13}, nil
}

type fakeLabels struct{}

func (fakeLabels) FetchLabels(context.Context, int64) ([]string, error) {
	return []string{"Indie", "Puzzle"}, nil
}

type fakeEstimates struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeEstimates) Resolve(ctx context.Context, name string) (catalog.Estimate, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Unavailable, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	hours := 4.5
	return catalog.Estimate{MainHours: &hours}, nil
}

func (f *fakeEstimates) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

// fakeGames stores games in memory and mirrors the GREATEST checkpoint rule.
type fakeGames struct {
	mu          sync.Mutex
	games       map[int64]catalog.Game
	commits     []int64
	checkpoint  int64
	advances    []int64
	commitErr   map[int64]error
	checkpointE error
}

func newFakeGames(checkpoint int64) *fakeGames {
	return &fakeGames{games: make(map[int64]catalog.Game), checkpoint: checkpoint, commitErr: make(map[int64]error)}
}

func (f *fakeGames) CommitGame(_ context.Context, game catalog.Game) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.commitErr[game.AppID]; err != nil {
		return err
	}
	f.games[game.AppID] = game
	f.commits = append(f.commits, game.AppID)
	return nil
}

func (f *fakeGames) Checkpoint(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkpoint, f.checkpointE
}

func (f *fakeGames) AdvanceCheckpoint(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advances = append(f.advances, id)
	if id > f.checkpoint {
		f.checkpoint = id
	}
	return nil
}

type fakeItems struct {
	mu    sync.Mutex
	items map[int64]catalog.OutOfScopeItem
	order []int64
}

func newFakeItems() *fakeItems {
	return &fakeItems{items: make(map[int64]catalog.OutOfScopeItem)}
}

func (f *fakeItems) CommitItem(_ context.Context, item catalog.OutOfScopeItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.AppID] = item
	f.order = append(f.order, item.AppID)
	return nil
}

// fakeClock advances only when slept on or stepped explicitly.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Step(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fixedIDs struct{}

func (fixedIDs) NewRunID() (uuid.UUID, error) {
	return uuid.MustParse("0190a6f0-0000-7000-8000-000000000001"), nil
}

type brokenIDs struct{}

func (brokenIDs) NewRunID() (uuid.UUID, error) {
	return uuid.Nil, errors.New("entropy exhausted")
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Stage
	}
	return out
}

type harness struct {
	records   *fakeRecords
	estimates *fakeEstimates
	games     *fakeGames
	items     *fakeItems
	clock     *fakeClock
	blobs     *memblobs.BlobStore
	skip      *skiplist.List
	publisher *memory.Publisher
	emitter   *recordingEmitter
	driver    *Driver
}

func newHarness(t *testing.T, checkpoint int64, budget time.Duration) *harness {
	t.Helper()
	h := &harness{
		records:   newFakeRecords(),
		estimates: &fakeEstimates{},
		games:     newFakeGames(checkpoint),
		items:     newFakeItems(),
		clock:     newFakeClock(),
		blobs:     memblobs.NewBlobStore(),
		publisher: memory.New(),
		emitter:   &recordingEmitter{},
	}
	skip, err := skiplist.Load(context.Background(), h.blobs, skipPath)
	require.NoError(t, err)
	h.skip = skip
	h.rebuild(t, budget)
	return h
}

func (h *harness) rebuild(t *testing.T, budget time.Duration) {
	t.Helper()
	noSleep := func(context.Context, time.Duration) error { return nil }
	driver, err := New(Config{
		PrimaryLocale:   "en",
		LocalizedLocale: "ru",
		ItemBudget:      budget,
		Layout:          catalog.LayoutNormalized,
		Topic:           "commits",
	}, Deps{
		Records:   h.records,
		Labels:    fakeLabels{},
		Estimates: h.estimates,
		Games:     h.games,
		Items:     h.items,
		SkipList:  h.skip,
		Retry:     retry.NewRunner(retry.DefaultPolicy(), noSleep, nil),
		Clock:     h.clock,
		IDs:       fixedIDs{},
		Publisher: h.publisher,
		Progress:  h.emitter,
	})
	require.NoError(t, err)
	h.driver = driver
}
