package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-ingest/internal/metrics"
	"github.com/JakeFAU/storefront-ingest/internal/store"
)

type fakeRunRepo struct {
	runs    []store.Run
	listErr error
	limit   int
}

func (f *fakeRunRepo) StartRun(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (f *fakeRunRepo) AddCounts(context.Context, uuid.UUID, store.Counts) error { return nil }

func (f *fakeRunRepo) FinishRun(context.Context, uuid.UUID, time.Time, store.RunStatus, *string) error {
	return nil
}

func (f *fakeRunRepo) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	for _, run := range f.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return store.Run{}, store.ErrNotFound
}

func (f *fakeRunRepo) ListRuns(_ context.Context, limit int) ([]store.Run, error) {
	f.limit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.runs, nil
}

func sampleRun() store.Run {
	finished := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	return store.Run{
		ID:         uuid.MustParse("0190a6f0-0000-7000-8000-000000000001"),
		Command:    "ingest",
		StartedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: &finished,
		Status:     store.RunSuccess,
		Counts:     store.Counts{Games: 3, OutOfScope: 1, Failed: 2},
	}
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzAndRequestID(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(Options{}), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReportsFailingChecks(t *testing.T) {
	t.Parallel()

	s := NewServer(Options{Ready: map[string]Checker{
		"games": func(context.Context) error { return nil },
		"items": func(context.Context) error { return errors.New("connection refused") },
	}})
	rec := serve(t, s, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"unavailable","failures":{"items":"connection refused"}}`, rec.Body.String())

	rec = serve(t, NewServer(Options{}), "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	t.Parallel()
	metrics.ObserveRetry("api_test")

	rec := serve(t, NewServer(Options{}), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ingest_retry_attempts_total")
}

func TestListRuns(t *testing.T) {
	t.Parallel()
	repo := &fakeRunRepo{runs: []store.Run{sampleRun()}}

	rec := serve(t, NewServer(Options{Runs: repo}), "/api/runs?limit=500")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxRunLimit, repo.limit)

	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "success", body.Runs[0].Status)
	require.Equal(t, int64(3), body.Runs[0].Games)
	require.Equal(t, int64(2), body.Runs[0].Failed)
	require.Nil(t, body.Runs[0].Error)
}

func TestListRunsErrors(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(Options{Runs: &fakeRunRepo{}}), "/api/runs?limit=zero")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, NewServer(Options{Runs: &fakeRunRepo{listErr: errors.New("boom")}}), "/api/runs")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(t, NewServer(Options{}), "/api/runs")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRun(t *testing.T) {
	t.Parallel()
	run := sampleRun()
	s := NewServer(Options{Runs: &fakeRunRepo{runs: []store.Run{run}}})

	rec := serve(t, s, "/api/runs/"+run.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"command":"ingest"`)

	rec = serve(t, s, "/api/runs/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, s, "/api/runs/not-a-uuid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, NewServer(Options{}).Handler(), nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
