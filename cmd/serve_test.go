package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymdex/gymdex-cli/internal/batch"
	"github.com/gymdex/gymdex-cli/internal/merge"
	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/monitoring"
	"github.com/gymdex/gymdex-cli/internal/session"
	"github.com/gymdex/gymdex-cli/internal/store"
)

type stubSearcher struct {
	blockCh chan struct{}
}

func (s *stubSearcher) Run(ctx context.Context, name, address string) (*model.CrawledRecord, []model.SearchAttempt, error) {
	if s.blockCh != nil {
		select {
		case <-s.blockCh:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return nil, nil, eris.New("stub")
}

func newTestEnv(t *testing.T, searcher session.Searcher) *appEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	monitor := monitoring.NewMonitor()
	proc := batch.NewProcessor(batch.Config{}, monitor).
		WithSleep(func(ctx context.Context, min, max time.Duration) error { return ctx.Err() })

	return &appEnv{
		Store:   st,
		Monitor: monitor,
		Runner:  session.NewRunner(st, searcher, proc, merge.New(merge.Options{})),
	}
}

func newTestRouter(t *testing.T, env *appEnv) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, env.Monitor.Register(reg))
	return newRouter(env, reg)
}

func TestServe_Health(t *testing.T) {
	router := newTestRouter(t, newTestEnv(t, &stubSearcher{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_Metrics(t *testing.T) {
	router := newTestRouter(t, newTestEnv(t, &stubSearcher{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gymdex")
}

func TestServe_ListSessions_Empty(t *testing.T) {
	router := newTestRouter(t, newTestEnv(t, &stubSearcher{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []model.CrawlSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	assert.Empty(t, sessions)
}

func TestServe_ListSessions_WithRows(t *testing.T) {
	env := newTestEnv(t, &stubSearcher{})
	router := newTestRouter(t, env)

	_, err := env.Store.CreateSession(context.Background(), 3)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions?status=running", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []model.CrawlSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, model.SessionStatusRunning, sessions[0].Status)
}

func TestServe_ListMerged_Empty(t *testing.T) {
	router := newTestRouter(t, newTestEnv(t, &stubSearcher{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/merged", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServe_Crawl_BadBody(t *testing.T) {
	router := newTestRouter(t, newTestEnv(t, &stubSearcher{}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/crawl", strings.NewReader("{not json"))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_Crawl_ConflictWhileRunning(t *testing.T) {
	blockCh := make(chan struct{})
	searcher := &stubSearcher{blockCh: blockCh}
	env := newTestEnv(t, searcher)
	router := newTestRouter(t, env)

	_, err := env.Store.SaveBaseline(context.Background(), []model.BaselineRecord{
		{Name: "강남 피트니스", Address: "서울 강남구 테헤란로 1", Source: model.SourceBaseline},
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.Runner.Run(context.Background(), session.Options{}) //nolint:errcheck
	}()
	require.Eventually(t, env.Runner.Running, time.Second, time.Millisecond)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/crawl", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(blockCh)
	<-done
}
