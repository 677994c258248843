package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymdex/gymdex-cli/internal/merge"
	"github.com/gymdex/gymdex-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Sessions ---

func TestSQLite_CreateSession_And_GetSession(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, model.SessionStatusRunning, sess.Status)
	assert.Equal(t, 42, sess.Candidates)

	fetched, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, fetched.ID)
	assert.Equal(t, model.SessionStatusRunning, fetched.Status)
	assert.Nil(t, fetched.Result)
	assert.Nil(t, fetched.FinishedAt)
}

func TestSQLite_CompleteSession(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, 10)
	require.NoError(t, err)

	result := &model.SessionResult{
		CrawledRecords:    8,
		FallbackRecords:   2,
		TotalBatches:      3,
		SuccessfulBatches: 3,
		MergedRecords:     10,
		QualityScore:      0.82,
		Elapsed:           5 * time.Second,
	}
	err = st.CompleteSession(ctx, sess.ID, model.SessionStatusComplete, result)
	require.NoError(t, err)

	fetched, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusComplete, fetched.Status)
	require.NotNil(t, fetched.Result)
	assert.Equal(t, 8, fetched.Result.CrawledRecords)
	assert.Equal(t, 0.82, fetched.Result.QualityScore)
	require.NotNil(t, fetched.FinishedAt)
}

func TestSQLite_CompleteSession_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteSession(context.Background(), "missing", model.SessionStatusComplete, nil)
	assert.Error(t, err)
}

func TestSQLite_ListSessions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateSession(ctx, 1)
	require.NoError(t, err)
	_, err = st.CreateSession(ctx, 2)
	require.NoError(t, err)

	sessions, err := st.ListSessions(ctx, SessionFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestSQLite_ListSessions_FilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	done, err := st.CreateSession(ctx, 1)
	require.NoError(t, err)
	err = st.CompleteSession(ctx, done.ID, model.SessionStatusComplete, &model.SessionResult{})
	require.NoError(t, err)

	// A second session that stays running.
	_, err = st.CreateSession(ctx, 2)
	require.NoError(t, err)

	sessions, err := st.ListSessions(ctx, SessionFilter{Status: model.SessionStatusComplete, Limit: 10})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, done.ID, sessions[0].ID)
}

// --- Baseline ---

func TestSQLite_SaveBaseline_And_List(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	records := []model.BaselineRecord{
		{Name: "강남 피트니스", Address: "서울 강남구 테헤란로 1", Phone: "02-555-1234", BusinessStatus: "영업중", Source: model.SourceBaseline},
		{Name: "마포 짐", Address: "서울 마포구 독막로 9", Source: model.SourceBaseline},
	}
	saved, err := st.SaveBaseline(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	listed, err := st.ListBaseline(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "강남 피트니스", listed[0].Name)
	assert.Equal(t, "02-555-1234", listed[0].Phone)
}

func TestSQLite_SaveBaseline_UpsertByDedupKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.SaveBaseline(ctx, []model.BaselineRecord{
		{Name: "강남 피트니스", Address: "서울 강남구 테헤란로 1", Phone: "02-111-1111", Source: model.SourceBaseline},
	})
	require.NoError(t, err)

	// Same name and address, newer phone. Should replace, not duplicate.
	_, err = st.SaveBaseline(ctx, []model.BaselineRecord{
		{Name: "강남 피트니스", Address: "서울 강남구 테헤란로 1", Phone: "02-222-2222", Source: model.SourceBaseline},
	})
	require.NoError(t, err)

	listed, err := st.ListBaseline(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "02-222-2222", listed[0].Phone)
}

// --- Crawled ---

func TestSQLite_SaveCrawled_And_List(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, 2)
	require.NoError(t, err)

	records := []model.CrawledRecord{
		{Name: "강남 피트니스", Phone: "02-555-1234", Source: "primary_search", Confidence: 0.9},
		{Name: "마포 짐", OpenHour: "06:00", CloseHour: "23:00", Source: "blog_search", Confidence: 0.6},
	}
	saved, err := st.SaveCrawled(ctx, sess.ID, records)
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	listed, err := st.ListCrawled(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, 0.9, listed[0].Confidence)
	assert.Equal(t, "blog_search", listed[1].Source)
}

func TestSQLite_ListCrawled_ScopedToSession(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	s1, err := st.CreateSession(ctx, 1)
	require.NoError(t, err)
	s2, err := st.CreateSession(ctx, 1)
	require.NoError(t, err)

	_, err = st.SaveCrawled(ctx, s1.ID, []model.CrawledRecord{{Name: "A", Source: "primary_search"}})
	require.NoError(t, err)
	_, err = st.SaveCrawled(ctx, s2.ID, []model.CrawledRecord{{Name: "B", Source: "primary_search"}})
	require.NoError(t, err)

	listed, err := st.ListCrawled(ctx, s1.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "A", listed[0].Name)
}

// --- Merge results ---

func TestSQLite_SaveMergeResult_And_Get(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, 1)
	require.NoError(t, err)

	result := &merge.Result{
		MergedData: []model.MergedRecord{
			{Name: "강남 피트니스", Address: "서울 강남구 테헤란로 1", Source: "baseline + primary_search", Confidence: 0.9},
		},
		Statistics: merge.Statistics{TotalProcessed: 1, SuccessfullyMerged: 1, QualityScore: 0.9},
		Conflicts: []model.Conflict{
			{RecordKey: "강남 피트니스", Field: "phone", BaselineValue: "02-1", CrawledValue: "02-2", Resolution: "baseline wins"},
		},
	}
	err = st.SaveMergeResult(ctx, sess.ID, result)
	require.NoError(t, err)

	fetched, err := st.GetMergeResult(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, 1, fetched.Statistics.SuccessfullyMerged)
	require.Len(t, fetched.MergedData, 1)
	assert.Equal(t, "baseline + primary_search", fetched.MergedData[0].Source)
	require.Len(t, fetched.Conflicts, 1)
	assert.Equal(t, "baseline wins", fetched.Conflicts[0].Resolution)
}

func TestSQLite_GetMergeResult_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	fetched, err := st.GetMergeResult(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, fetched)
}

func TestSQLite_ListMerged_UpsertAcrossSessions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	s1, err := st.CreateSession(ctx, 1)
	require.NoError(t, err)
	err = st.SaveMergeResult(ctx, s1.ID, &merge.Result{
		MergedData: []model.MergedRecord{
			{Name: "강남 피트니스", Address: "서울 강남구 테헤란로 1", Phone: "02-111-1111", Source: "baseline"},
		},
	})
	require.NoError(t, err)

	// A later session re-merges the same facility with more data. The merged
	// record is keyed by normalized name and address, so it replaces the old row.
	s2, err := st.CreateSession(ctx, 1)
	require.NoError(t, err)
	err = st.SaveMergeResult(ctx, s2.ID, &merge.Result{
		MergedData: []model.MergedRecord{
			{Name: "강남 피트니스", Address: "서울 강남구 테헤란로 1", Phone: "02-222-2222", Source: "baseline + primary_search"},
		},
	})
	require.NoError(t, err)

	merged, err := st.ListMerged(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "02-222-2222", merged[0].Phone)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.Migrate(context.Background())
	require.NoError(t, err)
}
