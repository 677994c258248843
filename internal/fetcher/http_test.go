package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"

	"github.com/gymdex/gymdex-cli/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	})
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>Iron Gym</body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	page, err := f.FetchPage(context.Background(), srv.URL+"/search?q=iron+gym")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, page.Body, "Iron Gym")
	assert.Empty(t, page.Charset)
}

func TestFetchPageDecodesEUCKR(t *testing.T) {
	encoded, err := korean.EUCKR.NewEncoder().Bytes([]byte("<html>서울 헬스장</html>"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=euc-kr")
		w.Write(encoded)
	}))
	defer srv.Close()

	f := newTestFetcher()
	page, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, page.Body, "서울 헬스장")
	assert.Equal(t, "euc-kr", page.Charset)
}

func TestFetchPageBlockedNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsBlocked(err))
	assert.Equal(t, int32(1), calls.Load(), "blocked responses must not be retried")
}

func TestFetchPageCaptchaPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>Please complete the reCAPTCHA to continue</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsBlocked(err))
}

func TestFetchPageRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html>recovered</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	page, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, page.Body, "recovered")
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL+"/data.json")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file content here"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	path := filepath.Join(t.TempDir(), "out.txt")

	n, err := f.DownloadToFile(context.Background(), srv.URL+"/file", path)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file content here", string(data))
}

func TestAdaptiveLimiter(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 1)

	lim.OnSuccess()
	assert.InDelta(t, 12.0, float64(lim.Limit()), 0.01)

	for n := 0; n < 10; n++ {
		lim.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(lim.Limit()), 0.01, "rate caps at 2x initial")

	lim.OnRateLimit()
	assert.InDelta(t, 10.0, float64(lim.Limit()), 0.01)

	for n := 0; n < 10; n++ {
		lim.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(lim.Limit()), 0.01, "rate floors at initial/4")
}
