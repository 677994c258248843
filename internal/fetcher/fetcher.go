// Package fetcher downloads search result pages and baseline registry
// datasets. Page fetches carry block detection and adaptive rate limiting;
// dataset ingest supports HTTP, FTP, JSON, CSV, and XLSX sources.
package fetcher

import (
	"context"
	"io"
)

// Page is the result of fetching one search results page.
type Page struct {
	URL        string
	StatusCode int
	Body       string
	// Charset is the source charset the body was decoded from, when it was
	// not already UTF-8.
	Charset string
}

// PageFetcher fetches a single results page. A detected anti-bot block is
// reported as a resilience.BlockedError, not a Page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*Page, error)
}

// Downloader retrieves remote baseline dataset files.
type Downloader interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
