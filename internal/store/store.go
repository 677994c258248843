// Package store persists baseline datasets, crawled records, merge results,
// and crawl session history. Two backends: sqlite for single-node CLI use
// and postgres for shared deployments.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gymdex/gymdex-cli/internal/merge"
	"github.com/gymdex/gymdex-cli/internal/model"
)

// SessionFilter specifies criteria for listing crawl sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the collection pipeline.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, candidates int) (*model.CrawlSession, error)
	CompleteSession(ctx context.Context, id string, status model.SessionStatus, result *model.SessionResult) error
	GetSession(ctx context.Context, id string) (*model.CrawlSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.CrawlSession, error)

	// Baseline dataset
	SaveBaseline(ctx context.Context, records []model.BaselineRecord) (int, error)
	ListBaseline(ctx context.Context, limit, offset int) ([]model.BaselineRecord, error)

	// Crawled records
	SaveCrawled(ctx context.Context, sessionID string, records []model.CrawledRecord) (int, error)
	ListCrawled(ctx context.Context, sessionID string) ([]model.CrawledRecord, error)

	// Merge output
	SaveMergeResult(ctx context.Context, sessionID string, result *merge.Result) error
	GetMergeResult(ctx context.Context, sessionID string) (*merge.Result, error)
	ListMerged(ctx context.Context, limit, offset int) ([]model.MergedRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Pool is the subset of pgxpool.Pool the postgres backend uses. pgxmock's
// pool satisfies it, which keeps the postgres store unit-testable.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}
