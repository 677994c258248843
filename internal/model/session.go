package model

import "time"

// SessionStatus represents the current state of a crawl session.
type SessionStatus string

const (
	SessionStatusRunning  SessionStatus = "running"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusFailed   SessionStatus = "failed"
	SessionStatusCanceled SessionStatus = "canceled"
)

// CrawlSession is the persisted history row for one orchestrated crawl run.
type CrawlSession struct {
	ID         string         `json:"id"`
	Status     SessionStatus  `json:"status"`
	Candidates int            `json:"candidates"`
	Result     *SessionResult `json:"result,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// SessionResult summarizes one finished crawl session.
type SessionResult struct {
	CrawledRecords    int           `json:"crawled_records"`
	FallbackRecords   int           `json:"fallback_records"`
	TotalBatches      int           `json:"total_batches"`
	SuccessfulBatches int           `json:"successful_batches"`
	FailedBatches     int           `json:"failed_batches"`
	AverageBatchSize  float64       `json:"average_batch_size"`
	MergedRecords     int           `json:"merged_records"`
	Conflicts         int           `json:"conflicts"`
	QualityScore      float64       `json:"quality_score"`
	Elapsed           time.Duration `json:"elapsed"`
	Error             string        `json:"error,omitempty"`
}
