// Package session orchestrates one full crawl run: baseline candidates are
// driven through the fallback search chain in adaptive batches, the crawled
// output is merged against the baseline, and everything is persisted under a
// single session row.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gymdex/gymdex-cli/internal/batch"
	"github.com/gymdex/gymdex-cli/internal/merge"
	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/resilience"
	"github.com/gymdex/gymdex-cli/internal/store"
)

// Searcher resolves one candidate to its best crawled record. Satisfied by
// search.Chain.
type Searcher interface {
	Run(ctx context.Context, name, address string) (*model.CrawledRecord, []model.SearchAttempt, error)
}

// Options tunes one crawl run.
type Options struct {
	// Limit caps how many baseline candidates are crawled. Zero means all.
	Limit int

	// InnerConcurrency bounds the goroutines fanned out inside one batch.
	// Zero means one goroutine per chunk item.
	InnerConcurrency int
}

// Runner executes crawl sessions. At most one session runs at a time.
type Runner struct {
	store     store.Store
	chain     Searcher
	processor *batch.Processor
	merger    *merge.Merger

	running atomic.Bool
}

// NewRunner wires the session orchestrator.
func NewRunner(st store.Store, chain Searcher, processor *batch.Processor, merger *merge.Merger) *Runner {
	return &Runner{
		store:     st,
		chain:     chain,
		processor: processor,
		merger:    merger,
	}
}

// Running reports whether a session is currently in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run executes one crawl session over the stored baseline and returns the
// completed session row. A second concurrent call fails with
// resilience.ErrSessionAlreadyRunning.
func (r *Runner) Run(ctx context.Context, opts Options) (*model.CrawlSession, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, resilience.ErrSessionAlreadyRunning
	}
	defer r.running.Store(false)

	log := zap.L().With(zap.String("component", "session.runner"))
	start := time.Now()

	baseline, err := r.store.ListBaseline(ctx, opts.Limit, 0)
	if err != nil {
		return nil, eris.Wrap(err, "session: load baseline")
	}
	if len(baseline) == 0 {
		return nil, eris.New("session: no baseline records to crawl")
	}

	candidates := make([]model.Candidate, len(baseline))
	for i, b := range baseline {
		candidates[i] = model.Candidate{Name: b.Name, Address: b.Address}
	}

	sess, err := r.store.CreateSession(ctx, len(candidates))
	if err != nil {
		return nil, eris.Wrap(err, "session: create")
	}
	log.Info("session started",
		zap.String("session_id", sess.ID),
		zap.Int("candidates", len(candidates)),
	)

	batchRes, runErr := r.processor.Process(ctx, candidates, r.batchFunc(opts.InnerConcurrency))
	if runErr != nil {
		r.fail(ctx, sess.ID, batchRes, start, runErr)
		return nil, eris.Wrap(runErr, "session: batch processing")
	}

	if _, err := r.store.SaveCrawled(ctx, sess.ID, batchRes.Results); err != nil {
		r.fail(ctx, sess.ID, batchRes, start, err)
		return nil, eris.Wrap(err, "session: save crawled")
	}

	mergeRes, err := r.merger.Merge(ctx, baseline, batchRes.Results)
	if err != nil {
		r.fail(ctx, sess.ID, batchRes, start, err)
		return nil, eris.Wrap(err, "session: merge")
	}
	if err := r.store.SaveMergeResult(ctx, sess.ID, mergeRes); err != nil {
		r.fail(ctx, sess.ID, batchRes, start, err)
		return nil, eris.Wrap(err, "session: save merge result")
	}

	result := &model.SessionResult{
		CrawledRecords:    len(batchRes.Results),
		FallbackRecords:   countFallback(batchRes.Results),
		TotalBatches:      batchRes.TotalBatches,
		SuccessfulBatches: batchRes.SuccessfulBatches,
		FailedBatches:     batchRes.FailedBatches,
		AverageBatchSize:  batchRes.AverageBatchSize,
		MergedRecords:     len(mergeRes.MergedData),
		Conflicts:         len(mergeRes.Conflicts),
		QualityScore:      mergeRes.Statistics.QualityScore,
		Elapsed:           time.Since(start),
	}
	if err := r.store.CompleteSession(ctx, sess.ID, model.SessionStatusComplete, result); err != nil {
		return nil, eris.Wrap(err, "session: complete")
	}

	sess.Status = model.SessionStatusComplete
	sess.Result = result
	log.Info("session complete",
		zap.String("session_id", sess.ID),
		zap.Int("crawled", result.CrawledRecords),
		zap.Int("merged", result.MergedRecords),
		zap.Int("conflicts", result.Conflicts),
		zap.Float64("quality_score", result.QualityScore),
		zap.Duration("elapsed", result.Elapsed),
	)
	return sess, nil
}

// batchFunc adapts the search chain into the processor's unit of work. Items
// inside one chunk fan out concurrently; output order matches input order.
// The chunk fails as a whole only when every item fails, which hands the
// whole chunk to the processor's individual fallback phase.
func (r *Runner) batchFunc(concurrency int) batch.BatchFunc {
	return func(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
		results := make([]*model.CrawledRecord, len(chunk))
		errs := make([]error, len(chunk))

		g, gctx := errgroup.WithContext(ctx)
		if concurrency <= 0 || concurrency > len(chunk) {
			concurrency = len(chunk)
		}
		g.SetLimit(concurrency)

		for i, cand := range chunk {
			i, cand := i, cand
			g.Go(func() error {
				rec, _, err := r.chain.Run(gctx, cand.Name, cand.Address)
				if err != nil {
					errs[i] = err
					return nil
				}
				results[i] = rec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var out []model.CrawledRecord
		var firstErr error
		for i, rec := range results {
			if rec != nil {
				out = append(out, *rec)
			} else if firstErr == nil {
				firstErr = errs[i]
			}
		}
		if len(out) == 0 {
			if firstErr == nil {
				firstErr = eris.New("empty chunk result")
			}
			return nil, eris.Wrap(firstErr, "session: all chunk items failed")
		}
		return out, nil
	}
}

func (r *Runner) fail(ctx context.Context, id string, batchRes *batch.Result, start time.Time, cause error) {
	result := &model.SessionResult{
		Elapsed: time.Since(start),
		Error:   cause.Error(),
	}
	if batchRes != nil {
		result.CrawledRecords = len(batchRes.Results)
		result.TotalBatches = batchRes.TotalBatches
		result.SuccessfulBatches = batchRes.SuccessfulBatches
		result.FailedBatches = batchRes.FailedBatches
	}
	status := model.SessionStatusFailed
	if eris.Is(cause, resilience.ErrCanceled) {
		status = model.SessionStatusCanceled
	}
	// Best effort: the session row should not stay "running" forever.
	if err := r.store.CompleteSession(context.WithoutCancel(ctx), id, status, result); err != nil {
		zap.L().Warn("failed to mark session",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
}

func countFallback(records []model.CrawledRecord) int {
	n := 0
	for _, r := range records {
		if r.Source == model.SourceEnhancedFallback {
			n++
		}
	}
	return n
}
