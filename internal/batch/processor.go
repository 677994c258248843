// Package batch implements the adaptive batch processor that drives candidate
// lookups through the search chain in dynamically-sized batches. Batch sizing
// grows on success, halves after sustained failure, and every failed item is
// retried individually so no candidate is ever dropped.
package batch

import (
	"time"

	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/monitoring"
	"github.com/gymdex/gymdex-cli/internal/resilience"
)

// BatchFunc is the opaque unit of work supplied by the caller. It may fan out
// internally; the processor only controls the outer batch cadence. A nil
// result slice with a nil error is treated as a malformed (failed) batch.
type BatchFunc func(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error)

// Config holds the recognized batch processor options.
type Config struct {
	InitialBatchSize       int
	MinBatchSize           int
	MaxBatchSize           int
	MaxConsecutiveFailures int

	// BatchDelay bounds the jittered courtesy delay between chunks.
	BatchDelayMin time.Duration
	BatchDelayMax time.Duration

	// ItemDelay bounds the jittered delay before each individual retry.
	ItemDelayMin time.Duration
	ItemDelayMax time.Duration

	// LowSuccessRateDelay bounds the extra delay applied when the running
	// success rate falls below LowSuccessRateThreshold.
	LowSuccessRateDelayMin time.Duration
	LowSuccessRateDelayMax time.Duration

	// LowSuccessRateThreshold is a percentage (default 80). A result counts
	// as a success for the rate when its confidence exceeds
	// SuccessConfidenceFloor.
	LowSuccessRateThreshold float64
	SuccessConfidenceFloor  float64
}

// DefaultConfig returns the processor defaults.
func DefaultConfig() Config {
	return Config{
		InitialBatchSize:        10,
		MinBatchSize:            1,
		MaxBatchSize:            20,
		MaxConsecutiveFailures:  3,
		BatchDelayMin:           2 * time.Second,
		BatchDelayMax:           5 * time.Second,
		ItemDelayMin:            1 * time.Second,
		ItemDelayMax:            3 * time.Second,
		LowSuccessRateDelayMin:  5 * time.Second,
		LowSuccessRateDelayMax:  10 * time.Second,
		LowSuccessRateThreshold: 80,
		SuccessConfidenceFloor:  0.1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialBatchSize <= 0 {
		c.InitialBatchSize = d.InitialBatchSize
	}
	if c.MinBatchSize <= 0 {
		c.MinBatchSize = d.MinBatchSize
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.MaxBatchSize < c.MinBatchSize {
		c.MaxBatchSize = c.MinBatchSize
	}
	if c.InitialBatchSize > c.MaxBatchSize {
		c.InitialBatchSize = c.MaxBatchSize
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = d.MaxConsecutiveFailures
	}
	if c.BatchDelayMax <= 0 {
		c.BatchDelayMin, c.BatchDelayMax = d.BatchDelayMin, d.BatchDelayMax
	}
	if c.ItemDelayMax <= 0 {
		c.ItemDelayMin, c.ItemDelayMax = d.ItemDelayMin, d.ItemDelayMax
	}
	if c.LowSuccessRateDelayMax <= 0 {
		c.LowSuccessRateDelayMin, c.LowSuccessRateDelayMax = d.LowSuccessRateDelayMin, d.LowSuccessRateDelayMax
	}
	if c.LowSuccessRateThreshold <= 0 {
		c.LowSuccessRateThreshold = d.LowSuccessRateThreshold
	}
	if c.SuccessConfidenceFloor <= 0 {
		c.SuccessConfidenceFloor = d.SuccessConfidenceFloor
	}
	return c
}

// Result is the outcome of one Process run.
type Result struct {
	Results           []model.CrawledRecord `json:"results"`
	TotalBatches      int                   `json:"total_batches"`
	SuccessfulBatches int                   `json:"successful_batches"`
	FailedBatches     int                   `json:"failed_batches"`
	AverageBatchSize  float64               `json:"average_batch_size"`
	Elapsed           time.Duration         `json:"elapsed"`
}

// Processor runs candidate batches with adaptive sizing and guaranteed
// per-item fallback.
type Processor struct {
	cfg     Config
	monitor *monitoring.Monitor

	// sleep is injectable so tests run without real delays.
	sleep func(ctx context.Context, min, max time.Duration) error
}

// NewProcessor creates a processor feeding counters into the given monitor.
func NewProcessor(cfg Config, monitor *monitoring.Monitor) *Processor {
	if monitor == nil {
		monitor = monitoring.NewMonitor()
	}
	return &Processor{
		cfg:     cfg.withDefaults(),
		monitor: monitor,
		sleep:   resilience.SleepJitter,
	}
}

// WithSleep overrides the jittered sleep for testing.
func (p *Processor) WithSleep(sleep func(ctx context.Context, min, max time.Duration) error) *Processor {
	p.sleep = sleep
	return p
}

// Process drives items through fn in adaptively-sized sequential batches.
// Every input item yields exactly one output record: items whose batch and
// individual attempts both fail get a synthesized fallback record with
// confidence 0.05 and the enhanced_fallback source tag.
//
// Cancellation is checked between batches and between individual retries;
// a canceled run returns the records accumulated so far together with an
// error wrapping resilience.ErrCanceled.
func (p *Processor) Process(ctx context.Context, items []model.Candidate, fn BatchFunc) (*Result, error) {
	if fn == nil {
		return nil, eris.New("batch: nil batch function")
	}

	start := time.Now()
	log := zap.L().With(zap.String("component", "batch.processor"))

	st := newState(p.cfg)
	res := &Result{Results: make([]model.CrawledRecord, 0, len(items))}

	for offset := 0; offset < len(items); {
		if ctx.Err() != nil {
			p.finish(res, start)
			return res, eris.Wrap(resilience.ErrCanceled, "batch: between batches")
		}

		size := st.sliceSize()
		end := offset + size
		if end > len(items) {
			end = len(items)
		}
		chunk := items[offset:end]
		offset = end

		batchStart := time.Now()
		records, err := p.runBatch(ctx, chunk, fn)
		batchElapsed := time.Since(batchStart)
		res.TotalBatches++

		if err == nil {
			res.Results = append(res.Results, records...)
			res.SuccessfulBatches++
			st.recordSuccess()
			p.monitor.RecordBatch(true, batchElapsed)
			if st.grew {
				p.monitor.RecordSizeChange(true)
			}

			log.Debug("batch succeeded",
				zap.Int("batch", res.TotalBatches),
				zap.Int("size", len(chunk)),
				zap.Int("next_size", st.currentSize),
			)

			if p.lowSuccessRate(res.Results) && offset < len(items) {
				log.Warn("success rate below threshold, backing off",
					zap.Float64("threshold_pct", p.cfg.LowSuccessRateThreshold),
				)
				if serr := p.sleep(ctx, p.cfg.LowSuccessRateDelayMin, p.cfg.LowSuccessRateDelayMax); serr != nil {
					p.finish(res, start)
					return res, eris.Wrap(resilience.ErrCanceled, "batch: low-rate delay")
				}
			}
		} else {
			res.FailedBatches++
			halved := st.recordFailure()
			p.monitor.RecordBatch(false, batchElapsed)
			if halved {
				p.monitor.RecordSizeChange(false)
			}

			log.Warn("batch failed, entering individual fallback",
				zap.Int("batch", res.TotalBatches),
				zap.Int("size", len(chunk)),
				zap.Int("next_size", st.currentSize),
				zap.Error(err),
			)

			rescued, canceled := p.individualFallback(ctx, chunk, fn, res)
			if canceled {
				p.finish(res, start)
				return res, eris.Wrap(resilience.ErrCanceled, "batch: individual fallback")
			}
			if rescued*2 >= len(chunk) {
				st.recordPartialRecovery()
			}
		}

		if offset < len(items) {
			p.monitor.RecordCourtesyDelay()
			if serr := p.sleep(ctx, p.cfg.BatchDelayMin, p.cfg.BatchDelayMax); serr != nil {
				p.finish(res, start)
				return res, eris.Wrap(resilience.ErrCanceled, "batch: courtesy delay")
			}
		}
	}

	p.finish(res, start)
	return res, nil
}

// runBatch invokes fn, converting panics and malformed results into errors.
func (p *Processor) runBatch(ctx context.Context, chunk []model.Candidate, fn BatchFunc) (records []model.CrawledRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = eris.Errorf("batch: panic in batch function: %v", r)
		}
	}()

	records, err = fn(ctx, chunk)
	if err != nil {
		return nil, err
	}
	if records == nil {
		return nil, resilience.NewInvalidShapeError("batch function returned nil result")
	}
	if len(records) != len(chunk) {
		return nil, resilience.NewInvalidShapeError("batch function returned wrong result count")
	}
	return records, nil
}

// individualFallback retries each item of a failed chunk alone, strictly
// sequentially, each preceded by its own jittered delay. Items that still
// fail get a synthesized fallback record so the chunk loses nothing.
// Returns the rescue count and whether the run was canceled mid-phase.
func (p *Processor) individualFallback(ctx context.Context, chunk []model.Candidate, fn BatchFunc, res *Result) (rescued int, canceled bool) {
	for _, item := range chunk {
		if ctx.Err() != nil {
			return rescued, true
		}
		if err := p.sleep(ctx, p.cfg.ItemDelayMin, p.cfg.ItemDelayMax); err != nil {
			return rescued, true
		}

		records, err := p.runBatch(ctx, []model.Candidate{item}, fn)
		if err == nil && len(records) == 1 {
			res.Results = append(res.Results, records[0])
			rescued++
			p.monitor.RecordIndividualRetry(true)
			continue
		}

		p.monitor.RecordIndividualRetry(false)
		p.monitor.RecordFallbackRecord()
		res.Results = append(res.Results, model.CrawledRecord{
			Name:       item.Name,
			Address:    item.Address,
			Source:     model.SourceEnhancedFallback,
			Confidence: 0.05,
			CrawledAt:  time.Now().UTC(),
		})
	}
	return rescued, false
}

// lowSuccessRate checks the running share of results with confidence above
// the floor against the configured percentage threshold.
func (p *Processor) lowSuccessRate(results []model.CrawledRecord) bool {
	if len(results) == 0 {
		return false
	}
	good := 0
	for _, r := range results {
		if r.Confidence > p.cfg.SuccessConfidenceFloor {
			good++
		}
	}
	rate := float64(good) / float64(len(results)) * 100
	return rate < p.cfg.LowSuccessRateThreshold
}

func (p *Processor) finish(res *Result, start time.Time) {
	res.Elapsed = time.Since(start)
	if res.TotalBatches > 0 {
		res.AverageBatchSize = float64(len(res.Results)) / float64(res.TotalBatches)
	}
}
