// Package monitoring provides the performance monitor fed by the adaptive
// batch processor. The monitor is an explicit object passed by reference into
// its consumers; there is no process-wide singleton.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a point-in-time view of the monitor's counters.
type Snapshot struct {
	BatchAttempts       int64 `json:"batch_attempts"`
	BatchSuccesses      int64 `json:"batch_successes"`
	BatchFailures       int64 `json:"batch_failures"`
	IndividualRetries   int64 `json:"individual_retries"`
	IndividualRescues   int64 `json:"individual_rescues"`
	FallbackSynthesized int64 `json:"fallback_synthesized"`
	SizeIncreases       int64 `json:"size_increases"`
	SizeReductions      int64 `json:"size_reductions"`
	CourtesyDelays      int64 `json:"courtesy_delays"`

	TotalBatchTime   time.Duration `json:"total_batch_time"`
	AverageBatchTime time.Duration `json:"average_batch_time"`
	CollectedAt      time.Time     `json:"collected_at"`
}

// Monitor accumulates batch processing counters. Safe for concurrent use so
// a batch function that fans out internally can record against it.
type Monitor struct {
	mu sync.Mutex

	batchAttempts       int64
	batchSuccesses      int64
	batchFailures       int64
	individualRetries   int64
	individualRescues   int64
	fallbackSynthesized int64
	sizeIncreases       int64
	sizeReductions      int64
	courtesyDelays      int64
	totalBatchTime      time.Duration

	promBatches   *prometheus.CounterVec
	promRetries   prometheus.Counter
	promFallbacks prometheus.Counter
	promBatchSecs prometheus.Histogram
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Register attaches prometheus collectors to the given registerer. Optional:
// an unregistered monitor still accumulates its own counters.
func (m *Monitor) Register(reg prometheus.Registerer) error {
	m.promBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymdex_batches_total",
		Help: "Batches processed, by outcome.",
	}, []string{"outcome"})
	m.promRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gymdex_individual_retries_total",
		Help: "Items retried one-by-one after a batch failure.",
	})
	m.promFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gymdex_fallback_records_total",
		Help: "Synthesized fallback records for items that failed every attempt.",
	})
	m.promBatchSecs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gymdex_batch_duration_seconds",
		Help:    "Wall time per batch.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	for _, c := range []prometheus.Collector{m.promBatches, m.promRetries, m.promFallbacks, m.promBatchSecs} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordBatch records one batch attempt and its wall time.
func (m *Monitor) RecordBatch(success bool, elapsed time.Duration) {
	m.mu.Lock()
	m.batchAttempts++
	if success {
		m.batchSuccesses++
	} else {
		m.batchFailures++
	}
	m.totalBatchTime += elapsed
	m.mu.Unlock()

	if m.promBatches != nil {
		outcome := "failure"
		if success {
			outcome = "success"
		}
		m.promBatches.WithLabelValues(outcome).Inc()
		m.promBatchSecs.Observe(elapsed.Seconds())
	}
}

// RecordIndividualRetry records one item entering the individual fallback phase.
func (m *Monitor) RecordIndividualRetry(rescued bool) {
	m.mu.Lock()
	m.individualRetries++
	if rescued {
		m.individualRescues++
	}
	m.mu.Unlock()

	if m.promRetries != nil {
		m.promRetries.Inc()
	}
}

// RecordFallbackRecord records a synthesized fallback record.
func (m *Monitor) RecordFallbackRecord() {
	m.mu.Lock()
	m.fallbackSynthesized++
	m.mu.Unlock()

	if m.promFallbacks != nil {
		m.promFallbacks.Inc()
	}
}

// RecordSizeChange records an adaptive batch size adjustment.
func (m *Monitor) RecordSizeChange(increased bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if increased {
		m.sizeIncreases++
	} else {
		m.sizeReductions++
	}
}

// RecordCourtesyDelay records one jittered inter-batch delay.
func (m *Monitor) RecordCourtesyDelay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courtesyDelays++
}

// SnapshotNow returns a copy of the current counters.
func (m *Monitor) SnapshotNow() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		BatchAttempts:       m.batchAttempts,
		BatchSuccesses:      m.batchSuccesses,
		BatchFailures:       m.batchFailures,
		IndividualRetries:   m.individualRetries,
		IndividualRescues:   m.individualRescues,
		FallbackSynthesized: m.fallbackSynthesized,
		SizeIncreases:       m.sizeIncreases,
		SizeReductions:      m.sizeReductions,
		CourtesyDelays:      m.courtesyDelays,
		TotalBatchTime:      m.totalBatchTime,
		CollectedAt:         time.Now().UTC(),
	}
	if m.batchAttempts > 0 {
		snap.AverageBatchTime = m.totalBatchTime / time.Duration(m.batchAttempts)
	}
	return snap
}

// Reset zeroes all counters. Session boundaries reset the monitor so each
// run reports from a clean slate.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchAttempts = 0
	m.batchSuccesses = 0
	m.batchFailures = 0
	m.individualRetries = 0
	m.individualRescues = 0
	m.fallbackSynthesized = 0
	m.sizeIncreases = 0
	m.sizeReductions = 0
	m.courtesyDelays = 0
	m.totalBatchTime = 0
}
