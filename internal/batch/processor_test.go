package batch

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/monitoring"
	"github.com/gymdex/gymdex-cli/internal/resilience"
)

func noSleep(ctx context.Context, min, max time.Duration) error {
	return ctx.Err()
}

func candidates(n int) []model.Candidate {
	items := make([]model.Candidate, n)
	for i := range items {
		items[i] = model.Candidate{
			Name:    "Gym " + string(rune('A'+i)),
			Address: "Addr " + string(rune('A'+i)),
		}
	}
	return items
}

// okBatch returns one good record per candidate.
func okBatch(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
	out := make([]model.CrawledRecord, len(chunk))
	for i, c := range chunk {
		out[i] = model.CrawledRecord{Name: c.Name, Address: c.Address, Source: "test", Confidence: 0.8}
	}
	return out, nil
}

func newTestProcessor(cfg Config) (*Processor, *monitoring.Monitor) {
	mon := monitoring.NewMonitor()
	return NewProcessor(cfg, mon).WithSleep(noSleep), mon
}

func TestProcess_AllSuccess(t *testing.T) {
	p, _ := newTestProcessor(Config{InitialBatchSize: 4})
	items := candidates(10)

	res, err := p.Process(context.Background(), items, okBatch)
	require.NoError(t, err)

	assert.Len(t, res.Results, len(items))
	assert.Equal(t, res.SuccessfulBatches, res.TotalBatches)
	assert.Zero(t, res.FailedBatches)
	// Input order preserved.
	for i, r := range res.Results {
		assert.Equal(t, items[i].Name, r.Name)
	}
}

func TestProcess_BatchSizeGrowsOnSuccess(t *testing.T) {
	p, _ := newTestProcessor(Config{InitialBatchSize: 2, MaxBatchSize: 4})
	var sizes []int
	fn := func(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
		sizes = append(sizes, len(chunk))
		return okBatch(ctx, chunk)
	}

	_, err := p.Process(context.Background(), candidates(12), fn)
	require.NoError(t, err)

	// 2 → 3 → 4 → capped at 4.
	assert.Equal(t, []int{2, 3, 4, 3}, sizes)
}

// Scenario: the supplied batch function always fails. After the failure
// streak reaches the maximum the batch size halves once, and the individual
// fallback phase synthesizes a record for every item.
func TestProcess_AlwaysFailing_SynthesizesAllRecords(t *testing.T) {
	p, mon := newTestProcessor(Config{InitialBatchSize: 3, MaxConsecutiveFailures: 3})
	items := candidates(10)

	fn := func(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
		return nil, eris.New("source down")
	}

	res, err := p.Process(context.Background(), items, fn)
	require.NoError(t, err)

	require.Len(t, res.Results, len(items))
	for i, r := range res.Results {
		assert.Equal(t, items[i].Name, r.Name, "order preserved")
		assert.Equal(t, model.SourceEnhancedFallback, r.Source)
		assert.Equal(t, 0.05, r.Confidence)
	}

	snap := mon.SnapshotNow()
	assert.Equal(t, int64(1), snap.SizeReductions, "size halves exactly once in this run")
	assert.Equal(t, int64(len(items)), snap.FallbackSynthesized)
	assert.Equal(t, int64(0), snap.BatchSuccesses)
}

func TestProcess_BatchSizeNeverLeavesBounds(t *testing.T) {
	cfg := Config{InitialBatchSize: 4, MinBatchSize: 1, MaxBatchSize: 8, MaxConsecutiveFailures: 1}
	p, _ := newTestProcessor(cfg)

	fail := true
	fn := func(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
		require.GreaterOrEqual(t, len(chunk), cfg.MinBatchSize)
		require.LessOrEqual(t, len(chunk), cfg.MaxBatchSize)
		fail = !fail
		if fail {
			return nil, eris.New("flaky")
		}
		return okBatch(ctx, chunk)
	}

	res, err := p.Process(context.Background(), candidates(30), fn)
	require.NoError(t, err)
	assert.Len(t, res.Results, 30)
}

func TestProcess_IndividualFallbackRescues(t *testing.T) {
	p, mon := newTestProcessor(Config{InitialBatchSize: 4})

	// Batches of more than one item fail; single items succeed.
	fn := func(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
		if len(chunk) > 1 {
			return nil, eris.New("burst rejected")
		}
		return okBatch(ctx, chunk)
	}

	res, err := p.Process(context.Background(), candidates(4), fn)
	require.NoError(t, err)

	require.Len(t, res.Results, 4)
	for _, r := range res.Results {
		assert.Equal(t, "test", r.Source)
		assert.Equal(t, 0.8, r.Confidence)
	}

	snap := mon.SnapshotNow()
	assert.Equal(t, int64(4), snap.IndividualRetries)
	assert.Equal(t, int64(4), snap.IndividualRescues)
	assert.Equal(t, int64(0), snap.FallbackSynthesized)
}

func TestProcess_MalformedResultIsFailure(t *testing.T) {
	p, _ := newTestProcessor(Config{InitialBatchSize: 2})

	calls := 0
	fn := func(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
		calls++
		if len(chunk) > 1 {
			return nil, nil // malformed: nil slice, nil error
		}
		return okBatch(ctx, chunk)
	}

	res, err := p.Process(context.Background(), candidates(2), fn)
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 1, res.FailedBatches)
}

func TestProcess_WrongResultCountIsFailure(t *testing.T) {
	p, _ := newTestProcessor(Config{InitialBatchSize: 3})

	fn := func(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
		if len(chunk) > 1 {
			return []model.CrawledRecord{{Name: "only one"}}, nil
		}
		return okBatch(ctx, chunk)
	}

	res, err := p.Process(context.Background(), candidates(3), fn)
	require.NoError(t, err)
	assert.Len(t, res.Results, 3)
}

func TestProcess_PanicAbsorbed(t *testing.T) {
	p, _ := newTestProcessor(Config{InitialBatchSize: 2})

	fn := func(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
		if len(chunk) > 1 {
			panic("parser exploded")
		}
		return okBatch(ctx, chunk)
	}

	res, err := p.Process(context.Background(), candidates(2), fn)
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
}

func TestProcess_ConfidenceAlwaysInRange(t *testing.T) {
	p, _ := newTestProcessor(Config{InitialBatchSize: 5})

	fn := func(ctx context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
		if len(chunk) > 1 {
			return nil, eris.New("fail")
		}
		return nil, eris.New("fail individually too")
	}

	res, err := p.Process(context.Background(), candidates(5), fn)
	require.NoError(t, err)
	for _, r := range res.Results {
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
	}
}

func TestProcess_CancellationFlushesPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, _ := newTestProcessor(Config{InitialBatchSize: 2})

	batches := 0
	fn := func(c context.Context, chunk []model.Candidate) ([]model.CrawledRecord, error) {
		batches++
		if batches == 2 {
			cancel()
		}
		return okBatch(c, chunk)
	}

	res, err := p.Process(ctx, candidates(10), fn)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCanceled)
	assert.NotEmpty(t, res.Results, "accumulated results are flushed, not discarded")
	assert.Less(t, len(res.Results), 10)
}

func TestProcess_NilBatchFuncRejected(t *testing.T) {
	p, _ := newTestProcessor(Config{})
	_, err := p.Process(context.Background(), candidates(1), nil)
	assert.Error(t, err)
}

func TestState_Clamping(t *testing.T) {
	cfg := Config{InitialBatchSize: 10, MinBatchSize: 1, MaxBatchSize: 20, MaxConsecutiveFailures: 3}.withDefaults()
	st := newState(cfg)

	st.currentSize = 0
	assert.Equal(t, 1, st.sliceSize(), "zero size clamps to 1 before slicing")

	st.currentSize = -5
	assert.Equal(t, 1, st.sliceSize())

	st.currentSize = 100
	assert.Equal(t, 20, st.sliceSize())

	// Halving floors at min.
	st.currentSize = 1
	for n := 0; n < cfg.MaxConsecutiveFailures; n++ {
		st.recordFailure()
	}
	assert.Equal(t, 1, st.currentSize)
}

func TestState_PartialRecoveryDecrementsStreak(t *testing.T) {
	cfg := Config{MaxConsecutiveFailures: 3}.withDefaults()
	st := newState(cfg)

	st.recordFailure()
	st.recordFailure()
	st.recordPartialRecovery()
	assert.Equal(t, 1, st.consecutiveFailures)

	st.recordPartialRecovery()
	st.recordPartialRecovery()
	assert.Equal(t, 0, st.consecutiveFailures, "floored at zero")
}
