package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/resilience"
)

type mockStrategy struct {
	name      string
	priority  int
	available bool
	rec       *model.CrawledRecord
	err       error
	calls     int
}

func (m *mockStrategy) Name() string      { return m.name }
func (m *mockStrategy) Priority() int     { return m.priority }
func (m *mockStrategy) IsAvailable() bool { return m.available }

func (m *mockStrategy) Execute(context.Context, string, string) (*model.CrawledRecord, error) {
	m.calls++
	return m.rec, m.err
}

func goodRecord(conf float64) *model.CrawledRecord {
	return &model.CrawledRecord{
		Name:       "아이언짐",
		Phone:      "02-555-1234",
		OpenHour:   "06:00",
		Source:     "test",
		Confidence: conf,
		CrawledAt:  time.Now(),
	}
}

func TestChainFirstSuccessStops(t *testing.T) {
	first := &mockStrategy{name: "first", priority: 0, available: true, rec: goodRecord(0.8)}
	second := &mockStrategy{name: "second", priority: 1, available: true, rec: goodRecord(0.9)}

	chain := NewChain(first, second)
	rec, attempts, err := chain.Run(context.Background(), "아이언짐", "서울특별시 강남구")
	require.NoError(t, err)
	assert.Equal(t, 0.8, rec.Confidence)
	assert.Len(t, attempts, 1)
	assert.Zero(t, second.calls)
}

func TestChainSortsByPriority(t *testing.T) {
	low := &mockStrategy{name: "low", priority: 5, available: true, rec: goodRecord(0.5)}
	high := &mockStrategy{name: "high", priority: 1, available: true, rec: goodRecord(0.7)}

	chain := NewChain(low, high)
	rec, _, err := chain.Run(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Equal(t, 0.7, rec.Confidence)
	assert.Zero(t, low.calls)
}

func TestChainSkipsUnavailable(t *testing.T) {
	down := &mockStrategy{name: "down", priority: 0, available: false, rec: goodRecord(0.9)}
	up := &mockStrategy{name: "up", priority: 1, available: true, rec: goodRecord(0.6)}

	chain := NewChain(down, up)
	rec, attempts, err := chain.Run(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Equal(t, 0.6, rec.Confidence)
	assert.Zero(t, down.calls)
	assert.Len(t, attempts, 1, "skipped strategies log no attempt")
}

func TestChainLowQualityKeepsTrying(t *testing.T) {
	weak := &mockStrategy{name: "weak", priority: 0, available: true, rec: goodRecord(0.2)}
	strong := &mockStrategy{name: "strong", priority: 1, available: true, rec: goodRecord(0.8)}

	chain := NewChain(weak, strong)
	rec, attempts, err := chain.Run(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Equal(t, 0.8, rec.Confidence)
	assert.Len(t, attempts, 2)
	assert.Equal(t, 1, weak.calls)
}

func TestChainLowQualityBestWhenNothingBetter(t *testing.T) {
	weak := &mockStrategy{name: "weak", priority: 0, available: true, rec: goodRecord(0.2)}
	failing := &mockStrategy{name: "failing", priority: 1, available: true, err: resilience.NewInvalidShapeError("nope")}

	chain := NewChain(weak, failing)
	rec, _, err := chain.Run(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Equal(t, 0.2, rec.Confidence, "the low quality candidate still wins over nothing")
}

func TestChainBasicInfoGuarantee(t *testing.T) {
	failing := &mockStrategy{name: "failing", priority: 0, available: true, err: resilience.NewInvalidShapeError("nope")}

	chain := NewDefaultChain(failing)
	rec, _, err := chain.Run(context.Background(), "유령짐", "서울특별시 중구")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "basic_info", rec.Source)
	assert.Equal(t, 0.1, rec.Confidence)
	assert.Equal(t, "유령짐", rec.Name)
	assert.Equal(t, "서울특별시 중구", rec.Address)
}

func TestChainExhausted(t *testing.T) {
	failing := &mockStrategy{name: "failing", priority: 0, available: true, err: resilience.NewInvalidShapeError("nope")}

	chain := NewChain(failing)
	rec, _, err := chain.Run(context.Background(), "x", "y")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, resilience.ErrChainExhausted)
}

func TestChainDisabledPlaceholdersNeverRun(t *testing.T) {
	chain := NewDefaultChain(&mockStrategy{name: "failing", priority: 0, available: true, err: resilience.NewInvalidShapeError("nope")})

	_, attempts, err := chain.Run(context.Background(), "x", "y")
	require.NoError(t, err)
	for _, a := range attempts {
		assert.NotEqual(t, "cache_lookup", a.EngineName)
		assert.NotEqual(t, "places_api", a.EngineName)
	}
}

func TestChainBreakerOpensAfterRepeatedFailures(t *testing.T) {
	failing := &mockStrategy{name: "failing", priority: 0, available: true, err: resilience.NewInvalidShapeError("nope")}

	chain := NewChain(failing)
	for n := 0; n < 5; n++ {
		_, _, err := chain.Run(context.Background(), "x", "y")
		assert.Error(t, err)
	}
	assert.Equal(t, 5, failing.calls)

	// Breaker is open now; the strategy is skipped entirely.
	_, _, err := chain.Run(context.Background(), "x", "y")
	assert.ErrorIs(t, err, resilience.ErrChainExhausted)
	assert.Equal(t, 5, failing.calls)
}

func TestChainAttemptLog(t *testing.T) {
	failing := &mockStrategy{name: "failing", priority: 0, available: true, err: resilience.NewInvalidShapeError("nope")}
	winning := &mockStrategy{name: "winning", priority: 1, available: true, rec: goodRecord(0.9)}

	chain := NewChain(failing, winning)
	_, attempts, err := chain.Run(context.Background(), "x", "y")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "failing", attempts[0].EngineName)
	assert.False(t, attempts[0].Success)
	assert.Equal(t, "winning", attempts[1].EngineName)
	assert.True(t, attempts[1].Success)
	assert.Equal(t, 0.9, attempts[1].Confidence)
}

func TestUsable(t *testing.T) {
	assert.False(t, Usable(nil))
	assert.False(t, Usable(&model.CrawledRecord{Name: "짐"}))
	assert.False(t, Usable(&model.CrawledRecord{Phone: "02-555-1234"}))
	assert.True(t, Usable(&model.CrawledRecord{Name: "짐", Phone: "02-555-1234"}))
	assert.True(t, Usable(&model.CrawledRecord{Name: "짐", OpenHour: "06:00"}))
	assert.True(t, Usable(&model.CrawledRecord{Name: "짐", DayPassPrice: "10,000원"}))
	assert.True(t, Usable(&model.CrawledRecord{Name: "짐", Facilities: []string{"주차"}}))
}

func TestChainQualityThresholdOverride(t *testing.T) {
	first := &mockStrategy{name: "first", priority: 0, available: true, rec: goodRecord(0.5)}
	second := &mockStrategy{name: "second", priority: 1, available: true, rec: goodRecord(0.9)}

	// With the threshold raised above the first result's confidence, the
	// chain keeps going and settles on the stronger later result.
	chain := NewChain(first, second).WithQualityThreshold(0.6)
	rec, attempts, err := chain.Run(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Equal(t, 0.9, rec.Confidence)
	assert.Len(t, attempts, 2)
}
