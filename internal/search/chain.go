package search

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/resilience"
	"github.com/gymdex/gymdex-cli/internal/similarity"
)

// Chain runs strategies in priority order until one produces a good result.
// A usable result above the low-quality threshold stops the chain; a usable
// but low-quality result is kept as the best candidate while later
// strategies still get a chance to beat it.
type Chain struct {
	strategies []Strategy
	threshold  float64
}

// NewChain builds a chain from the given strategies, sorted by priority.
// Every non-terminal strategy gets its own circuit breaker.
func NewChain(strategies ...Strategy) *Chain {
	wrapped := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if t, ok := s.(terminal); ok && t.Terminal() {
			wrapped = append(wrapped, s)
			continue
		}
		wrapped = append(wrapped, newBreakerStrategy(s))
	}
	sort.SliceStable(wrapped, func(i, j int) bool {
		return wrapped[i].Priority() < wrapped[j].Priority()
	})
	return &Chain{strategies: wrapped, threshold: similarity.LowQualityThreshold}
}

// NewDefaultChain assembles the standard chain: primary search, simplified
// retry, alternate general search, blog search, alternate engine, basic-info
// synthesis, and the reserved disabled slots.
func NewDefaultChain(primary Strategy, fallbacks ...Strategy) *Chain {
	all := append([]Strategy{primary}, fallbacks...)
	all = append(all, BasicInfoSynthesis{}, NewCacheLookup(), NewPlacesAPI())
	return NewChain(all...)
}

// WithQualityThreshold overrides the confidence a usable result must exceed
// to stop the chain early.
func (c *Chain) WithQualityThreshold(t float64) *Chain {
	if t > 0 {
		c.threshold = t
	}
	return c
}

// Strategies returns the chain's strategies in execution order.
func (c *Chain) Strategies() []Strategy {
	out := make([]Strategy, len(c.strategies))
	copy(out, c.strategies)
	return out
}

// Run executes the chain for one facility. It returns the settled record,
// the per-strategy attempt log, and an error only when every strategy was
// unavailable or failed outright.
func (c *Chain) Run(ctx context.Context, name, address string) (*model.CrawledRecord, []model.SearchAttempt, error) {
	log := zap.L().With(zap.String("facility", name))

	var (
		attempts []model.SearchAttempt
		best     *model.CrawledRecord
	)

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			if best != nil {
				return best, attempts, nil
			}
			return nil, attempts, eris.Wrap(resilience.ErrCanceled, err.Error())
		}

		if !s.IsAvailable() {
			log.Debug("strategy unavailable, skipping", zap.String("strategy", s.Name()))
			continue
		}

		start := time.Now()
		rec, err := s.Execute(ctx, name, address)
		elapsed := time.Since(start)

		attempt := model.SearchAttempt{
			EngineName:     s.Name(),
			Success:        err == nil && rec != nil,
			Record:         rec,
			ProcessingTime: elapsed,
		}
		if rec != nil {
			attempt.Confidence = rec.Confidence
		}
		attempts = append(attempts, attempt)

		if rec != nil && (best == nil || rec.Confidence > best.Confidence) {
			best = rec
		}

		if err != nil {
			log.Debug("strategy failed, trying next",
				zap.String("strategy", s.Name()),
				zap.Bool("blocked", resilience.IsBlocked(err)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			continue
		}

		if rec == nil {
			continue
		}

		if Usable(rec) && rec.Confidence > c.threshold {
			return rec, attempts, nil
		}

		log.Debug("low quality result, continuing down the chain",
			zap.String("strategy", s.Name()),
			zap.Float64("confidence", rec.Confidence),
		)
	}

	if best != nil {
		return best, attempts, nil
	}
	return nil, attempts, resilience.ErrChainExhausted
}
