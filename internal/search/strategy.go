// Package search implements the fallback search chain: a primary engine
// with query variants, priority-ordered fallback strategies, and a
// guaranteed basic-info synthesis so a lookup never comes back empty.
package search

import (
	"context"

	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/resilience"
)

// Strategy is one way of finding a facility record. Strategies are tried in
// Priority order (lower first); unavailable strategies are skipped.
type Strategy interface {
	Name() string
	Priority() int
	IsAvailable() bool
	Execute(ctx context.Context, name, address string) (*model.CrawledRecord, error)
}

// terminal marks a strategy that must never be wrapped with a circuit
// breaker, so the chain's no-nil-result guarantee cannot be tripped open.
type terminal interface {
	Terminal() bool
}

// Usable reports whether a record satisfies the validity predicate: a name
// plus at least one substantive field.
func Usable(rec *model.CrawledRecord) bool {
	if rec == nil || rec.Name == "" {
		return false
	}
	return rec.Phone != "" || rec.HasHours() || rec.HasPrice() || len(rec.Facilities) > 0
}

// breakerStrategy wraps a strategy with a circuit breaker. Repeated failures
// open the breaker and the strategy reports unavailable until cooldown.
type breakerStrategy struct {
	inner   Strategy
	breaker *resilience.CircuitBreaker
}

func newBreakerStrategy(inner Strategy) *breakerStrategy {
	return &breakerStrategy{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
	}
}

func (b *breakerStrategy) Name() string     { return b.inner.Name() }
func (b *breakerStrategy) Priority() int    { return b.inner.Priority() }
func (b *breakerStrategy) IsAvailable() bool {
	return b.inner.IsAvailable() && b.breaker.Allows()
}

func (b *breakerStrategy) Execute(ctx context.Context, name, address string) (*model.CrawledRecord, error) {
	rec, err := b.inner.Execute(ctx, name, address)
	b.breaker.Record(err)
	return rec, err
}
