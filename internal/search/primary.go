package search

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/gymdex/gymdex-cli/internal/extract"
	"github.com/gymdex/gymdex-cli/internal/fetcher"
	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/resilience"
)

// PrimarySearch queries the main search engine with up to three query
// variants: the plain name, the name with a domain qualifier, and the name
// with the extracted locality. A block aborts the remaining variants; the
// chain falls through to the fallback strategies instead.
type PrimarySearch struct {
	fetcher   fetcher.PageFetcher
	endpoint  string // query URL template with a single %s
	gazetteer *Gazetteer
}

// NewPrimarySearch creates the primary strategy. endpoint must contain a
// single %s placeholder for the escaped query.
func NewPrimarySearch(f fetcher.PageFetcher, endpoint string, g *Gazetteer) *PrimarySearch {
	if g == nil {
		g = DefaultGazetteer()
	}
	return &PrimarySearch{fetcher: f, endpoint: endpoint, gazetteer: g}
}

func (p *PrimarySearch) Name() string      { return "primary_search" }
func (p *PrimarySearch) Priority() int     { return 0 }
func (p *PrimarySearch) IsAvailable() bool { return true }

// queryVariants builds the ordered query list for a facility. Duplicates
// collapse when the locality is empty or the name already carries the
// qualifier.
func (p *PrimarySearch) queryVariants(name, address string) []string {
	variants := []string{name}

	qualified := name + " 헬스장"
	if !strings.Contains(name, "헬스") && !strings.Contains(strings.ToLower(name), "gym") {
		variants = append(variants, qualified)
	}

	if loc := p.gazetteer.Locality(address); loc != "" && !strings.Contains(name, loc) {
		variants = append(variants, loc+" "+name)
	}

	return variants
}

func (p *PrimarySearch) Execute(ctx context.Context, name, address string) (*model.CrawledRecord, error) {
	var best *model.CrawledRecord
	var lastErr error

	for _, q := range p.queryVariants(name, address) {
		page, err := p.fetcher.FetchPage(ctx, searchURL(p.endpoint, q))
		if err != nil {
			if resilience.IsBlocked(err) {
				zap.L().Warn("primary search blocked, abandoning variants",
					zap.String("query", q),
					zap.Error(err),
				)
				return best, err
			}
			lastErr = err
			continue
		}

		rec, err := extract.FromPage(page.Body, name, p.Name())
		if err != nil {
			lastErr = err
			continue
		}
		if rec.Address == "" {
			rec.Address = address
		}

		if Usable(rec) {
			return rec, nil
		}
		if best == nil || rec.Confidence > best.Confidence {
			best = rec
		}
	}

	if best != nil {
		return best, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, resilience.NewInvalidShapeError("no usable result from any query variant")
}

func searchURL(endpoint, query string) string {
	return strings.Replace(endpoint, "%s", url.QueryEscape(query), 1)
}
