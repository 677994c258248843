package search

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/gymdex/gymdex-cli/internal/extract"
	"github.com/gymdex/gymdex-cli/internal/fetcher"
	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/resilience"
)

// engineSearch is the shared shape of the fetch-and-extract fallback
// strategies. Each instance differs only in name, priority, endpoint, and
// how it rewrites the query.
type engineSearch struct {
	name     string
	priority int
	endpoint string
	fetcher  fetcher.PageFetcher
	rewrite  func(name, address string) string
}

func (e *engineSearch) Name() string      { return e.name }
func (e *engineSearch) Priority() int     { return e.priority }
func (e *engineSearch) IsAvailable() bool { return true }

func (e *engineSearch) Execute(ctx context.Context, name, address string) (*model.CrawledRecord, error) {
	query := name
	if e.rewrite != nil {
		query = e.rewrite(name, address)
	}

	page, err := e.fetcher.FetchPage(ctx, searchURL(e.endpoint, query))
	if err != nil {
		return nil, err
	}

	rec, err := extract.FromPage(page.Body, name, e.name)
	if err != nil {
		return nil, err
	}
	if rec.Address == "" {
		rec.Address = address
	}
	if !Usable(rec) {
		return nil, resilience.NewInvalidShapeError("no usable result for " + e.name)
	}
	return rec, nil
}

var branchSuffixRe = regexp.MustCompile(`\s*(\(.*?\)|\S+점)\s*$`)

// SimplifyQuery strips branch suffixes and parentheticals and keeps at most
// the first two tokens. "아이언짐 강남점 (2호점)" becomes "아이언짐".
func SimplifyQuery(name string) string {
	for {
		stripped := branchSuffixRe.ReplaceAllString(name, "")
		if stripped == name || stripped == "" {
			break
		}
		name = stripped
	}
	fields := strings.Fields(name)
	if len(fields) > 2 {
		fields = fields[:2]
	}
	return strings.Join(fields, " ")
}

// NewSimplifiedRetry re-queries the primary engine with a simplified name.
func NewSimplifiedRetry(f fetcher.PageFetcher, endpoint string) Strategy {
	return &engineSearch{
		name:     "simplified_retry",
		priority: 1,
		endpoint: endpoint,
		fetcher:  f,
		rewrite: func(name, _ string) string {
			return SimplifyQuery(name)
		},
	}
}

// NewAlternateGeneral queries a second general-purpose engine.
func NewAlternateGeneral(f fetcher.PageFetcher, endpoint string) Strategy {
	return &engineSearch{
		name:     "general_search",
		priority: 2,
		endpoint: endpoint,
		fetcher:  f,
	}
}

// NewBlogSearch queries the blog vertical, where member reviews often carry
// price and hours information that listing pages omit.
func NewBlogSearch(f fetcher.PageFetcher, endpoint string) Strategy {
	return &engineSearch{
		name:     "blog_search",
		priority: 3,
		endpoint: endpoint,
		fetcher:  f,
		rewrite: func(name, _ string) string {
			return name + " 후기"
		},
	}
}

// NewAlternateEngine queries a different engine entirely, for when the
// primary engine's whole network is blocking.
func NewAlternateEngine(f fetcher.PageFetcher, endpoint string) Strategy {
	return &engineSearch{
		name:     "alternate_engine",
		priority: 4,
		endpoint: endpoint,
		fetcher:  f,
	}
}

// BasicInfoSynthesis is the terminal strategy: it always succeeds, emitting
// a minimal record from the inputs at the floor confidence. It carries no
// circuit breaker so the chain can always settle on something.
type BasicInfoSynthesis struct{}

func (BasicInfoSynthesis) Name() string      { return "basic_info" }
func (BasicInfoSynthesis) Priority() int     { return 5 }
func (BasicInfoSynthesis) IsAvailable() bool { return true }
func (BasicInfoSynthesis) Terminal() bool    { return true }

func (BasicInfoSynthesis) Execute(_ context.Context, name, address string) (*model.CrawledRecord, error) {
	return &model.CrawledRecord{
		Name:       name,
		Address:    address,
		Source:     "basic_info",
		Confidence: 0.1,
		CrawledAt:  time.Now().UTC(),
	}, nil
}

// disabledStrategy is a placeholder slot for sources that are wired into the
// chain order but not yet implemented. IsAvailable is always false, so the
// chain skips them.
type disabledStrategy struct {
	name     string
	priority int
}

func (d *disabledStrategy) Name() string      { return d.name }
func (d *disabledStrategy) Priority() int     { return d.priority }
func (d *disabledStrategy) IsAvailable() bool { return false }

func (d *disabledStrategy) Execute(context.Context, string, string) (*model.CrawledRecord, error) {
	return nil, resilience.NewInvalidShapeError(d.name + " is disabled")
}

// NewCacheLookup is a reserved slot for a local result cache.
func NewCacheLookup() Strategy { return &disabledStrategy{name: "cache_lookup", priority: 6} }

// NewPlacesAPI is a reserved slot for a commercial places API client.
func NewPlacesAPI() Strategy { return &disabledStrategy{name: "places_api", priority: 7} }
