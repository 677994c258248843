// Package merge reconciles authoritative baseline registry records with
// crawled web records into a unified dataset. Baseline values win every
// conflict; crawled data only fills gaps and contributes amenity sets.
package merge

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/similarity"
)

// Options configures a Merger. Zero values take the defaults.
type Options struct {
	// DuplicateThreshold is the weighted similarity a crawled record must
	// exceed to match a baseline record. Default 0.8.
	DuplicateThreshold float64

	// MatchChunkSize bounds concurrent match scoring. Default 5.
	MatchChunkSize int

	// MergeChunkSize sets how many records are merged per progress log line.
	// Default 10.
	MergeChunkSize int

	// ComparableFields are audited for baseline/crawled disagreement.
	// Default phone and address.
	ComparableFields []string
}

func (o Options) withDefaults() Options {
	if o.DuplicateThreshold <= 0 {
		o.DuplicateThreshold = 0.8
	}
	if o.MatchChunkSize <= 0 {
		o.MatchChunkSize = 5
	}
	if o.MergeChunkSize <= 0 {
		o.MergeChunkSize = 10
	}
	if o.ComparableFields == nil {
		o.ComparableFields = []string{"phone", "address", "price"}
	}
	return o
}

// Statistics summarizes one merge run.
type Statistics struct {
	TotalProcessed     int           `json:"total_processed"`
	SuccessfullyMerged int           `json:"successfully_merged"`
	FallbackUsed       int           `json:"fallback_used"`
	DuplicatesRemoved  int           `json:"duplicates_removed"`
	QualityScore       float64       `json:"quality_score"`
	ProcessingTime     time.Duration `json:"processing_time"`
}

// Result carries the merged dataset, run statistics, and the conflict audit
// trail.
type Result struct {
	MergedData []model.MergedRecord `json:"merged_data"`
	Statistics Statistics           `json:"statistics"`
	Conflicts  []model.Conflict     `json:"conflicts"`
}

// Merger reconciles baseline and crawled datasets.
type Merger struct {
	opts Options
}

// New creates a Merger.
func New(opts Options) *Merger {
	return &Merger{opts: opts.withDefaults()}
}

// Merge reconciles the two datasets. Output order is baseline order followed
// by unmatched crawled records in input order. Per-record failures reduce
// that record to a pass-through; they never abort the run.
func (m *Merger) Merge(ctx context.Context, baseline []model.BaselineRecord, crawled []model.CrawledRecord) (*Result, error) {
	start := time.Now()
	log := zap.L().With(zap.String("component", "merger"))

	res := &Result{}

	baseline, removedB := dedupeBaseline(baseline)
	crawled, removedC := dedupeCrawled(crawled)
	res.Statistics.DuplicatesRemoved = removedB + removedC

	matches, err := m.matchAll(ctx, baseline, crawled)
	if err != nil {
		return nil, err
	}

	crawledUsed := make([]bool, len(crawled))

	for i, b := range baseline {
		ci := matches[i]
		if ci >= 0 && crawledUsed[ci] {
			// Another baseline record already claimed this crawled record.
			ci = -1
		}

		if ci < 0 {
			res.MergedData = append(res.MergedData, passThroughBaseline(b))
			res.Statistics.FallbackUsed++
		} else {
			crawledUsed[ci] = true
			merged, conflicts := m.mergeOne(b, crawled[ci])
			res.MergedData = append(res.MergedData, merged)
			res.Conflicts = append(res.Conflicts, conflicts...)
			res.Statistics.SuccessfullyMerged++
		}

		if (i+1)%m.opts.MergeChunkSize == 0 {
			log.Debug("merge progress",
				zap.Int("processed", i+1),
				zap.Int("total", len(baseline)),
			)
		}
	}

	for i, c := range crawled {
		if crawledUsed[i] {
			continue
		}
		res.MergedData = append(res.MergedData, passThroughCrawled(c))
		res.Statistics.SuccessfullyMerged++
	}

	res.Statistics.TotalProcessed = len(res.MergedData)
	res.Statistics.QualityScore = qualityScore(res.MergedData)
	res.Statistics.ProcessingTime = time.Since(start)

	log.Info("merge complete",
		zap.Int("total", res.Statistics.TotalProcessed),
		zap.Int("merged", res.Statistics.SuccessfullyMerged),
		zap.Int("fallback", res.Statistics.FallbackUsed),
		zap.Int("duplicates_removed", res.Statistics.DuplicatesRemoved),
		zap.Int("conflicts", len(res.Conflicts)),
		zap.Float64("quality", res.Statistics.QualityScore),
	)

	return res, nil
}

// matchAll finds, for each baseline record, the index of the best crawled
// record above the duplicate threshold, or -1. Scoring runs concurrently in
// bounded chunks; results land in a preallocated slice so the outcome is
// deterministic.
func (m *Merger) matchAll(ctx context.Context, baseline []model.BaselineRecord, crawled []model.CrawledRecord) ([]int, error) {
	matches := make([]int, len(baseline))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.MatchChunkSize)

	for i := range baseline {
		i := i
		g.Go(func() error {
			b := baseline[i]
			bestIdx, bestScore := -1, 0.0
			for j := range crawled {
				c := crawled[j]
				score := similarity.Record(b.Name, b.Address, b.Phone, c.Name, c.Address, c.Phone)
				if score > bestScore {
					bestIdx, bestScore = j, score
				}
			}
			if bestScore <= m.opts.DuplicateThreshold {
				bestIdx = -1
			}
			matches[i] = bestIdx
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "merge: match phase")
	}
	return matches, nil
}

// mergeOne combines one matched pair. A panic from malformed data reduces
// the pair to a baseline pass-through.
func (m *Merger) mergeOne(b model.BaselineRecord, c model.CrawledRecord) (merged model.MergedRecord, conflicts []model.Conflict) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("merge: record merge panicked, keeping baseline",
				zap.String("name", b.Name),
				zap.Any("panic", r),
			)
			merged = passThroughBaseline(b)
			conflicts = nil
		}
	}()

	key := similarity.DedupKey(b.Name, b.Address)

	merged = model.MergedRecord{
		ID:   b.ID,
		Name: b.Name,

		// Authoritative registry fields are copied untouched.
		BusinessStatus:   b.BusinessStatus,
		ManagementNumber: b.ManagementNumber,
		SiteArea:         b.SiteArea,

		Address: firstNonEmpty(b.Address, c.Address),
		Phone:   firstNonEmpty(b.Phone, c.Phone),

		Rating:          c.Rating,
		ReviewCount:     c.ReviewCount,
		OpenHour:        firstNonEmpty(b.OpenHour, c.OpenHour),
		CloseHour:       firstNonEmpty(b.CloseHour, c.CloseHour),
		MembershipPrice: firstNonEmpty(b.MembershipPrice, c.MembershipPrice),
		PTPrice:         firstNonEmpty(b.PTPrice, c.PTPrice),
		GXPrice:         firstNonEmpty(b.GXPrice, c.GXPrice),
		DayPassPrice:    firstNonEmpty(b.DayPassPrice, c.DayPassPrice),
		MinimumPrice:    firstNonEmpty(b.MinimumPrice, c.MinimumPrice),
		Website:         firstNonEmpty(b.Website, c.Website),
		Instagram:       firstNonEmpty(b.Instagram, c.Instagram),

		Facilities: unionStrings(nil, c.Facilities),
		Services:   unionStrings(nil, c.Services),

		Source:     unionSources(b.Source, c.Source),
		Confidence: maxConfidence(b.Confidence, c.Confidence),
	}

	for _, field := range m.opts.ComparableFields {
		if field == "price" {
			if bv, cv, ok := priceDisagreement(&b, &c); ok {
				conflicts = append(conflicts, model.Conflict{
					RecordKey:     key,
					Field:         "price",
					BaselineValue: bv,
					CrawledValue:  cv,
					Resolution:    "baseline wins",
				})
			}
			continue
		}
		bv, cv := comparableValue(&b, &c, field)
		if bv != "" && cv != "" && !equivalentValue(field, bv, cv) {
			conflicts = append(conflicts, model.Conflict{
				RecordKey:     key,
				Field:         field,
				BaselineValue: bv,
				CrawledValue:  cv,
				Resolution:    "baseline wins",
			})
		}
	}

	return merged, conflicts
}

func passThroughBaseline(b model.BaselineRecord) model.MergedRecord {
	return model.MergedRecord{
		ID:               b.ID,
		Name:             b.Name,
		Address:          b.Address,
		Phone:            b.Phone,
		BusinessStatus:   b.BusinessStatus,
		ManagementNumber: b.ManagementNumber,
		SiteArea:         b.SiteArea,
		OpenHour:         b.OpenHour,
		CloseHour:        b.CloseHour,
		MembershipPrice:  b.MembershipPrice,
		PTPrice:          b.PTPrice,
		GXPrice:          b.GXPrice,
		DayPassPrice:     b.DayPassPrice,
		MinimumPrice:     b.MinimumPrice,
		Website:          b.Website,
		Instagram:        b.Instagram,
		Source:           b.Source,
		Confidence:       maxConfidence(b.Confidence, 0),
		FallbackUsed:     true,
	}
}

func passThroughCrawled(c model.CrawledRecord) model.MergedRecord {
	return model.MergedRecord{
		Name:            c.Name,
		Address:         c.Address,
		Phone:           c.Phone,
		Rating:          c.Rating,
		ReviewCount:     c.ReviewCount,
		OpenHour:        c.OpenHour,
		CloseHour:       c.CloseHour,
		MembershipPrice: c.MembershipPrice,
		PTPrice:         c.PTPrice,
		GXPrice:         c.GXPrice,
		DayPassPrice:    c.DayPassPrice,
		MinimumPrice:    c.MinimumPrice,
		Facilities:      unionStrings(nil, c.Facilities),
		Services:        unionStrings(nil, c.Services),
		Website:         c.Website,
		Instagram:       c.Instagram,
		Source:          c.Source,
		Confidence:      c.Confidence,
	}
}

func dedupeBaseline(in []model.BaselineRecord) ([]model.BaselineRecord, int) {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, r := range in {
		key := similarity.DedupKey(r.Name, r.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out, len(in) - len(out)
}

func dedupeCrawled(in []model.CrawledRecord) ([]model.CrawledRecord, int) {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, r := range in {
		key := similarity.DedupKey(r.Name, r.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out, len(in) - len(out)
}

func comparableValue(b *model.BaselineRecord, c *model.CrawledRecord, field string) (string, string) {
	switch field {
	case "phone":
		return b.Phone, c.Phone
	case "address":
		return b.Address, c.Address
	case "name":
		return b.Name, c.Name
	default:
		return "", ""
	}
}

// priceDisagreement returns the first price variant both sides hold with
// different values.
func priceDisagreement(b *model.BaselineRecord, c *model.CrawledRecord) (string, string, bool) {
	pairs := [][2]string{
		{b.MembershipPrice, c.MembershipPrice},
		{b.PTPrice, c.PTPrice},
		{b.GXPrice, c.GXPrice},
		{b.DayPassPrice, c.DayPassPrice},
		{b.MinimumPrice, c.MinimumPrice},
	}
	for _, p := range pairs {
		if p[0] != "" && p[1] != "" && similarity.Normalize(p[0]) != similarity.Normalize(p[1]) {
			return p[0], p[1], true
		}
	}
	return "", "", false
}

// equivalentValue suppresses conflicts that are formatting noise rather than
// disagreement.
func equivalentValue(field, a, b string) bool {
	if field == "phone" {
		return similarity.DigitsOnly(a) == similarity.DigitsOnly(b)
	}
	return similarity.Normalize(a) == similarity.Normalize(b)
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func unionStrings(base, extra []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func unionSources(sources ...string) string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range sources {
		for _, part := range strings.Split(s, "+") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return strings.Join(out, " + ")
}

// maxConfidence applies the baseline floor of 0.5 before comparing.
func maxConfidence(baseline, crawled float64) float64 {
	if baseline == 0 {
		baseline = 0.5
	}
	if crawled > baseline {
		return crawled
	}
	return baseline
}

func qualityScore(records []model.MergedRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for i := range records {
		sum += similarity.Quality(&records[i])
	}
	return sum / float64(len(records))
}
