package similarity

import "github.com/gymdex/gymdex-cli/internal/model"

// Confidence scores a crawled record's completeness as a single scalar capped
// at 1.0. Each present field group contributes its weight: phone 0.3,
// operating hours 0.2, any price 0.2, rating 0.1, facilities 0.1, extra
// mined sentences 0.1.
func Confidence(r *model.CrawledRecord) float64 {
	if r == nil {
		return 0
	}
	score := 0.0
	if r.Phone != "" {
		score += 0.3
	}
	if r.HasHours() {
		score += 0.2
	}
	if r.HasPrice() {
		score += 0.2
	}
	if r.Rating != "" {
		score += 0.1
	}
	if len(r.Facilities) > 0 {
		score += 0.1
	}
	if len(r.Sentences) > 0 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// LowQualityThreshold marks a found-but-thin primary result: the chain keeps
// it as the best candidate so far but still attempts further fallbacks.
const LowQualityThreshold = 0.3

// qualityWeights drive the merged-record completeness score. Each term is
// included only when the underlying value is present; the total is normalized
// by the sum of included weights.
var qualityWeights = []struct {
	weight  float64
	present func(*model.MergedRecord) bool
	value   func(*model.MergedRecord) float64
}{
	{0.2, func(m *model.MergedRecord) bool { return m.Name != "" }, nil},
	{0.2, func(m *model.MergedRecord) bool { return m.Address != "" }, nil},
	{0.15, func(m *model.MergedRecord) bool { return m.Phone != "" }, nil},
	{0.1, func(m *model.MergedRecord) bool { return m.Rating != "" }, nil},
	{0.1, func(m *model.MergedRecord) bool { return m.ReviewCount != "" }, nil},
	{0.1, func(m *model.MergedRecord) bool { return true }, func(m *model.MergedRecord) float64 { return m.Confidence }},
}

// Quality scores one merged record's completeness in [0,1].
func Quality(m *model.MergedRecord) float64 {
	if m == nil {
		return 0
	}
	var total, included float64
	for _, w := range qualityWeights {
		if !w.present(m) {
			continue
		}
		included += w.weight
		if w.value != nil {
			total += w.weight * w.value(m)
		} else {
			total += w.weight
		}
	}
	if included == 0 {
		return 0
	}
	score := total / included
	if score > 1.0 {
		score = 1.0
	}
	return score
}
