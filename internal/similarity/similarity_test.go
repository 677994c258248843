package similarity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gymdex/gymdex-cli/internal/model"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "abcgym", Normalize("ABC   Gym"))
	assert.Equal(t, "abcgym", Normalize(" abc\tgym\n"))
	assert.Equal(t, "", Normalize("   "))
}

func TestDedupKey(t *testing.T) {
	a := DedupKey("ABC Gym", "12 Main St")
	b := DedupKey("abc   gym", "12  main st")
	assert.Equal(t, a, b)
	assert.Equal(t, "abcgym-12mainst", a)
}

func TestString_ExactAfterNormalization(t *testing.T) {
	assert.Equal(t, 1.0, String("ABC Gym", "abc   gym"))
}

func TestString_Containment(t *testing.T) {
	assert.Equal(t, 0.8, String("ABC Gym Fitness", "abc gym"))
}

func TestString_EditDistance(t *testing.T) {
	// "abcd" vs "abce": distance 1, max len 4.
	got := String("abcd", "abce")
	assert.InDelta(t, 0.75, got, 0.001)
}

func TestString_Empty(t *testing.T) {
	assert.Equal(t, 0.0, String("", "abc"))
	assert.Equal(t, 0.0, String("abc", ""))
}

func TestPhone(t *testing.T) {
	assert.Equal(t, 1.0, Phone("02-555-1234", "025551234"))
	assert.Equal(t, 0.9, Phone("555-1234", "02-555-1234"))
	assert.Equal(t, 0.0, Phone("555-1234", "777-9999"))
	assert.Equal(t, 0.0, Phone("", "555-1234"))
}

func TestRecord_Weighted(t *testing.T) {
	// Identical name and address, matching phone: full score, capped at 1.
	got := Record("A Gym", "X", "555-1234", "A Gym", "X", "5551234")
	assert.InDelta(t, 1.0, got, 0.001)

	// Missing phones drop the phone component from the normalization, so
	// identical name and address still make a confident match.
	got = Record("A Gym", "X", "", "A Gym", "X", "555-1234")
	assert.InDelta(t, 1.0, got, 0.001)

	// Identical name only.
	got = Record("A Gym", "", "", "A Gym", "", "")
	assert.InDelta(t, 1.0, got, 0.001)

	// Different names, nothing else to go on.
	got = Record("A Gym", "", "", "Completely Other", "", "")
	assert.Less(t, got, 0.5)
}

func TestConfidence_Weights(t *testing.T) {
	rec := &model.CrawledRecord{
		Name:      "A Gym",
		CrawledAt: time.Now(),
	}
	assert.Equal(t, 0.0, Confidence(rec))

	rec.Phone = "555-1234"
	assert.InDelta(t, 0.3, Confidence(rec), 0.001)

	rec.OpenHour = "06:00"
	assert.InDelta(t, 0.5, Confidence(rec), 0.001)

	rec.MembershipPrice = "50000"
	assert.InDelta(t, 0.7, Confidence(rec), 0.001)

	rec.Rating = "4.5"
	rec.Facilities = []string{"sauna"}
	rec.Sentences = []string{"24 hour access"}
	assert.InDelta(t, 1.0, Confidence(rec), 0.001)
}

func TestConfidence_CappedAtOne(t *testing.T) {
	rec := &model.CrawledRecord{
		Phone:           "1",
		OpenHour:        "06:00",
		CloseHour:       "23:00",
		MembershipPrice: "1",
		PTPrice:         "2",
		Rating:          "5",
		Facilities:      []string{"a", "b"},
		Sentences:       []string{"s"},
	}
	got := Confidence(rec)
	assert.LessOrEqual(t, got, 1.0)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestQuality_NormalizedByIncludedWeights(t *testing.T) {
	// Only name + confidence present: (0.2 + 0.1*0.9) / 0.3.
	m := &model.MergedRecord{Name: "A Gym", Confidence: 0.9}
	assert.InDelta(t, (0.2+0.09)/0.3, Quality(m), 0.001)

	full := &model.MergedRecord{
		Name:        "A Gym",
		Address:     "X",
		Phone:       "555",
		Rating:      "4.5",
		ReviewCount: "10",
		Confidence:  1.0,
	}
	assert.InDelta(t, 1.0, Quality(full), 0.001)
}
