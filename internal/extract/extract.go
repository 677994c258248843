// Package extract pulls facility fields out of search result HTML with
// selector and regex heuristics. Pages vary wildly between engines, so
// everything here is best-effort: a miss leaves the field empty and lowers
// the record's confidence.
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/similarity"
)

var (
	phoneRe  = regexp.MustCompile(`0\d{1,2}[-.\s]?\d{3,4}[-.\s]?\d{4}`)
	hoursRe  = regexp.MustCompile(`(\d{1,2}:\d{2})\s*[-~]\s*(\d{1,2}:\d{2})`)
	ratingRe = regexp.MustCompile(`(?:평점|별점|rating)[:\s]*([0-5](?:\.\d)?)`)
	starRe   = regexp.MustCompile(`([0-5]\.\d)\s*(?:점|/\s*5)`)
	reviewRe = regexp.MustCompile(`(?:리뷰|후기|review[s]?)[:\s]*([\d,]+)`)
	priceRe  = regexp.MustCompile(`([\d,]{4,})\s*원`)

	instagramRe = regexp.MustCompile(`(?:instagram\.com|@)([A-Za-z0-9._]{2,30})`)

	// ptTokenRe matches PT/GX only as standalone tokens; "pt" is a common
	// substring of unrelated English words.
	ptTokenRe = regexp.MustCompile(`(?i)\bpt\b`)
	gxTokenRe = regexp.MustCompile(`(?i)\bgx\b`)
)

// facilityKeywords are amenity phrases commonly listed on gym pages. The
// canonical form (the map value) goes into the record.
var facilityKeywords = map[string]string{
	"샤워실":   "샤워실",
	"샤워 시설": "샤워실",
	"주차":    "주차",
	"parking": "주차",
	"사우나":   "사우나",
	"락커":    "락커룸",
	"락커룸":   "락커룸",
	"locker": "락커룸",
	"운동복":   "운동복 대여",
	"수건":    "수건 제공",
	"와이파이":  "와이파이",
	"wifi":   "와이파이",
	"인바디":   "인바디",
}

// serviceKeywords map offered program phrases to canonical service names.
// PT and GX are matched separately as standalone tokens.
var serviceKeywords = map[string]string{
	"퍼스널":     "PT",
	"개인 트레이닝": "PT",
	"그룹 운동":   "GX",
	"필라테스":    "필라테스",
	"요가":      "요가",
	"스피닝":     "스피닝",
	"크로스핏":    "크로스핏",
}

// FromPage extracts a crawled record for the named facility from a result
// page. Returns an error only when the HTML cannot be parsed at all.
func FromPage(body string, name string, source string) (*model.CrawledRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}

	doc.Find("script, style, nav, footer").Remove()

	var blocks []string
	doc.Find("h1, h2, h3, p, li, td, dd, span, div").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text != "" {
			blocks = append(blocks, text)
		}
	})
	flat := strings.Join(blocks, "\n")
	lower := strings.ToLower(flat)

	rec := &model.CrawledRecord{
		Name:      name,
		Source:    source,
		CrawledAt: time.Now().UTC(),
	}

	rec.Phone = phoneRe.FindString(flat)
	rec.Address = findAddress(blocks)

	if m := hoursRe.FindStringSubmatch(flat); m != nil {
		rec.OpenHour = m[1]
		rec.CloseHour = m[2]
	}

	if m := ratingRe.FindStringSubmatch(lower); m != nil {
		rec.Rating = m[1]
	} else if m := starRe.FindStringSubmatch(flat); m != nil {
		rec.Rating = m[1]
	}
	if m := reviewRe.FindStringSubmatch(lower); m != nil {
		rec.ReviewCount = strings.ReplaceAll(m[1], ",", "")
	}

	extractPrices(blocks, rec)

	for phrase, canonical := range facilityKeywords {
		if strings.Contains(lower, phrase) {
			rec.Facilities = appendUnique(rec.Facilities, canonical)
		}
	}
	for phrase, canonical := range serviceKeywords {
		if strings.Contains(lower, phrase) {
			rec.Services = appendUnique(rec.Services, canonical)
		}
	}
	if ptTokenRe.MatchString(flat) {
		rec.Services = appendUnique(rec.Services, "PT")
	}
	if gxTokenRe.MatchString(flat) {
		rec.Services = appendUnique(rec.Services, "GX")
	}

	if m := instagramRe.FindStringSubmatch(flat); m != nil {
		rec.Instagram = m[1]
	}

	rec.Sentences = mineSentences(blocks, name)

	rec.Confidence = similarity.Confidence(rec)
	return rec, nil
}

// findAddress returns the first block that looks like a Korean street
// address: a region prefix plus a road or lot suffix.
func findAddress(blocks []string) string {
	regions := []string{"서울", "부산", "대구", "인천", "광주", "대전", "울산", "세종", "경기", "강원", "충청", "충북", "충남", "전라", "전북", "전남", "경상", "경북", "경남", "제주"}
	for _, b := range blocks {
		if len(b) > 120 {
			continue
		}
		hasRegion := false
		for _, r := range regions {
			if strings.Contains(b, r) {
				hasRegion = true
				break
			}
		}
		if !hasRegion {
			continue
		}
		if strings.Contains(b, "로 ") || strings.Contains(b, "길 ") ||
			strings.HasSuffix(b, "로") || strings.Contains(b, "동 ") {
			return b
		}
	}
	return ""
}

// extractPrices assigns labeled prices to their fields and tracks the
// minimum seen anywhere on the page.
func extractPrices(blocks []string, rec *model.CrawledRecord) {
	assign := func(target *string, block string) {
		if *target != "" {
			return
		}
		if m := priceRe.FindStringSubmatch(block); m != nil {
			*target = m[1] + "원"
		}
	}

	var minVal int
	for _, b := range blocks {
		lb := strings.ToLower(b)
		switch {
		case strings.Contains(lb, "회원권") || strings.Contains(lb, "멤버십") || strings.Contains(lb, "월 이용"):
			assign(&rec.MembershipPrice, b)
		case ptTokenRe.MatchString(b) || strings.Contains(lb, "퍼스널"):
			assign(&rec.PTPrice, b)
		case gxTokenRe.MatchString(b) || strings.Contains(lb, "그룹"):
			assign(&rec.GXPrice, b)
		case strings.Contains(lb, "일일권") || strings.Contains(lb, "일일 이용") || strings.Contains(lb, "당일"):
			assign(&rec.DayPassPrice, b)
		}

		for _, m := range priceRe.FindAllStringSubmatch(b, -1) {
			v := parsePrice(m[1])
			if v <= 0 {
				continue
			}
			if minVal == 0 || v < minVal {
				minVal = v
				rec.MinimumPrice = m[1] + "원"
			}
		}
	}
}

func parsePrice(s string) int {
	s = strings.ReplaceAll(s, ",", "")
	v := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		v = v*10 + int(r-'0')
	}
	return v
}

// mineSentences keeps description blocks that mention the facility and read
// like prose rather than navigation chrome.
func mineSentences(blocks []string, name string) []string {
	key := similarity.Normalize(name)
	var out []string
	for _, b := range blocks {
		if len([]rune(b)) < 20 || len([]rune(b)) > 200 {
			continue
		}
		if key != "" && !strings.Contains(similarity.Normalize(b), key) {
			continue
		}
		out = appendUnique(out, b)
		if len(out) == 5 {
			break
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
