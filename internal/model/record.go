package model

import "time"

// SourceEnhancedFallback tags records synthesized by the batch processor when
// every attempt for an item failed. Such records carry the minimum confidence
// and are never dropped from the output.
const SourceEnhancedFallback = "enhanced_fallback"

// SourceBaseline tags records ingested from the authoritative registry
// dataset export.
const SourceBaseline = "baseline"

// Candidate is an input stub handed to the crawl session: the minimal
// identity of a facility to look up.
type Candidate struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	ServiceType string `json:"service_type,omitempty"`
}

// BaselineRecord is an authoritative seed record from the upstream registry
// dataset. It is immutable once ingested; BusinessStatus, ManagementNumber,
// and SiteArea are authoritative and must never be overwritten by crawled data.
type BaselineRecord struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Address          string `json:"address"`
	Phone            string `json:"phone,omitempty"`
	BusinessStatus   string `json:"business_status,omitempty"`
	ManagementNumber string `json:"management_number,omitempty"`
	SiteArea         string `json:"site_area,omitempty"`

	// Enrichment fields carried when the baseline comes from a previously
	// merged dataset. When present they win over crawled values.
	OpenHour        string `json:"open_hour,omitempty"`
	CloseHour       string `json:"close_hour,omitempty"`
	MembershipPrice string `json:"membership_price,omitempty"`
	PTPrice         string `json:"pt_price,omitempty"`
	GXPrice         string `json:"gx_price,omitempty"`
	DayPassPrice    string `json:"day_pass_price,omitempty"`
	MinimumPrice    string `json:"minimum_price,omitempty"`
	Website         string `json:"website,omitempty"`
	Instagram       string `json:"instagram,omitempty"`

	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source"`
}

// CrawledRecord is a candidate record produced by the fallback search chain
// from a web source. Confidence estimates completeness and is always in [0,1].
type CrawledRecord struct {
	Name        string `json:"name"`
	Address     string `json:"address,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Rating      string `json:"rating,omitempty"`
	ReviewCount string `json:"review_count,omitempty"`
	OpenHour    string `json:"open_hour,omitempty"`
	CloseHour   string `json:"close_hour,omitempty"`

	MembershipPrice string `json:"membership_price,omitempty"`
	PTPrice         string `json:"pt_price,omitempty"`
	GXPrice         string `json:"gx_price,omitempty"`
	DayPassPrice    string `json:"day_pass_price,omitempty"`
	MinimumPrice    string `json:"minimum_price,omitempty"`

	Facilities []string `json:"facilities,omitempty"`
	Services   []string `json:"services,omitempty"`
	Website    string   `json:"website,omitempty"`
	Instagram  string   `json:"instagram,omitempty"`

	// Sentences holds extra mined description sentences from result pages.
	Sentences []string `json:"sentences,omitempty"`

	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	CrawledAt  time.Time `json:"crawled_at"`
}

// HasHours reports whether either operating hour bound is present.
func (r *CrawledRecord) HasHours() bool {
	return r.OpenHour != "" || r.CloseHour != ""
}

// HasPrice reports whether any price field is present.
func (r *CrawledRecord) HasPrice() bool {
	return r.MembershipPrice != "" || r.PTPrice != "" || r.GXPrice != "" ||
		r.DayPassPrice != "" || r.MinimumPrice != ""
}

// MergedRecord is the reconciled union of a baseline and a crawled record.
// Source is the distinct union of contributing source tags joined " + ".
type MergedRecord struct {
	ID               string  `json:"id,omitempty"`
	Name             string  `json:"name"`
	Address          string  `json:"address,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	BusinessStatus   string  `json:"business_status,omitempty"`
	ManagementNumber string  `json:"management_number,omitempty"`
	SiteArea         string  `json:"site_area,omitempty"`
	Rating           string  `json:"rating,omitempty"`
	ReviewCount      string  `json:"review_count,omitempty"`
	OpenHour         string  `json:"open_hour,omitempty"`
	CloseHour        string  `json:"close_hour,omitempty"`
	MembershipPrice  string  `json:"membership_price,omitempty"`
	PTPrice          string  `json:"pt_price,omitempty"`
	GXPrice          string  `json:"gx_price,omitempty"`
	DayPassPrice     string  `json:"day_pass_price,omitempty"`
	MinimumPrice     string  `json:"minimum_price,omitempty"`
	Facilities       []string `json:"facilities,omitempty"`
	Services         []string `json:"services,omitempty"`
	Website          string  `json:"website,omitempty"`
	Instagram        string  `json:"instagram,omitempty"`
	Source           string  `json:"source"`
	Confidence       float64 `json:"confidence"`

	// FallbackUsed marks an unmatched baseline record passed through as-is.
	FallbackUsed bool `json:"fallback_used,omitempty"`
}

// Conflict is an audit entry for a field where baseline and crawled data
// disagreed. It never changes the merge outcome; Resolution is always
// "baseline wins".
type Conflict struct {
	RecordKey     string `json:"record_key"`
	Field         string `json:"field"`
	BaselineValue string `json:"baseline_value"`
	CrawledValue  string `json:"crawled_value"`
	Resolution    string `json:"resolution"`
}

// SearchAttempt records one strategy invocation within a single fallback
// chain run. Transient: produced and consumed inside the chain.
type SearchAttempt struct {
	EngineName     string         `json:"engine_name"`
	Success        bool           `json:"success"`
	Record         *CrawledRecord `json:"record,omitempty"`
	Confidence     float64        `json:"confidence"`
	ProcessingTime time.Duration  `json:"processing_time"`
}
