package types

// Tracked offer field names, in validation order.
const (
	FieldURL      = "url"
	FieldName     = "name"
	FieldPicture  = "picture"
	FieldPrice    = "price"
	FieldOldPrice = "oldprice"
)

// TrackedFields lists the offer fields extracted by the parser and checked by the validator.
var TrackedFields = []string{FieldURL, FieldName, FieldPicture, FieldPrice, FieldOldPrice}

// FetchResult - Outcome of a fetch, produced once after retries are exhausted or on success
type FetchResult struct {
	URL string `json:"url"`
	// StatusCode is 0 when no HTTP response was received.
	StatusCode int    `json:"status_code"`
	Content    []byte `json:"-"`
	// Error is empty unless the request failed at the network or protocol level.
	Error string `json:"error,omitempty"`
	// ErrorKind classifies Error (timeout, network, ...).
	ErrorKind string `json:"error_kind,omitempty"`
}

// Failed reports whether the result must be treated as an unavailable document.
func (r *FetchResult) Failed() bool {
	return r.Error != "" || r.StatusCode >= 400 || len(r.Content) == 0
}

// FailureKind labels a failed result: the transport error kind, http_status or empty.
func (r *FetchResult) FailureKind() string {
	switch {
	case r.Error != "":
		if r.ErrorKind != "" {
			return r.ErrorKind
		}
		return "network"
	case r.StatusCode >= 400:
		return "http_status"
	case len(r.Content) == 0:
		return "empty"
	default:
		return "none"
	}
}

// Offer - One product record of a feed
type Offer struct {
	ID string `json:"id"`
	// Fields maps a tracked field name to its raw values in document order. Absent fields
	// have no key.
	Fields map[string][]string `json:"fields"`
}

// ValidationIssue - A single rule violation on one field of one offer
type ValidationIssue struct {
	Field   string  `json:"field"`
	Message string  `json:"message"`
	Details *string `json:"details,omitempty"`
}

// RunStats - Persisted per-day counters
type RunStats struct {
	Date string `json:"date"`
	Totals
}

// Totals - Counters accumulated by one run
type Totals struct {
	TotalFeeds       int `json:"total_feeds"`
	FeedsWithErrors  int `json:"feeds_with_errors"`
	TotalOffers      int `json:"total_offers"`
	OffersWithErrors int `json:"offers_with_errors"`
	TotalIssues      int `json:"total_issues"`
}

// Add accumulates o into t.
func (t *Totals) Add(o Totals) {
	t.TotalFeeds += o.TotalFeeds
	t.FeedsWithErrors += o.FeedsWithErrors
	t.TotalOffers += o.TotalOffers
	t.OffersWithErrors += o.OffersWithErrors
	t.TotalIssues += o.TotalIssues
}

// FetchFailure - Alert event for an unavailable feed or sub-feed
type FetchFailure struct {
	Owner      string `json:"owner"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
	// SubFeed is false for the configured root feed.
	SubFeed bool `json:"sub_feed"`
	// OriginStatus is the status of the site root when origin probing is enabled.
	// Nil when probing was not performed.
	OriginStatus *int `json:"origin_status,omitempty"`
}

// OfferIssues - Alert event for one offer that failed validation
type OfferIssues struct {
	Owner   string            `json:"owner"`
	FeedURL string            `json:"feed_url"`
	OfferID string            `json:"offer_id"`
	Issues  []ValidationIssue `json:"issues"`
}

// FeedReport - All offers with issues of a single fetched document, reported as a unit
type FeedReport struct {
	Owner   string        `json:"owner"`
	FeedURL string        `json:"feed_url"`
	Offers  int           `json:"offers"`
	Invalid []OfferIssues `json:"invalid"`
}

// Summary - Alert event emitted at the end of a run
type Summary struct {
	TotalFeeds      int `json:"total_feeds"`
	FeedsWithErrors int `json:"feeds_with_errors"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
