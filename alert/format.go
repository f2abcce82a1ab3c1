package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/cnosuke/feed-audit/types"
)

const timeLayout = "2006-01-02 15:04"

// Formatter renders events as alert text.
type Formatter struct {
	Location *time.Location
	// OwnerTitles maps lower-cased owner names to display names.
	OwnerTitles map[string]string
	// LogURL, when set, is appended to summaries.
	LogURL string
	Now    func() time.Time
}

func (f *Formatter) now() string {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc).Format(timeLayout)
}

func (f *Formatter) ownerTitle(owner string) string {
	if title, ok := f.OwnerTitles[strings.ToLower(owner)]; ok {
		return title
	}
	return owner
}

// Negative renders one problem of one feed.
func (f *Formatter) Negative(owner, feedURL, offerID, message string, details *string) string {
	if offerID == "" {
		offerID = "-"
	}
	parts := []string{
		fmt.Sprintf("🔔 Feed audit error (owner: %s)", f.ownerTitle(owner)),
		"",
		fmt.Sprintf("⏰ Time: %s", f.now()),
		fmt.Sprintf("🌐 Feed: %s", feedURL),
		fmt.Sprintf("🔗 Offer ID: %s", offerID),
		fmt.Sprintf("❌ Error: %s", message),
	}
	if details != nil && *details != "" {
		parts = append(parts, fmt.Sprintf("🔍 Details: %s", *details))
	}
	return strings.Join(parts, "\n")
}

// FetchFailure renders an unavailable feed or sub-feed.
func (f *Formatter) FetchFailure(ev types.FetchFailure) string {
	what := "Feed"
	if ev.SubFeed {
		what = "Sub-feed"
	}
	errText := ev.Error
	if errText == "" {
		errText = "-"
	}
	message := fmt.Sprintf("%s unavailable (status=%d, error=%s)", what, ev.StatusCode, errText)

	var details *string
	if ev.OriginStatus != nil {
		details = types.StringPtr(fmt.Sprintf("site root status=%d", *ev.OriginStatus))
	}
	return f.Negative(ev.Owner, ev.URL, "", message, details)
}

// FeedReport renders one message per issue, offers in document order.
func (f *Formatter) FeedReport(report types.FeedReport) []string {
	var out []string
	for _, offer := range report.Invalid {
		for _, is := range offer.Issues {
			out = append(out, f.Negative(offer.Owner, offer.FeedURL, offer.OfferID, is.Message, is.Details))
		}
	}
	return out
}

// Summary renders the run or daily summary.
func (f *Formatter) Summary(ev types.Summary) string {
	parts := []string{
		"✅ Feed audit summary",
		"",
		fmt.Sprintf("⏰ Time: %s", f.now()),
		fmt.Sprintf("🌐 Feeds checked: %d", ev.TotalFeeds),
		fmt.Sprintf("❌ Feeds with errors: %d", ev.FeedsWithErrors),
	}
	if f.LogURL != "" {
		parts = append(parts, fmt.Sprintf("🔍 Log: %s", f.LogURL))
	}
	return strings.Join(parts, "\n")
}
