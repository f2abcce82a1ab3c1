// Package auditor runs the feed validation pipeline: fetch, discover, parse, validate and
// report.
package auditor

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cnosuke/feed-audit/alert"
	"github.com/cnosuke/feed-audit/config"
	"github.com/cnosuke/feed-audit/discovery"
	"github.com/cnosuke/feed-audit/domain"
	"github.com/cnosuke/feed-audit/fetcher"
	"github.com/cnosuke/feed-audit/metrics"
	"github.com/cnosuke/feed-audit/parser"
	"github.com/cnosuke/feed-audit/types"
	"github.com/cnosuke/feed-audit/validator"
)

type Config struct {
	AllowSubdomains bool
	// ProbeOrigin fetches the site root after a root feed failure and attaches its status
	// to the failure event.
	ProbeOrigin bool
	// Workers bounds how many configured feeds are audited at once. Values below 1 mean 1.
	Workers int
	// RunTimeout, when positive, stops launching fetches once it expires. Fetches already
	// running finish on their own timeouts.
	RunTimeout time.Duration
}

// Auditor audits configured feeds.
type Auditor struct {
	fetcher fetcher.Fetcher
	sink    alert.Sink
	metrics *metrics.Metrics
	cfg     Config
}

// New creates an Auditor.
func New(f fetcher.Fetcher, sink alert.Sink, m *metrics.Metrics, cfg Config) *Auditor {
	return &Auditor{fetcher: f, sink: sink, metrics: m, cfg: cfg}
}

// FeedResult - Outcome of auditing one configured feed
type FeedResult struct {
	Owner string `json:"owner"`
	URL   string `json:"url"`
	// Checked lists the documents fetched: the root and its sub-feeds.
	Checked []string `json:"checked"`
	// Skipped lists documents not fetched because the run deadline passed.
	Skipped []string     `json:"skipped,omitempty"`
	Totals  types.Totals `json:"totals"`
}

// HasErrors reports whether any fetch failure or offer issue occurred under the feed.
func (r *FeedResult) HasErrors() bool {
	return r.Totals.FeedsWithErrors > 0
}

// Run audits every feed of owners and returns the accumulated totals.
func (a *Auditor) Run(ctx context.Context, owners []config.Owner) types.Totals {
	if a.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RunTimeout)
		defer cancel()
	}

	workers := a.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	zap.S().Infow("starting audit run", "owners", len(owners), "workers", workers)

	var (
		mu     sync.Mutex
		totals types.Totals
	)
	g := &errgroup.Group{}
	g.SetLimit(workers)

launch:
	for _, owner := range owners {
		for _, feedURL := range owner.Feeds {
			if ctx.Err() != nil {
				zap.S().Warnw("run deadline reached, remaining feeds are skipped", "next_feed", feedURL)
				break launch
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				res := a.CheckFeed(ctx, owner.Name, feedURL)
				mu.Lock()
				totals.Add(res.Totals)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	zap.S().Infow("audit run completed",
		"total_feeds", totals.TotalFeeds,
		"feeds_with_errors", totals.FeedsWithErrors,
		"total_offers", totals.TotalOffers,
		"offers_with_errors", totals.OffersWithErrors,
		"total_issues", totals.TotalIssues)
	return totals
}

// CheckFeed audits one configured feed and its sub-feeds. Events go to the sink as they
// are found; one ReportFeed call is made per fetched document.
func (a *Auditor) CheckFeed(ctx context.Context, owner, feedURL string) (res FeedResult) {
	res = FeedResult{Owner: owner, URL: feedURL, Totals: types.Totals{TotalFeeds: 1}}
	hasErrors := false
	defer func() {
		if hasErrors {
			res.Totals.FeedsWithErrors = 1
		}
		a.metrics.IncFeed(hasErrors)
		zap.S().Infow("feed audited",
			"owner", owner,
			"url", feedURL,
			"documents", len(res.Checked),
			"offers", res.Totals.TotalOffers,
			"issues", res.Totals.TotalIssues,
			"has_errors", hasErrors)
	}()

	// Work already started on this feed, fetches and alert delivery, outlives the run
	// deadline; ctx only decides whether more documents are started.
	fetchCtx := context.WithoutCancel(ctx)

	root := a.fetcher.Fetch(fetchCtx, feedURL)
	if root.Failed() {
		a.reportFailure(ctx, owner, root, false)
		hasErrors = true
		return res
	}

	for _, docURL := range discovery.FeedURLs(feedURL, root.Content) {
		if docURL != feedURL && ctx.Err() != nil {
			res.Skipped = append(res.Skipped, docURL)
			continue
		}
		res.Checked = append(res.Checked, docURL)

		doc := root
		if docURL != feedURL {
			doc = a.fetcher.Fetch(fetchCtx, docURL)
		}
		if doc.Failed() {
			a.reportFailure(ctx, owner, doc, docURL != feedURL)
			hasErrors = true
			continue
		}

		report := a.auditDocument(owner, docURL, doc.Content)
		res.Totals.TotalOffers += report.Offers
		res.Totals.OffersWithErrors += len(report.Invalid)
		for _, offer := range report.Invalid {
			res.Totals.TotalIssues += len(offer.Issues)
		}
		if len(report.Invalid) > 0 {
			hasErrors = true
		}
		a.sink.ReportFeed(fetchCtx, report)
	}

	if len(res.Skipped) > 0 {
		zap.S().Warnw("run deadline reached, sub-feeds skipped", "url", feedURL, "skipped", len(res.Skipped))
	}
	return res
}

// AuditDocument parses and validates content fetched from docURL without reporting it.
func (a *Auditor) AuditDocument(owner, docURL string, content []byte) types.FeedReport {
	return a.auditDocument(owner, docURL, content)
}

func (a *Auditor) auditDocument(owner, docURL string, content []byte) types.FeedReport {
	offers, err := parser.ParseOffers(content)
	if err != nil {
		zap.S().Warnw("feed document could not be parsed, no offers checked", "url", docURL, "error", err)
	}

	report := types.FeedReport{Owner: owner, FeedURL: docURL, Offers: len(offers)}
	opts := validator.Options{AllowSubdomains: a.cfg.AllowSubdomains}
	for _, offer := range offers {
		issues := validator.Validate(offer.Fields, docURL, opts)
		if len(issues) == 0 {
			continue
		}
		for _, is := range issues {
			a.metrics.IncIssue(is.Field)
		}
		report.Invalid = append(report.Invalid, types.OfferIssues{
			Owner:   owner,
			FeedURL: docURL,
			OfferID: offer.ID,
			Issues:  issues,
		})
	}
	a.metrics.AddOffers(len(offers))
	return report
}

func (a *Auditor) reportFailure(ctx context.Context, owner string, res *types.FetchResult, subFeed bool) {
	kind := res.FailureKind()
	a.metrics.IncFetchFailure(kind)
	zap.S().Warnw("document unavailable",
		"owner", owner,
		"url", res.URL,
		"status", res.StatusCode,
		"kind", kind,
		"sub_feed", subFeed)

	ev := types.FetchFailure{
		Owner:      owner,
		URL:        res.URL,
		StatusCode: res.StatusCode,
		Error:      res.Error,
		SubFeed:    subFeed,
	}
	if a.cfg.ProbeOrigin && !subFeed && ctx.Err() == nil {
		ev.OriginStatus = a.probeOrigin(ctx, res.URL)
	}
	a.sink.FetchFailed(context.WithoutCancel(ctx), ev)
}

// probeOrigin fetches the site root of feedURL and returns its status, or nil when the
// root is the feed itself or cannot be derived.
func (a *Auditor) probeOrigin(ctx context.Context, feedURL string) *int {
	host, ok := domain.ExtractDomain(feedURL)
	if !ok {
		return nil
	}
	scheme := "https"
	if strings.HasPrefix(strings.TrimSpace(feedURL), "http://") {
		scheme = "http"
	}
	origin := scheme + "://" + host + "/"
	if origin == strings.TrimSpace(feedURL) {
		return nil
	}

	res := a.fetcher.Fetch(context.WithoutCancel(ctx), origin)
	status := res.StatusCode
	zap.S().Debugw("origin probed", "origin", origin, "status", status)
	return &status
}
