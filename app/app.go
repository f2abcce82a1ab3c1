// Package app wires configuration into the audit pipeline and its outputs.
package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/cnosuke/feed-audit/alert"
	"github.com/cnosuke/feed-audit/auditor"
	"github.com/cnosuke/feed-audit/config"
	"github.com/cnosuke/feed-audit/fetcher"
	"github.com/cnosuke/feed-audit/metrics"
	"github.com/cnosuke/feed-audit/stats"
	"github.com/cnosuke/feed-audit/types"
)

// App - The audit pipeline assembled from configuration
type App struct {
	cfg     *config.Config
	fetcher fetcher.Fetcher
	metrics *metrics.Metrics
	store   stats.Store
	logFile *alert.LogFileDeliverer

	console   io.Writer
	transport http.RoundTripper
	telegram  string
	now       func() time.Time
}

// Option customizes an App.
type Option func(*App)

// WithTransport replaces the HTTP transport used for feeds.
func WithTransport(rt http.RoundTripper) Option {
	return func(a *App) { a.transport = rt }
}

// WithConsole redirects console alerts, stdout by default.
func WithConsole(w io.Writer) Option {
	return func(a *App) { a.console = w }
}

// WithTelegramBaseURL points Telegram delivery at another Bot API endpoint.
func WithTelegramBaseURL(u string) Option {
	return func(a *App) { a.telegram = u }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New - Build the pipeline from cfg
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	a := &App{
		cfg:     cfg,
		metrics: metrics.New(),
		store:   stats.NewFileStore(cfg.StatsPath()),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	zap.S().Debugw("creating HTTP fetcher",
		"timeout", cfg.Fetch.Timeout,
		"connect_timeout", cfg.Fetch.ConnectTimeout,
		"read_timeout", cfg.Fetch.ReadTimeout,
		"retries", cfg.Fetch.Retries,
		"user_agent", cfg.Fetch.UserAgent)
	f, err := fetcher.NewHTTPFetcher(&fetcher.Config{
		Timeout:        seconds(cfg.Fetch.Timeout),
		ConnectTimeout: seconds(cfg.Fetch.ConnectTimeout),
		ReadTimeout:    seconds(cfg.Fetch.ReadTimeout),
		UserAgent:      cfg.Fetch.UserAgent,
		Retries:        cfg.Fetch.Retries,
		BackoffUnit:    time.Second,
		Transport:      a.transport,
		Metrics:        a.metrics,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fetcher")
	}
	a.fetcher = f

	a.logFile = &alert.LogFileDeliverer{
		Dir:      cfg.Log.Dir,
		Location: cfg.Location(),
		Now:      a.now,
	}
	return a, nil
}

// Metrics returns the collectors of the app.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Auditor returns an auditor reporting to sink, with a fresh document cache.
func (a *App) Auditor(sink alert.Sink) (*auditor.Auditor, error) {
	size := a.cfg.Fetch.CacheSize
	if size <= 0 {
		return auditor.New(a.fetcher, sink, a.metrics, a.auditorConfig()), nil
	}
	cached, err := fetcher.NewCachingFetcher(a.fetcher, size)
	if err != nil {
		return nil, err
	}
	return auditor.New(cached, sink, a.metrics, a.auditorConfig()), nil
}

func (a *App) auditorConfig() auditor.Config {
	return auditor.Config{
		AllowSubdomains: a.cfg.Audit.AllowSubdomains,
		ProbeOrigin:     a.cfg.Audit.ProbeOriginEnabled,
		Workers:         a.cfg.Audit.Workers,
		RunTimeout:      seconds(a.cfg.Audit.RunTimeout),
	}
}

// RunOnce audits every configured feed, adds the totals to today's stats and sends the
// run summary. Stats and metrics write failures are returned after the summary went out.
func (a *App) RunOnce(ctx context.Context) (types.RunStats, error) {
	owners := a.cfg.OwnerList()
	if len(owners) == 0 {
		zap.S().Warnw("no feeds configured")
	}

	sink := a.textSink()
	aud, err := a.Auditor(sink)
	if err != nil {
		return types.RunStats{}, err
	}
	totals := aud.Run(ctx, owners)

	today := a.now().In(a.cfg.Location()).Format(stats.DateLayout)
	rec, statsErr := stats.MergeAndPersist(a.store, totals, today)
	if statsErr != nil {
		zap.S().Errorw("failed to persist stats", "path", a.cfg.StatsPath(), "error", statsErr)
	}

	// The summary still goes out when the run was interrupted.
	sink.Summary(context.WithoutCancel(ctx), types.Summary{TotalFeeds: totals.TotalFeeds, FeedsWithErrors: totals.FeedsWithErrors})

	a.metrics.MarkRunFinished(a.now())
	var metricsErr error
	if path := a.cfg.Metrics.Textfile; path != "" {
		if metricsErr = a.metrics.WriteTextfile(path); metricsErr != nil {
			zap.S().Errorw("failed to write metrics textfile", "path", path, "error", metricsErr)
		}
	}

	if statsErr != nil {
		return rec, errors.Wrap(statsErr, "failed to persist stats")
	}
	return rec, metricsErr
}

// SendSummary delivers the summary of today's stored counters.
func (a *App) SendSummary(ctx context.Context) (types.RunStats, error) {
	rec, err := a.store.Load()
	if err != nil {
		zap.S().Warnw("ignoring unreadable stats", "path", a.cfg.StatsPath(), "error", err)
		rec = types.RunStats{}
	}

	today := a.now().In(a.cfg.Location()).Format(stats.DateLayout)
	if rec.Date != today {
		zap.S().Infow("no stats recorded today", "stored_date", rec.Date, "today", today)
		rec = types.RunStats{Date: today}
	}

	a.textSink().Summary(ctx, types.Summary{TotalFeeds: rec.TotalFeeds, FeedsWithErrors: rec.FeedsWithErrors})
	return rec, nil
}

// Check audits a single feed and keeps the events in memory. Stats are not touched.
func (a *App) Check(ctx context.Context, owner, feedURL string) (auditor.FeedResult, *alert.Collector, error) {
	return a.check(ctx, owner, feedURL, false)
}

// CheckAndDeliver is Check that also sends the alerts through the configured deliverers.
func (a *App) CheckAndDeliver(ctx context.Context, owner, feedURL string) (auditor.FeedResult, *alert.Collector, error) {
	return a.check(ctx, owner, feedURL, true)
}

func (a *App) check(ctx context.Context, owner, feedURL string, deliver bool) (auditor.FeedResult, *alert.Collector, error) {
	if owner == "" {
		owner = config.DefaultOwner
	}
	collector := alert.NewCollector()
	var sink alert.Sink = collector
	if deliver {
		sink = alert.Multi{collector, a.textSink()}
	}
	aud, err := a.Auditor(sink)
	if err != nil {
		return auditor.FeedResult{}, nil, err
	}
	return aud.CheckFeed(ctx, owner, strings.TrimSpace(feedURL)), collector, nil
}

// LogURL returns the public address of today's log file, or "" when no base is set.
func (a *App) LogURL() string {
	base := strings.TrimRight(a.cfg.Log.PublicBaseURL, "/")
	if base == "" {
		return ""
	}
	return base + "/" + alert.LogFileName(a.now(), a.cfg.Location())
}

func (a *App) textSink() *alert.TextSink {
	deliverers := []alert.Deliverer{
		alert.ConsoleDeliverer{Out: a.console},
		a.logFile,
	}
	if a.cfg.Telegram.Enabled {
		deliverers = append(deliverers, alert.NewTelegramDeliverer(alert.TelegramConfig{
			Token:         a.cfg.Telegram.BotToken,
			ChatID:        a.cfg.Telegram.ChatID,
			RatePerSecond: a.cfg.Telegram.RatePerSecond,
			BaseURL:       a.telegram,
		}))
	}
	return &alert.TextSink{
		Formatter: &alert.Formatter{
			Location:    a.cfg.Location(),
			OwnerTitles: a.cfg.OwnerTitles(),
			LogURL:      a.LogURL(),
			Now:         a.now,
		},
		Deliverers: deliverers,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// ValidateXML parses and validates a feed document supplied by the caller, as if it had
// been fetched from feedURL. Nothing is fetched or delivered.
func (a *App) ValidateXML(owner, feedURL, content string) types.FeedReport {
	if owner == "" {
		owner = config.DefaultOwner
	}
	aud := auditor.New(a.fetcher, alert.NewCollector(), a.metrics, a.auditorConfig())
	return aud.AuditDocument(owner, strings.TrimSpace(feedURL), []byte(content))
}
