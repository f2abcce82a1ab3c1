// Package alert turns audit events into messages and delivers them.
package alert

import (
	"context"
	"sync"

	"github.com/cnosuke/feed-audit/types"
)

// Sink receives the events of an audit run. Implementations must be safe for concurrent
// use; each call is one unit that must not interleave with another.
type Sink interface {
	FetchFailed(ctx context.Context, ev types.FetchFailure)
	// ReportFeed receives every offer with issues of one fetched document at once.
	ReportFeed(ctx context.Context, report types.FeedReport)
	Summary(ctx context.Context, ev types.Summary)
}

// Collector keeps events in memory.
type Collector struct {
	mu        sync.Mutex
	failures  []types.FetchFailure
	reports   []types.FeedReport
	summaries []types.Summary
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// FetchFailed implements Sink.
func (c *Collector) FetchFailed(_ context.Context, ev types.FetchFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, ev)
}

// ReportFeed implements Sink.
func (c *Collector) ReportFeed(_ context.Context, report types.FeedReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report)
}

// Summary implements Sink.
func (c *Collector) Summary(_ context.Context, ev types.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries = append(c.summaries, ev)
}

// Failures returns a copy of the collected fetch failures.
func (c *Collector) Failures() []types.FetchFailure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.FetchFailure(nil), c.failures...)
}

// Reports returns a copy of the collected feed reports.
func (c *Collector) Reports() []types.FeedReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.FeedReport(nil), c.reports...)
}

// Summaries returns a copy of the collected summaries.
func (c *Collector) Summaries() []types.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Summary(nil), c.summaries...)
}

// Multi fans events out to several sinks in order.
type Multi []Sink

// FetchFailed implements Sink.
func (m Multi) FetchFailed(ctx context.Context, ev types.FetchFailure) {
	for _, s := range m {
		s.FetchFailed(ctx, ev)
	}
}

// ReportFeed implements Sink.
func (m Multi) ReportFeed(ctx context.Context, report types.FeedReport) {
	for _, s := range m {
		s.ReportFeed(ctx, report)
	}
}

// Summary implements Sink.
func (m Multi) Summary(ctx context.Context, ev types.Summary) {
	for _, s := range m {
		s.Summary(ctx, ev)
	}
}
