package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnosuke/feed-audit/types"
)

var fixedNow = func() time.Time { return time.Date(2024, 5, 2, 7, 30, 0, 0, time.UTC) }

func testFormatter() *Formatter {
	return &Formatter{
		Location:    time.FixedZone("CEST", 2*3600),
		OwnerTitles: map[string]string{"anton": "Anton"},
		Now:         fixedNow,
	}
}

func TestFormatter_Negative(t *testing.T) {
	f := testFormatter()

	text := f.Negative("ANTON", "https://shop.example/feed.xml", "", "price is not a number", types.StringPtr(`found: "abc"`))
	assert.Equal(t, "🔔 Feed audit error (owner: Anton)\n"+
		"\n"+
		"⏰ Time: 2024-05-02 09:30\n"+
		"🌐 Feed: https://shop.example/feed.xml\n"+
		"🔗 Offer ID: -\n"+
		"❌ Error: price is not a number\n"+
		`🔍 Details: found: "abc"`, text)

	text = f.Negative("ilya", "https://shop.example/feed.xml", "42", "name field is empty", nil)
	assert.Contains(t, text, "(owner: ilya)")
	assert.Contains(t, text, "🔗 Offer ID: 42")
	assert.NotContains(t, text, "Details")
}

func TestFormatter_FetchFailure(t *testing.T) {
	f := testFormatter()
	status := 200

	root := f.FetchFailure(types.FetchFailure{Owner: "default", URL: "https://shop.example/feed.xml", Error: "timeout"})
	assert.Contains(t, root, "❌ Error: Feed unavailable (status=0, error=timeout)")

	sub := f.FetchFailure(types.FetchFailure{Owner: "default", URL: "https://shop.example/c.xml", StatusCode: 404, SubFeed: true, OriginStatus: &status})
	assert.Contains(t, sub, "❌ Error: Sub-feed unavailable (status=404, error=-)")
	assert.Contains(t, sub, "🔍 Details: site root status=200")
}

func TestFormatter_Summary(t *testing.T) {
	f := testFormatter()
	assert.NotContains(t, f.Summary(types.Summary{TotalFeeds: 3, FeedsWithErrors: 1}), "Log:")

	f.LogURL = "https://logs.example/2024-05-02-feed-test.log"
	text := f.Summary(types.Summary{TotalFeeds: 3, FeedsWithErrors: 1})
	assert.Contains(t, text, "🌐 Feeds checked: 3")
	assert.Contains(t, text, "❌ Feeds with errors: 1")
	assert.Contains(t, text, "🔍 Log: https://logs.example/2024-05-02-feed-test.log")
}

func TestLogFileDeliverer(t *testing.T) {
	d := &LogFileDeliverer{Dir: filepath.Join(t.TempDir(), "logs"), Location: time.UTC, Now: fixedNow}

	require.NoError(t, d.Deliver(context.Background(), "first\n\n"))
	require.NoError(t, d.Deliver(context.Background(), "second"))

	assert.Equal(t, "2024-05-02-feed-test.log", filepath.Base(d.Path()))
	content, err := os.ReadFile(d.Path())
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n\n", string(content))
}

func TestTelegramDeliverer(t *testing.T) {
	var got sendMessageRequest
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	d := NewTelegramDeliverer(TelegramConfig{Token: "123:abc", ChatID: "-100", BaseURL: server.URL})
	require.NoError(t, d.Deliver(context.Background(), "hello"))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, sendMessageRequest{ChatID: "-100", Text: "hello"}, got)
}

func TestTelegramDeliverer_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	d := NewTelegramDeliverer(TelegramConfig{Token: "t", ChatID: "c", BaseURL: server.URL})
	err := d.Deliver(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	skipped := NewTelegramDeliverer(TelegramConfig{BaseURL: "http://127.0.0.1:1"})
	assert.NoError(t, skipped.Deliver(context.Background(), "hello"))
}

type recordingDeliverer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordingDeliverer) Deliver(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

func TestTextSink(t *testing.T) {
	rec := &recordingDeliverer{}
	failing := &recordingDeliverer{err: errors.New("boom")}
	var console bytes.Buffer
	sink := &TextSink{Formatter: testFormatter(), Deliverers: []Deliverer{failing, rec, ConsoleDeliverer{Out: &console}}}

	ctx := context.Background()
	sink.ReportFeed(ctx, types.FeedReport{Owner: "anton", FeedURL: "https://shop.example/a.xml", Offers: 5})
	sink.ReportFeed(ctx, types.FeedReport{
		Owner:   "anton",
		FeedURL: "https://shop.example/a.xml",
		Offers:  5,
		Invalid: []types.OfferIssues{
			{Owner: "anton", FeedURL: "https://shop.example/a.xml", OfferID: "1", Issues: []types.ValidationIssue{
				{Field: "name", Message: "name field is empty"},
				{Field: "price", Message: "price field is empty"},
			}},
			{Owner: "anton", FeedURL: "https://shop.example/a.xml", OfferID: "2", Issues: []types.ValidationIssue{
				{Field: "url", Message: "url field is empty"},
			}},
		},
	})
	sink.Summary(ctx, types.Summary{TotalFeeds: 1, FeedsWithErrors: 1})

	require.Len(t, rec.texts, 4)
	assert.Contains(t, rec.texts[0], "name field is empty")
	assert.Contains(t, rec.texts[1], "price field is empty")
	assert.Contains(t, rec.texts[2], "🔗 Offer ID: 2")
	assert.Contains(t, rec.texts[3], "Feed audit summary")
	assert.Len(t, failing.texts, 4, "a failing deliverer does not stop the others")
	assert.Contains(t, console.String(), "Feed audit summary")
}

func TestCollectorAndMulti(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	m := Multi{a, b}
	ctx := context.Background()

	m.FetchFailed(ctx, types.FetchFailure{URL: "u"})
	m.ReportFeed(ctx, types.FeedReport{FeedURL: "u"})
	m.Summary(ctx, types.Summary{TotalFeeds: 1})

	for _, c := range []*Collector{a, b} {
		assert.Len(t, c.Failures(), 1)
		assert.Len(t, c.Reports(), 1)
		assert.Equal(t, []types.Summary{{TotalFeeds: 1}}, c.Summaries())
	}
}
