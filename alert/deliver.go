package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cnosuke/feed-audit/types"
)

// Deliverer writes one rendered message somewhere.
type Deliverer interface {
	Deliver(ctx context.Context, text string) error
}

// ConsoleDeliverer prints messages to an io.Writer, stdout by default.
type ConsoleDeliverer struct {
	Out io.Writer
}

// Deliver implements Deliverer.
func (d ConsoleDeliverer) Deliver(_ context.Context, text string) error {
	out := d.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := io.WriteString(out, text+"\n")
	return err
}

// LogFileDeliverer appends messages to a daily file in Dir.
type LogFileDeliverer struct {
	Dir      string
	Location *time.Location
	Now      func() time.Time

	mu sync.Mutex
}

// LogFileName returns the name of the log file for the day of t.
func LogFileName(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02") + "-feed-test.log"
}

// Path returns the file messages are currently appended to.
func (d *LogFileDeliverer) Path() string {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return filepath.Join(d.Dir, LogFileName(now(), d.Location))
}

// Deliver implements Deliverer.
func (d *LogFileDeliverer) Deliver(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create log directory %s", d.Dir)
	}
	path := d.Path()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open log file %s", path)
	}
	defer f.Close()

	if _, err := f.WriteString(strings.TrimRight(text, " \t\r\n") + "\n\n"); err != nil {
		return errors.Wrapf(err, "failed to append to log file %s", path)
	}
	return nil
}

// TelegramConfig - Settings of the Telegram delivery
type TelegramConfig struct {
	Token         string
	ChatID        string
	RatePerSecond float64
	// BaseURL overrides the Bot API endpoint, mainly for tests.
	BaseURL string
	Client  *http.Client
}

// TelegramDeliverer sends messages through the Telegram Bot API.
type TelegramDeliverer struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewTelegramDeliverer returns a deliverer. Messages are silently skipped while the token
// or chat id is missing.
func NewTelegramDeliverer(cfg TelegramConfig) *TelegramDeliverer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &TelegramDeliverer{
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Deliver implements Deliverer.
func (d *TelegramDeliverer) Deliver(ctx context.Context, text string) error {
	if d.token == "" || d.chatID == "" {
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "telegram rate limiter")
	}

	payload, err := json.Marshal(sendMessageRequest{ChatID: d.chatID, Text: text})
	if err != nil {
		return errors.Wrap(err, "failed to encode telegram message")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/bot"+d.token+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to create telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		// The request URL carries the bot token; keep it out of logs.
		return errors.Newf("failed to send telegram message: %s", redact(err.Error(), d.token))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return errors.Newf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

// TextSink renders events with a Formatter and hands every message to each Deliverer.
// Delivery failures are logged and dropped.
type TextSink struct {
	Formatter  *Formatter
	Deliverers []Deliverer

	mu sync.Mutex
}

// FetchFailed implements Sink.
func (s *TextSink) FetchFailed(ctx context.Context, ev types.FetchFailure) {
	s.deliver(ctx, []string{s.Formatter.FetchFailure(ev)})
}

// ReportFeed implements Sink.
func (s *TextSink) ReportFeed(ctx context.Context, report types.FeedReport) {
	if len(report.Invalid) == 0 {
		return
	}
	s.deliver(ctx, s.Formatter.FeedReport(report))
}

// Summary implements Sink.
func (s *TextSink) Summary(ctx context.Context, ev types.Summary) {
	s.deliver(ctx, []string{s.Formatter.Summary(ev)})
}

func (s *TextSink) deliver(ctx context.Context, texts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, text := range texts {
		for _, d := range s.Deliverers {
			if err := d.Deliver(ctx, text); err != nil {
				zap.S().Errorw("failed to deliver alert", "deliverer", deliverName(d), "error", err)
			}
		}
	}
}

func deliverName(d Deliverer) string {
	switch d.(type) {
	case ConsoleDeliverer, *ConsoleDeliverer:
		return "console"
	case *LogFileDeliverer:
		return "logfile"
	case *TelegramDeliverer:
		return "telegram"
	default:
		return "other"
	}
}
