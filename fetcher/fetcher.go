package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	ierrors "github.com/cnosuke/feed-audit/internal/errors"
	"github.com/cnosuke/feed-audit/metrics"
	"github.com/cnosuke/feed-audit/types"
)

const defaultMaxBodySize = 256 << 20

var errReadTimeout = ierrors.Mark(errors.New("read timeout exceeded"), ierrors.ErrTimeout)

type Config struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration // Zero falls back to Timeout
	ReadTimeout    time.Duration // Zero falls back to Timeout
	UserAgent      string
	Retries        int
	// BackoffUnit is the delay before the first retry; later delays double up to four units.
	BackoffUnit time.Duration
	// MaxBodySize bounds the response body in bytes. Zero means 256 MiB.
	MaxBodySize int64
	// Transport replaces the default transport, mainly for tests.
	Transport http.RoundTripper
	Metrics   *metrics.Metrics
}

// Fetcher defines the interface for retrieving feed documents.
type Fetcher interface {
	// Fetch retrieves urlStr. It never returns an error: network failures are retried and
	// then reported in the result with StatusCode 0, while HTTP error statuses are returned
	// as received and never retried.
	Fetch(ctx context.Context, urlStr string) *types.FetchResult
}

// httpFetcher implements the Fetcher interface using HTTP.
type httpFetcher struct {
	client         *http.Client
	userAgent      string
	connectTimeout time.Duration
	readTimeout    time.Duration
	retries        int
	backoffUnit    time.Duration
	maxBodySize    int64
	metrics        *metrics.Metrics
}

// NewHTTPFetcher creates a new httpFetcher.
func NewHTTPFetcher(cfg *Config) (Fetcher, error) {
	if cfg.Timeout <= 0 {
		return nil, errors.New("fetch timeout must be positive")
	}
	if cfg.Retries < 0 {
		return nil, errors.New("fetch retries cannot be negative")
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = cfg.Timeout
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = cfg.Timeout
	}
	backoffUnit := cfg.BackoffUnit
	if backoffUnit <= 0 {
		backoffUnit = time.Second
	}
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}

	zap.S().Infow("creating new HTTP fetcher",
		"connect_timeout", connectTimeout,
		"read_timeout", readTimeout,
		"retries", cfg.Retries,
		"user_agent", cfg.UserAgent)

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		}
	}

	return &httpFetcher{
		client:         &http.Client{Transport: transport},
		userAgent:      cfg.UserAgent,
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
		retries:        cfg.Retries,
		backoffUnit:    backoffUnit,
		maxBodySize:    maxBodySize,
		metrics:        cfg.Metrics,
	}, nil
}

// Fetch implements Fetcher.
func (f *httpFetcher) Fetch(ctx context.Context, urlStr string) *types.FetchResult {
	start := time.Now()
	defer func() { f.metrics.ObserveFetch(time.Since(start)) }()

	var (
		status int
		body   []byte
	)
	operation := func() error {
		var err error
		status, body, err = f.fetch(ctx, urlStr)
		return err
	}
	notify := func(err error, delay time.Duration) {
		f.metrics.IncRetry()
		zap.S().Warnw("fetch failed, retrying",
			"url", urlStr,
			"kind", ierrors.Kind(err),
			"delay", delay,
			"error", err)
	}

	if err := backoff.RetryNotify(operation, f.newBackOff(), notify); err != nil {
		zap.S().Warnw("fetch failed", "url", urlStr, "kind", ierrors.Kind(err), "error", err)
		return &types.FetchResult{URL: urlStr, Error: err.Error(), ErrorKind: ierrors.Kind(err)}
	}

	return &types.FetchResult{URL: urlStr, StatusCode: status, Content: body}
}

// newBackOff yields delays of min(2^(n-1), 4) units for at most f.retries retries.
func (f *httpFetcher) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.backoffUnit
	eb.Multiplier = 2
	eb.MaxInterval = 4 * f.backoffUnit
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	return backoff.WithMaxRetries(eb, uint64(f.retries))
}

// fetch performs a single attempt. Any HTTP response, whatever its status, is a success.
func (f *httpFetcher) fetch(ctx context.Context, urlStr string) (int, []byte, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return 0, nil, backoff.Permanent(ierrors.Wrap(err, "failed to create request"))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/xml, text/xml, application/rss+xml, */*")

	// The watchdog covers connecting plus waiting for the first byte, then gets re-armed
	// with the read timeout on every chunk of the body.
	watchdog := time.AfterFunc(f.connectTimeout+f.readTimeout, func() { cancel(errReadTimeout) })
	defer watchdog.Stop()

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, causeOr(ctx, ierrors.ClassifyTransport(ierrors.Wrap(err, "failed to execute request")))
	}
	defer resp.Body.Close()

	// One byte over the limit tells a full body from a cut one.
	bodyBytes, err := io.ReadAll(&idleReader{r: io.LimitReader(resp.Body, f.maxBodySize+1), watchdog: watchdog, timeout: f.readTimeout})
	if err != nil {
		return 0, nil, causeOr(ctx, ierrors.ClassifyTransport(ierrors.Wrap(err, "failed to read response body")))
	}
	if int64(len(bodyBytes)) > f.maxBodySize {
		return 0, nil, backoff.Permanent(ierrors.Mark(
			errors.Newf("response body exceeds %d bytes", f.maxBodySize), ierrors.ErrTooLarge))
	}

	zap.S().Debugw(
		"response received",
		"url", urlStr,
		"status", resp.StatusCode,
		"content-length", resp.ContentLength,
		"bytes", len(bodyBytes),
		"content_type", resp.Header.Get("Content-Type"),
	)

	return resp.StatusCode, bodyBytes, nil
}

// causeOr prefers the read-timeout cause over the generic cancellation error it produces.
func causeOr(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errReadTimeout) {
		return errors.Wrap(errReadTimeout, err.Error())
	}
	return err
}

// idleReader re-arms watchdog after every successful read.
type idleReader struct {
	r        io.Reader
	watchdog *time.Timer
	timeout  time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.watchdog.Reset(r.timeout)
	}
	return n, err
}
