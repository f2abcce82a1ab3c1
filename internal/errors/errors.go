package errors

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"
)

// Error kinds used to classify pipeline failures. They are attached with errors.Mark and
// tested with errors.Is, so the wrapped message chain stays intact.
var (
	ErrNetwork      = errors.New("network failure")
	ErrTimeout      = errors.New("timeout")
	ErrHTTPStatus   = errors.New("http status failure")
	ErrMalformedXML = errors.New("malformed xml")
	ErrStatsCorrupt = errors.New("stats store corrupt")
	ErrTooLarge     = errors.New("response too large")
)

// Wrap annotates err with msg. It returns nil when err is nil.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf annotates err with a formatted message. It returns nil when err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Mark tags err with one of the kind sentinels above.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, kind)
}

// ClassifyTransport marks an error returned by an HTTP round trip or body read as either
// ErrTimeout or ErrNetwork.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Mark(err, ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Mark(err, ErrTimeout)
	}
	return Mark(err, ErrNetwork)
}

// Kind returns a short label for err, suitable for metrics and log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrHTTPStatus):
		return "http_status"
	case errors.Is(err, ErrMalformedXML):
		return "malformed_xml"
	case errors.Is(err, ErrStatsCorrupt):
		return "stats_corrupt"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	default:
		return "other"
	}
}
