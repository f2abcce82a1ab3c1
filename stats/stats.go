// Package stats keeps the per-day audit counters.
package stats

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	ierrors "github.com/cnosuke/feed-audit/internal/errors"
	"github.com/cnosuke/feed-audit/types"
)

// DateLayout is the format of RunStats.Date.
const DateLayout = "2006-01-02"

// Store - Persistence of the daily counters document
type Store interface {
	// Load returns the stored record. A missing document is not an error and yields a
	// zero record.
	Load() (types.RunStats, error)
	Save(types.RunStats) error
}

// FileStore keeps the record as a JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the document.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load() (types.RunStats, error) {
	var rec types.RunStats

	content, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return rec, nil
	}
	if err != nil {
		return rec, errors.Wrapf(err, "failed to read stats from %s", s.path)
	}
	if err := json.Unmarshal(content, &rec); err != nil {
		return types.RunStats{}, ierrors.Mark(errors.Wrapf(err, "failed to decode stats from %s", s.path), ierrors.ErrStatsCorrupt)
	}
	return rec, nil
}

// Save implements Store. The document is replaced through a temporary file and a rename,
// so an interrupted write leaves the previous version in place.
func (s *FileStore) Save(rec types.RunStats) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", s.path)
	}
	content, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode stats")
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(content)); err != nil {
		return errors.Wrapf(err, "failed to write stats to %s", s.path)
	}
	return nil
}

// MergeAndPersist adds run onto the stored counters of today and saves the result. A record
// of another day, or one that cannot be read, counts as zero.
func MergeAndPersist(store Store, run types.Totals, today string) (types.RunStats, error) {
	prev, err := store.Load()
	if err != nil {
		zap.S().Warnw("ignoring unreadable stats", "kind", ierrors.Kind(err), "error", err)
		prev = types.RunStats{}
	}

	merged := types.RunStats{Date: today}
	if prev.Date == today {
		merged.Totals = prev.Totals
	}
	merged.Add(run)

	if err := store.Save(merged); err != nil {
		return merged, err
	}

	zap.S().Infow("stats updated",
		"date", merged.Date,
		"total_feeds", merged.TotalFeeds,
		"feeds_with_errors", merged.FeedsWithErrors,
		"total_offers", merged.TotalOffers,
		"offers_with_errors", merged.OffersWithErrors,
		"total_issues", merged.TotalIssues)
	return merged, nil
}
