package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnosuke/feed-audit/types"
)

func writeStats(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readStats(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &out))
	return out
}

func TestMergeAndPersist_Rollover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fids_stat.json")
	writeStats(t, path, `{"date":"2024-05-01","total_feeds":50,"feeds_with_errors":7,"total_offers":900,"offers_with_errors":12,"total_issues":30}`)

	merged, err := MergeAndPersist(NewFileStore(path), types.Totals{TotalFeeds: 3}, "2024-05-02")
	require.NoError(t, err)

	assert.Equal(t, "2024-05-02", merged.Date)
	assert.Equal(t, 3, merged.TotalFeeds)
	assert.Equal(t, 0, merged.FeedsWithErrors)

	doc := readStats(t, path)
	assert.Equal(t, "2024-05-02", doc["date"])
	assert.Equal(t, 3.0, doc["total_feeds"])
	assert.Equal(t, 0.0, doc["total_issues"])
}

func TestMergeAndPersist_SameDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fids_stat.json")
	writeStats(t, path, `{"date":"2024-05-02","total_feeds":50,"feeds_with_errors":7,"total_offers":900,"offers_with_errors":12,"total_issues":30}`)

	run := types.Totals{TotalFeeds: 3, FeedsWithErrors: 1, TotalOffers: 100, OffersWithErrors: 2, TotalIssues: 5}
	merged, err := MergeAndPersist(NewFileStore(path), run, "2024-05-02")
	require.NoError(t, err)

	assert.Equal(t, types.Totals{TotalFeeds: 53, FeedsWithErrors: 8, TotalOffers: 1000, OffersWithErrors: 14, TotalIssues: 35}, merged.Totals)
	stored, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, merged, stored)
}

func TestMergeAndPersist_MissingOrCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, path string)
	}{
		{name: "missing file", setup: func(t *testing.T, path string) {}},
		{name: "corrupt json", setup: func(t *testing.T, path string) { writeStats(t, path, `{"date": "2024-05-02", "total_feeds": `) }},
		{name: "wrong types", setup: func(t *testing.T, path string) { writeStats(t, path, `{"date":"2024-05-02","total_feeds":"many"}`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "fids_stat.json")
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			tt.setup(t, path)

			merged, err := MergeAndPersist(NewFileStore(path), types.Totals{TotalFeeds: 2, TotalOffers: 10}, "2024-05-02")
			require.NoError(t, err)
			assert.Equal(t, types.Totals{TotalFeeds: 2, TotalOffers: 10}, merged.Totals)
			assert.Equal(t, 2.0, readStats(t, path)["total_feeds"])
		})
	}
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "fids_stat.json")
	require.NoError(t, NewFileStore(path).Save(types.RunStats{Date: "2024-05-02"}))
	assert.FileExists(t, path)
}
