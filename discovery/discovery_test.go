package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const indexFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feeds xmlns:sm="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url>https://shop.example/cat1.xml</url>
  <url>https://other.example/cat2.xml</url>
  <link> https://shop.example/cat3.XML </link>
  <sm:url>https://www.shop.example/cat4.xml</sm:url>
  <url>https://shop.example/cat1.xml</url>
  <url>https://shop.example/page.html</url>
  <url>https://m.shop.example/cat5.xml</url>
</feeds>`

func TestFeedURLs(t *testing.T) {
	tests := []struct {
		name     string
		rootURL  string
		content  string
		expected []string
	}{
		{
			name:     "index excludes other domains",
			rootURL:  "https://shop.example/feed.xml",
			content:  `<feeds><url>https://shop.example/cat1.xml</url><url>https://other.example/cat2.xml</url></feeds>`,
			expected: []string{"https://shop.example/feed.xml", "https://shop.example/cat1.xml"},
		},
		{
			name:    "index with mixed nodes",
			rootURL: "https://shop.example/export/FEED.xml?token=1",
			content: indexFeed,
			expected: []string{
				"https://shop.example/export/FEED.xml?token=1",
				"https://shop.example/cat1.xml",
				"https://shop.example/cat3.XML",
				"https://www.shop.example/cat4.xml",
			},
		},
		{
			name:     "non-index root is checked alone",
			rootURL:  "https://shop.example/offers.xml",
			content:  indexFeed,
			expected: []string{"https://shop.example/offers.xml"},
		},
		{
			name:     "malformed index",
			rootURL:  "https://shop.example/feed.xml",
			content:  `<feeds><url>https://shop.example/cat1.xml</url`,
			expected: []string{"https://shop.example/feed.xml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FeedURLs(tt.rootURL, []byte(tt.content)))
		})
	}
}

func TestDiscoverSubfeeds_NoSubdomains(t *testing.T) {
	subfeeds := DiscoverSubfeeds([]byte(indexFeed), "https://shop.example/feed.xml")
	assert.NotContains(t, subfeeds, "https://m.shop.example/cat5.xml")
}

func TestIsIndex(t *testing.T) {
	assert.True(t, IsIndex("https://shop.example/feed.xml"))
	assert.True(t, IsIndex("https://shop.example/yandex_feed.xml"))
	assert.False(t, IsIndex("https://shop.example/feed.xml.gz"))
	assert.False(t, IsIndex("https://shop.example/"))
}

func TestDiscoverSubfeeds_LinkElements(t *testing.T) {
	content := `<?xml version="1.0"?>
<rss><channel>
  <link>https://shop.example/</link>
  <item><link>https://shop.example/cat1.xml</link></item>
  <item><link>https://shop.example/cat2.xml</link><param name="x">y</param></item>
</channel></rss>`

	assert.Equal(t, []string{
		"https://shop.example/feed.xml",
		"https://shop.example/cat1.xml",
		"https://shop.example/cat2.xml",
	}, FeedURLs("https://shop.example/feed.xml", []byte(content)))
}
