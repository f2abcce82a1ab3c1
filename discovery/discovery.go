// Package discovery enumerates the documents to audit for a configured feed: the feed
// itself and, for a root feed.xml, the same-site sub-feeds it links to.
package discovery

import (
	"net/url"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/cnosuke/feed-audit/domain"
	"github.com/cnosuke/feed-audit/internal/xmldoc"
)

// IndexFileName is the file name that marks a root feed as an index of sub-feeds.
const IndexFileName = "feed.xml"

const linkExpr = `//*[local-name()='url' or local-name()='link']`

// FeedURLs returns rootURL followed by its sub-feeds. Sub-feeds are only looked up when
// the path of rootURL ends with feed.xml, and only one level deep.
func FeedURLs(rootURL string, rootContent []byte) []string {
	urls := []string{rootURL}
	if !IsIndex(rootURL) {
		return urls
	}
	return append(urls, DiscoverSubfeeds(rootContent, rootURL)...)
}

// IsIndex reports whether rootURL points at a feed.xml index document.
func IsIndex(rootURL string) bool {
	path := rootURL
	if u, err := url.Parse(strings.TrimSpace(rootURL)); err == nil {
		path = u.Path
	}
	return strings.HasSuffix(strings.ToLower(path), IndexFileName)
}

// DiscoverSubfeeds collects the text of every url and link element of content that ends in
// .xml and lives on the exact host of parentURL. Subdomains are not accepted here even when
// validation tolerates them. First-seen order is kept and duplicates dropped. Malformed
// content yields no sub-feeds.
func DiscoverSubfeeds(content []byte, parentURL string) []string {
	doc, err := xmldoc.Parse(content)
	if err != nil {
		zap.S().Warnw("failed to parse root feed for sub-feeds", "url", parentURL, "error", err)
		return nil
	}

	parentDomain, _ := domain.ExtractDomain(parentURL)

	var subfeeds []string
	seen := make(map[string]struct{})
	for _, node := range xmlquery.Find(doc, linkExpr) {
		link := xmldoc.Text(node)
		if !strings.HasSuffix(strings.ToLower(link), ".xml") {
			continue
		}
		if !domain.IsSameDomain(link, parentDomain, false) {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		subfeeds = append(subfeeds, link)
	}

	zap.S().Debugw("sub-feeds discovered", "url", parentURL, "count", len(subfeeds))
	return subfeeds
}
