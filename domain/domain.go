// Package domain decides whether URLs belong to the same site.
package domain

import (
	"regexp"
	"strings"
)

var hostPattern = regexp.MustCompile(`^https?://([^/]+)/?`)

// ExtractDomain returns the host part of an http(s) URL, as written in the URL.
// The second result is false when the URL does not start with http:// or https://.
func ExtractDomain(rawURL string) (string, bool) {
	m := hostPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Normalize lower-cases host and strips a leading "www.".
func Normalize(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}

// IsSameDomain reports whether the host of rawURL matches base. With allowSubdomains the
// host may also be any name ending in "."+base. This is a plain suffix check on host
// names, not a registrable-domain check.
func IsSameDomain(rawURL, base string, allowSubdomains bool) bool {
	host, _ := ExtractDomain(rawURL)
	host = Normalize(host)
	base = Normalize(base)

	if host == base {
		return true
	}
	if !allowSubdomains || base == "" {
		return false
	}
	return strings.HasSuffix(host, "."+base)
}
