// Package validator checks offers against the feed field rules.
package validator

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cnosuke/feed-audit/domain"
	"github.com/cnosuke/feed-audit/types"
)

// Options - Validation settings taken from configuration
type Options struct {
	// AllowSubdomains accepts url and picture values on subdomains of the feed host.
	AllowSubdomains bool
}

// Validate applies the url, name, picture, price and oldprice rules, in that order, to the
// fields of one offer from feedURL. All rules run; every violation yields one issue.
func Validate(fields map[string][]string, feedURL string, opts Options) []types.ValidationIssue {
	feedDomain, _ := domain.ExtractDomain(feedURL)

	var issues []types.ValidationIssue
	issues = append(issues, checkURLs(fields[types.FieldURL], feedDomain, opts)...)
	issues = append(issues, checkName(fields[types.FieldName])...)
	issues = append(issues, checkPictures(fields[types.FieldPicture], feedDomain, opts)...)

	priceIssues, price, hasPrice := checkPrice(fields[types.FieldPrice])
	issues = append(issues, priceIssues...)
	issues = append(issues, checkOldPrice(fields[types.FieldOldPrice], price, hasPrice)...)

	return issues
}

func checkURLs(values []string, feedDomain string, opts Options) []types.ValidationIssue {
	if allBlank(values) {
		return []types.ValidationIssue{issue(types.FieldURL, "url field is empty", "no url value")}
	}

	var issues []types.ValidationIssue
	for _, v := range values {
		switch {
		case isBlank(v):
			issues = append(issues, types.ValidationIssue{Field: types.FieldURL, Message: "url field is empty"})
		case !domain.IsSameDomain(v, feedDomain, opts.AllowSubdomains):
			issues = append(issues, issue(types.FieldURL,
				fmt.Sprintf("url is not on domain %s", feedDomain),
				fmt.Sprintf("found url: %s", v)))
		}
	}
	return issues
}

func checkName(values []string) []types.ValidationIssue {
	if allBlank(values) {
		return []types.ValidationIssue{{Field: types.FieldName, Message: "name field is empty"}}
	}
	return nil
}

func checkPictures(values []string, feedDomain string, opts Options) []types.ValidationIssue {
	if allBlank(values) {
		return []types.ValidationIssue{{Field: types.FieldPicture, Message: "picture field is empty"}}
	}

	var issues []types.ValidationIssue
	for _, v := range values {
		switch {
		case isBlank(v):
			issues = append(issues, types.ValidationIssue{Field: types.FieldPicture, Message: "picture field is empty"})
		case !domain.IsSameDomain(v, feedDomain, opts.AllowSubdomains):
			issues = append(issues, issue(types.FieldPicture,
				"picture is hosted on a foreign domain",
				fmt.Sprintf("found picture: %s", v)))
		}
	}
	return issues
}

// checkPrice returns the issues of the price values and the last value that parsed.
func checkPrice(values []string) ([]types.ValidationIssue, float64, bool) {
	if allBlank(values) {
		return []types.ValidationIssue{{Field: types.FieldPrice, Message: "price field is empty"}}, 0, false
	}

	var (
		issues   []types.ValidationIssue
		price    float64
		hasPrice bool
	)
	for _, v := range values {
		parsed, err := ParsePrice(v)
		if err != nil {
			issues = append(issues, issue(types.FieldPrice, "price is not a number", fmt.Sprintf("found: %q", v)))
			continue
		}
		price, hasPrice = parsed, true
	}
	return issues, price, hasPrice
}

func checkOldPrice(values []string, price float64, hasPrice bool) []types.ValidationIssue {
	var issues []types.ValidationIssue
	for _, v := range values {
		if isBlank(v) {
			issues = append(issues, types.ValidationIssue{Field: types.FieldOldPrice, Message: "oldprice field is empty"})
			continue
		}
		old, err := ParsePrice(v)
		if err != nil {
			issues = append(issues, issue(types.FieldOldPrice, "oldprice is not a number", fmt.Sprintf("found: %q", v)))
			continue
		}
		if hasPrice && old <= price {
			issues = append(issues, issue(types.FieldOldPrice,
				"oldprice must be greater than price",
				fmt.Sprintf("oldprice=%s, price=%s", v, strconv.FormatFloat(price, 'f', -1, 64))))
		}
	}
	return issues
}

// NormalizePrice prepares a raw price for numeric parsing: whitespace (including
// non-breaking spaces) is removed, a comma becomes the decimal point when no dot is
// present, and anything other than digits, dots and minus signs is dropped.
func NormalizePrice(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	s := b.String()

	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}

	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
}

// ParsePrice normalizes raw and parses it as a float.
func ParsePrice(raw string) (float64, error) {
	return strconv.ParseFloat(NormalizePrice(raw), 64)
}

func issue(field, message, details string) types.ValidationIssue {
	return types.ValidationIssue{Field: field, Message: message, Details: types.StringPtr(details)}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func allBlank(values []string) bool {
	for _, v := range values {
		if !isBlank(v) {
			return false
		}
	}
	return true
}
