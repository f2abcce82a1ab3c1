// Package parser extracts offers from YML/RSS-like feed documents.
package parser

import (
	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/cnosuke/feed-audit/internal/xmldoc"
	"github.com/cnosuke/feed-audit/types"
)

// Offer containers in order of preference. Only the first expression that matches is used.
var containerExprs = []string{"//offer", "//item"}

// ParseOffers returns the offers of content in document order. When the document is
// malformed, the complete offers before the defect are still returned along with the
// error, which is meant for logging only.
func ParseOffers(content []byte) ([]types.Offer, error) {
	doc, err := xmldoc.Parse(content)
	if err != nil {
		return recoverOffers(content, err)
	}
	return OffersFromTree(doc), nil
}

// recoverOffers streams the containers that precede a syntax error.
func recoverOffers(content []byte, parseErr error) ([]types.Offer, error) {
	var offers []types.Offer
	for _, expr := range containerExprs {
		n, _ := xmldoc.Stream(content, expr, func(node *xmlquery.Node) {
			offers = append(offers, types.Offer{ID: offerID(node), Fields: offerFields(node)})
		})
		if n > 0 {
			break
		}
	}

	zap.S().Debugw("offers recovered from malformed document", "count", len(offers), "error", parseErr)
	return offers, parseErr
}

// OffersFromTree extracts offers from an already parsed document.
func OffersFromTree(doc *xmlquery.Node) []types.Offer {
	var nodes []*xmlquery.Node
	for _, expr := range containerExprs {
		if nodes = xmlquery.Find(doc, expr); len(nodes) > 0 {
			break
		}
	}

	offers := make([]types.Offer, 0, len(nodes))
	for _, node := range nodes {
		offers = append(offers, types.Offer{
			ID:     offerID(node),
			Fields: offerFields(node),
		})
	}

	zap.S().Debugw("offers extracted", "count", len(offers))
	return offers
}

func offerID(node *xmlquery.Node) string {
	if id := node.SelectAttr("id"); id != "" {
		return id
	}
	if children := xmldoc.Children(node, "id"); len(children) > 0 {
		return xmldoc.Text(children[0])
	}
	return ""
}

func offerFields(node *xmlquery.Node) map[string][]string {
	fields := make(map[string][]string)
	for _, tag := range types.TrackedFields {
		elems := xmldoc.Children(node, tag)
		// Namespaced feeds (g:price and the like) only match by local name.
		if len(elems) == 0 {
			elems = xmldoc.Descendants(node, tag)
		}
		if len(elems) == 0 {
			continue
		}

		values := make([]string, 0, len(elems))
		for _, el := range elems {
			values = append(values, xmldoc.Text(el))
		}
		fields[tag] = values
	}
	return fields
}
