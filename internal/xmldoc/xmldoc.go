// Package xmldoc loads feed documents into xmlquery trees without failing on the usual
// defects of real-world feeds: HTML entities, invalid bytes, legacy encodings and
// documents cut off mid-way.
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html/charset"

	ierrors "github.com/cnosuke/feed-audit/internal/errors"
)

var (
	utf8BOM         = []byte{0xEF, 0xBB, 0xBF}
	encodingPattern = regexp.MustCompile(`(?i)^\s*<\?xml[^>]*?encoding\s*=\s*["']([^"']+)["']`)
)

// Parse builds a tree from content. Malformed markup is tolerated where the decoder can
// recover; otherwise the error is marked ErrMalformedXML and no tree is returned.
func Parse(content []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.ParseWithOptions(bytes.NewReader(toUTF8(content)), parserOptions())
	if err != nil {
		return nil, malformed(err)
	}
	return doc, nil
}

// Stream hands every complete element matching expr to fn, in document order, and stops
// at the first syntax error. It returns the number of elements seen and the error, marked
// ErrMalformedXML, if the document broke off. fn must not keep the node past the call.
func Stream(content []byte, expr string, fn func(*xmlquery.Node)) (int, error) {
	sp, err := xmlquery.CreateStreamParserWithOptions(bytes.NewReader(toUTF8(content)), parserOptions(), expr)
	if err != nil {
		return 0, ierrors.Wrapf(err, "invalid stream expression %q", expr)
	}

	n := 0
	for {
		node, err := sp.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, malformed(err)
		}
		fn(node)
		n++
	}
}

func parserOptions() xmlquery.ParserOptions {
	// link and param are regular elements in feeds, so no HTML AutoClose list.
	return xmlquery.ParserOptions{
		Decoder: &xmlquery.DecoderOptions{
			Strict: false,
			Entity: xml.HTMLEntity,
		},
	}
}

func malformed(err error) error {
	return ierrors.Mark(ierrors.Wrap(err, "failed to parse xml document"), ierrors.ErrMalformedXML)
}

// toUTF8 converts content to valid UTF-8. A declared legacy encoding is decoded and the
// declaration rewritten, so the XML decoder does not decode twice. Bytes that are invalid
// in the resulting text are dropped.
func toUTF8(content []byte) []byte {
	content = bytes.TrimPrefix(content, utf8BOM)

	m := encodingPattern.FindSubmatchIndex(content)
	if m == nil {
		return bytes.ToValidUTF8(content, nil)
	}

	enc, name := charset.Lookup(string(content[m[2]:m[3]]))
	if enc != nil && name == "utf-8" {
		return bytes.ToValidUTF8(content, nil)
	}
	if enc != nil {
		decoded, err := enc.NewDecoder().Bytes(content)
		if err != nil {
			return bytes.ToValidUTF8(content, nil)
		}
		content = decoded
		// Decoding may shift offsets, so locate the declaration again.
		if m = encodingPattern.FindSubmatchIndex(content); m == nil {
			return bytes.ToValidUTF8(content, nil)
		}
	}

	// Unknown labels are read as UTF-8.
	rewritten := make([]byte, 0, len(content))
	rewritten = append(rewritten, content[:m[2]]...)
	rewritten = append(rewritten, "UTF-8"...)
	rewritten = append(rewritten, content[m[3]:]...)
	content = rewritten

	return bytes.ToValidUTF8(content, nil)
}

// Text returns the trimmed character data that precedes the first child element of n,
// skipping comments.
func Text(n *xmlquery.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			break
		}
		if c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

// IsPlain reports whether n is an element named name without namespace.
func IsPlain(n *xmlquery.Node, name string) bool {
	return n.Type == xmlquery.ElementNode && n.Data == name && n.Prefix == "" && n.NamespaceURI == ""
}

// Children returns the direct child elements of n named name without namespace.
func Children(n *xmlquery.Node, name string) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if IsPlain(c, name) {
			out = append(out, c)
		}
	}
	return out
}

// Descendants returns the elements below n whose local name is name, in document order,
// regardless of namespace.
func Descendants(n *xmlquery.Node, name string) []*xmlquery.Node {
	var out []*xmlquery.Node
	var walk func(*xmlquery.Node)
	walk = func(p *xmlquery.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			if c.Data == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}
