package crawler

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// linkAttrs lists the elements whose attribute points at another page.
var linkAttrs = map[string]string{
	"a":      "href",
	"area":   "href",
	"link":   "href",
	"frame":  "src",
	"iframe": "src",
}

// Extraction is the result of scanning one HTML document.
type Extraction struct {
	// Links are raw attribute values in document order, duplicates included.
	Links []string

	// Base is the first <base href> value, if any.
	Base string
}

// ExtractLinks parses an HTML document and returns the raw link targets it
// contains. The body is decoded to UTF-8 first, using the charset from
// contentType, a BOM or a <meta> declaration, in that order of precedence.
//
// Design decision: We use golang.org/x/net/html rather than regex because
// it handles malformed markup the same way browsers do.
func ExtractLinks(body []byte, contentType string) (*Extraction, error) {
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	r := transform.NewReader(bytes.NewReader(body), enc.NewDecoder())

	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	out := &Extraction{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "base" && out.Base == "" {
				out.Base = strings.TrimSpace(getAttr(n, "href"))
			}
			if attr, ok := linkAttrs[n.Data]; ok {
				if v := getAttr(n, attr); keepLink(v) {
					out.Links = append(out.Links, strings.TrimSpace(v))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return out, nil
}

// keepLink filters values that can never name a page. Everything else is
// left for the normalizer to judge.
func keepLink(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || v == "#" {
		return false
	}
	lower := strings.ToLower(v)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
