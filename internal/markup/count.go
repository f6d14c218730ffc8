// Package markup counts elements in fetched HTML.
package markup

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Counter counts elements by tag name using goquery, whose x/net/html parser
// recovers from unclosed tags, missing doctypes and invalid nesting.
type Counter struct{}

// New returns a Counter.
func New() *Counter {
	return &Counter{}
}

// Count returns how many elements in body are named tag, compared
// case-insensitively over the whole document. Unparseable input counts as 0.
func (Counter) Count(body []byte, tag string) int {
	tag = strings.TrimSpace(tag)
	if len(body) == 0 || tag == "" {
		return 0
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}
	// Foreign content (svg, math) keeps mixed-case names, so match by EqualFold
	// instead of a tag selector.
	return doc.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.EqualFold(goquery.NodeName(s), tag)
	}).Length()
}
