package search

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// stripMarkup flattens a metasearch snippet to plain text. Some engines
// return titles and content with embedded highlight tags; downstream
// scoring and the output tables want clean text.
func stripMarkup(s string) string {
	if !strings.ContainsRune(s, '<') {
		return collapseSpace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
