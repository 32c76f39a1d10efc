package crawl

import (
	"net/http"
	"strings"
)

// classifyURL picks a Strategy from the URL shape alone, before any network
// call: a plain-text suffix needs no HTML handling, and a sitemap path can be
// recognized without fetching it first.
func classifyURL(rawURL string, recursive bool) Strategy {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, "/llms.txt"):
		return StrategyText
	case strings.Contains(lower, "sitemap") && strings.HasSuffix(lower, ".xml"):
		return StrategySitemap
	case recursive:
		return StrategyHTMLRecursive
	default:
		return StrategyHTMLSingle
	}
}

// looksLikeSitemapContentType reports whether a response's Content-Type
// contains "xml". Only the header is inspected, not the document's root
// element.
func looksLikeSitemapContentType(header http.Header) bool {
	ct := header.Get("Content-Type")
	return strings.Contains(ct, "xml")
}
