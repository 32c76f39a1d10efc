package crawl

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// htmlToMarkdown renders an HTML document tree to markdown, skipping
// non-content elements (script, style, noscript, nav, footer, aside, svg,
// iframe) the way a reader-mode extractor would; header elements are kept. It's intentionally a
// structural walk rather than a full CommonMark round-trip: the output only
// needs to be good chunking input, not re-renderable HTML.
func htmlToMarkdown(doc *html.Node) (markdown, title string) {
	var b strings.Builder
	var walk func(n *html.Node, listDepth int)

	skip := map[string]bool{
		"script": true, "style": true, "noscript": true,
		"nav": true, "footer": true, "aside": true, "svg": true, "iframe": true,
	}

	walk = func(n *html.Node, listDepth int) {
		if n.Type == html.ElementNode && skip[n.Data] {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && title == "" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
		}

		if n.Type == html.ElementNode {
			switch n.Data {
			case "h1", "h2", "h3", "h4", "h5", "h6":
				level := int(n.Data[1] - '0')
				b.WriteString("\n" + strings.Repeat("#", level) + " ")
				writeChildren(&b, n, walk, listDepth)
				b.WriteString("\n")
				return
			case "p":
				b.WriteString("\n")
				writeChildren(&b, n, walk, listDepth)
				b.WriteString("\n")
				return
			case "br":
				b.WriteString("\n")
				return
			case "a":
				href := attr(n, "href")
				var inner strings.Builder
				writeChildren(&inner, n, walk, listDepth)
				text := strings.TrimSpace(inner.String())
				if href != "" && text != "" {
					b.WriteString("[" + text + "](" + href + ")")
				} else {
					b.WriteString(text)
				}
				return
			case "code":
				if n.Parent != nil && n.Parent.Data == "pre" {
					writeChildren(&b, n, walk, listDepth)
					return
				}
				b.WriteString("`")
				writeChildren(&b, n, walk, listDepth)
				b.WriteString("`")
				return
			case "pre":
				lang := codeLangFromClass(n)
				b.WriteString("\n```" + lang + "\n")
				writeChildren(&b, n, walk, listDepth)
				b.WriteString("\n```\n")
				return
			case "li":
				b.WriteString("\n" + strings.Repeat("  ", listDepth) + "- ")
				writeChildren(&b, n, walk, listDepth+1)
				return
			case "ul", "ol":
				writeChildren(&b, n, walk, listDepth)
				b.WriteString("\n")
				return
			case "strong", "b":
				b.WriteString("**")
				writeChildren(&b, n, walk, listDepth)
				b.WriteString("**")
				return
			case "em", "i":
				b.WriteString("_")
				writeChildren(&b, n, walk, listDepth)
				b.WriteString("_")
				return
			}
		}

		if n.Type == html.TextNode {
			text := n.Data
			if strings.TrimSpace(text) != "" {
				b.WriteString(text)
			}
		}

		writeChildren(&b, n, walk, listDepth)
	}

	walk(doc, 0)
	return collapseBlankLines(b.String()), title
}

func writeChildren(b *strings.Builder, n *html.Node, walk func(*html.Node, int), listDepth int) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, listDepth)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func codeLangFromClass(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "code" {
			class := attr(c, "class")
			if strings.HasPrefix(class, "language-") {
				return strings.TrimPrefix(class, "language-")
			}
		}
	}
	return ""
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n")) + "\n"
}

// extractLinks returns every <a href> link found in doc, resolved against
// base with the fragment removed. It does not filter by site; the recursive
// HTML strategy drops off-site links itself before queueing the next
// frontier.
func extractLinks(doc *html.Node, base *url.URL) []string {
	var links []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if href != "" {
				if resolved, err := base.Parse(href); err == nil {
					resolved.Fragment = ""
					links = append(links, resolved.String())
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}
