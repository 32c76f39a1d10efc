package crawl

import (
	"encoding/xml"
	"fmt"
	"io"
)

// sitemapURLSet mirrors the sitemaps.org <urlset> schema; only <loc> is read,
// per spec.md §4.4.
type sitemapURLSet struct {
	XMLName xml.Name      `xml:"urlset"`
	URLs    []sitemapEntry `xml:"url"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

// sitemapIndex covers the nested-sitemap case (<sitemapindex>/<sitemap><loc>).
type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

// parseSitemap extracts every <loc> entry from a sitemap or sitemap index
// document. A sitemap index's entries are themselves sitemap URLs the
// caller is expected to recurse into, not content pages.
func parseSitemap(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read sitemap body: %w", err)
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(data, &set); err == nil && len(set.URLs) > 0 {
		locs := make([]string, 0, len(set.URLs))
		for _, u := range set.URLs {
			if u.Loc != "" {
				locs = append(locs, u.Loc)
			}
		}
		return locs, nil
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse sitemap xml: %w", err)
	}
	locs := make([]string, 0, len(idx.Sitemaps))
	for _, s := range idx.Sitemaps {
		if s.Loc != "" {
			locs = append(locs, s.Loc)
		}
	}
	return locs, nil
}
