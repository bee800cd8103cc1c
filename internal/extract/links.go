package extract

import (
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
)

// DefaultPDFSelectors lists the anchors searched for brochure links.
var DefaultPDFSelectors = []string{
	".search-results__search-panel__filters__results-lists a",
	`a[href*=".pdf"]`,
	".search-results__container a",
}

// PDFLinks returns every anchor pointing at a PDF, deduplicated by URL and text.
func (e *Extractor) PDFLinks(page string, baseURL string) []crawler.Link {
	doc, err := parse(page)
	if err != nil {
		return nil
	}
	seen := make(map[crawler.Link]struct{})
	var out []crawler.Link
	for _, selector := range DefaultPDFSelectors {
		doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			link := e.resolver.Resolve(baseURL, href)
			if link == "" || !strings.HasSuffix(strings.ToLower(link), ".pdf") {
				return
			}
			text := strings.TrimSpace(a.Text())
			if text == "" {
				text = path.Base(link)
			}
			l := crawler.Link{URL: link, Text: text}
			if _, dup := seen[l]; dup {
				return
			}
			seen[l] = struct{}{}
			out = append(out, l)
		})
	}
	return out
}
