// Package extract pulls descriptions, titled sections, brochure links, and
// readable text out of catalog HTML pages.
package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
)

// DefaultContainerSelectors lists section containers in match order.
var DefaultContainerSelectors = []string{
	"div.right-container-top",
	"div.tabs-option",
	"div.explore-applications__container__tabs-options",
	"div.content-and-cta",
	"div.card",
	"div.solution-card",
	"div.solution",
	"article",
	"div.product-card",
	"div.application-card",
}

// DefaultTitleSelectors lists title candidates inside a container in match order.
var DefaultTitleSelectors = []string{
	"h3.title-small",
	"span.body-small",
	".title-small",
	"span.subtitle-medium",
	"h2", "h3", "h4",
	".title", ".heading",
	"a",
	".product-title",
	".application-title",
}

const (
	DefaultContentClass = "adi-rte"
	DefaultBackPrefix   = "Back to"
	DefaultLinkMarker   = "/en/solutions"

	minParagraphRunes = 100
	minLineRunes      = 50
)

var doubleBreak = regexp.MustCompile(`(?i)<br\s*/?>\s*<br\s*/?>`)

// Resolver joins a reference against a base URL.
type Resolver interface {
	Resolve(base, ref string) string
}

// Config customizes an Extractor. Zero values take the defaults.
type Config struct {
	ContainerSelectors []string
	TitleSelectors     []string
	ContentClass       string
	BackPrefix         string
	LinkMarker         string
	Resolver           Resolver
}

// Extractor implements crawler.Extractor on top of goquery.
type Extractor struct {
	containers   []string
	titles       []string
	contentClass string
	backPrefix   string
	linkMarker   string
	resolver     Resolver
	strategies   []func(*goquery.Document) string
}

// New builds an Extractor from cfg.
func New(cfg Config) *Extractor {
	e := &Extractor{
		containers:   cfg.ContainerSelectors,
		titles:       cfg.TitleSelectors,
		contentClass: cfg.ContentClass,
		backPrefix:   cfg.BackPrefix,
		linkMarker:   cfg.LinkMarker,
		resolver:     cfg.Resolver,
	}
	if len(e.containers) == 0 {
		e.containers = DefaultContainerSelectors
	}
	if len(e.titles) == 0 {
		e.titles = DefaultTitleSelectors
	}
	if e.contentClass == "" {
		e.contentClass = DefaultContentClass
	}
	if e.backPrefix == "" {
		e.backPrefix = DefaultBackPrefix
	}
	if e.linkMarker == "" {
		e.linkMarker = DefaultLinkMarker
	}
	if e.resolver == nil {
		e.resolver = joinResolver{}
	}
	e.strategies = []func(*goquery.Document) string{
		metaDescription,
		e.contentDescription,
		longParagraph,
		visibleLines,
	}
	return e
}

// Description returns the first non-empty result of the description strategies.
func (e *Extractor) Description(page string) string {
	doc, err := parse(page)
	if err != nil {
		return ""
	}
	for _, strategy := range e.strategies {
		if desc := strings.TrimSpace(strategy(doc)); desc != "" {
			return desc
		}
	}
	return ""
}

// Sections returns the titled entries of a listing page in document order,
// deduplicated by title.
func (e *Extractor) Sections(page string, baseURL string) []crawler.Section {
	doc, err := parse(page)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []crawler.Section
	for _, selector := range e.containers {
		doc.Find(selector).Each(func(_ int, container *goquery.Selection) {
			title := e.sectionTitle(container)
			if title == "" || strings.HasPrefix(title, e.backPrefix) {
				return
			}
			href, ok := container.Find("a[href]").First().Attr("href")
			if !ok {
				return
			}
			link := e.resolver.Resolve(baseURL, href)
			if link == "" || !strings.Contains(link, e.linkMarker) {
				return
			}
			if _, dup := seen[title]; dup {
				return
			}
			seen[title] = struct{}{}

			section := crawler.Section{Title: title, Link: link}
			if src, ok := container.Find("img[src]").First().Attr("src"); ok {
				section.ImageURL = e.resolver.Resolve(baseURL, src)
			}
			out = append(out, section)
		})
	}
	return out
}

func (e *Extractor) sectionTitle(container *goquery.Selection) string {
	for _, selector := range e.titles {
		if text := strings.TrimSpace(container.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func metaDescription(doc *goquery.Document) string {
	content, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	return content
}

// contentDescription splits every paragraph of the main content block on
// double line breaks and joins the stripped parts.
func (e *Extractor) contentDescription(doc *goquery.Document) string {
	block := doc.Find("div." + e.contentClass).First()
	if block.Length() == 0 {
		return ""
	}
	var parts []string
	block.Find("p").Each(func(_ int, p *goquery.Selection) {
		raw, err := goquery.OuterHtml(p)
		if err != nil {
			return
		}
		for _, fragment := range doubleBreak.Split(raw, -1) {
			part, err := parse(fragment)
			if err != nil {
				continue
			}
			if text := strippedText(part.Find("body").Nodes...); text != "" {
				parts = append(parts, text)
			}
		}
	})
	return strings.Join(parts, "\n\n")
}

func longParagraph(doc *goquery.Document) string {
	var found string
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strippedText(p.Nodes...)
		if utf8.RuneCountInString(text) > minParagraphRunes {
			found = text
			return false
		}
		return true
	})
	return found
}

func visibleLines(doc *goquery.Document) string {
	var lines []string
	for _, text := range visibleText(doc.Nodes...) {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if utf8.RuneCountInString(line) > minLineRunes {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n\n")
}

// strippedText concatenates every descendant text node after trimming it.
func strippedText(nodes ...*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		walkText(n, func(text string) {
			b.WriteString(strings.TrimSpace(text))
		})
	}
	return b.String()
}

func walkText(n *html.Node, fn func(string)) {
	if n.Type == html.TextNode {
		fn(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, fn)
	}
}

var invisible = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {}, "head": {},
}

func visibleText(nodes ...*html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, skip := invisible[n.Data]; skip {
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				out = append(out, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}

func parse(page string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(page))
}

type joinResolver struct{}

func (joinResolver) Resolve(base, ref string) string {
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return refURL.String()
	}
	resolved := baseURL.ResolveReference(refURL)
	resolved.Fragment = ""
	return resolved.String()
}
