package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
)

const base = "https://www.example.com/en/solutions.html"

func TestDescriptionMetaWinsOverContent(t *testing.T) {
	page := `<html><head><meta name="description" content="A"></head>
<body><div class="adi-rte"><p>B</p></div></body></html>`
	require.Equal(t, "A", New(Config{}).Description(page))
}

func TestDescriptionContentBlockSplitsOnDoubleBreak(t *testing.T) {
	page := `<html><body><div class="adi-rte">
<p>First part<br><br>Second part</p>
<p>Third part</p>
</div><p>` + strings.Repeat("x", 150) + `</p></body></html>`
	require.Equal(t, "First part\n\nSecond part\n\nThird part", New(Config{}).Description(page))
}

func TestDescriptionCustomContentClass(t *testing.T) {
	page := `<html><body><div class="rich"><p>Custom block</p></div></body></html>`
	require.Equal(t, "Custom block", New(Config{ContentClass: "rich"}).Description(page))
}

func TestDescriptionLongParagraphFallback(t *testing.T) {
	long := strings.Repeat("Signal chain ", 10)
	page := `<html><body><p>short</p><p>` + long + `</p></body></html>`
	require.Equal(t, strings.TrimSpace(long), New(Config{}).Description(page))
}

func TestDescriptionVisibleLinesFallback(t *testing.T) {
	line := strings.Repeat("y", 60)
	page := `<html><body><div>` + line + `</div><div>tiny</div>
<script>` + strings.Repeat("z", 80) + `</script></body></html>`
	require.Equal(t, line, New(Config{}).Description(page))
}

func TestDescriptionEmptyPage(t *testing.T) {
	require.Equal(t, "", New(Config{}).Description(""))
	require.Equal(t, "", New(Config{}).Description("<html><body><p>hi</p></body></html>"))
}

func TestSectionsSkipsBackNavigation(t *testing.T) {
	page := `<html><body>
<div class="card"><h3>Radar</h3><a href="/en/solutions/radar.html">Learn more</a><img src="/media/radar.png"></div>
<div class="card"><h3>Back to overview</h3><a href="/en/solutions.html">Back</a></div>
</body></html>`
	sections := New(Config{}).Sections(page, base)
	require.Equal(t, []crawler.Section{{
		Title:    "Radar",
		Link:     "https://www.example.com/en/solutions/radar.html",
		ImageURL: "https://www.example.com/media/radar.png",
	}}, sections)
}

func TestSectionsTitlePriorityAndDedupe(t *testing.T) {
	page := `<html><body>
<div class="tabs-option"><h2>Generic</h2><h3 class="title-small">Preferred</h3><a href="/en/solutions/a.html">a</a></div>
<div class="card"><h3>Preferred</h3><a href="/en/solutions/b.html">b</a></div>
<div class="card"><h4></h4><a href="/en/solutions/c.html">Anchor title</a></div>
<div class="card"><h3>Off site</h3><a href="/en/products/x.html">x</a></div>
<div class="card"><h3>No link</h3></div>
<article><h2>Article</h2><a href="/en/solutions/d.html">d</a></article>
</body></html>`
	sections := New(Config{}).Sections(page, base)
	titles := make([]string, 0, len(sections))
	for _, s := range sections {
		titles = append(titles, s.Title)
	}
	assert.Equal(t, []string{"Preferred", "Anchor title", "Article"}, titles)
	assert.Equal(t, "https://www.example.com/en/solutions/a.html", sections[0].Link)
}

type prefixResolver struct{}

func (prefixResolver) Resolve(_, ref string) string {
	return "resolved:" + ref
}

func TestSectionsUseResolver(t *testing.T) {
	page := `<div class="card"><h3>Radar</h3><a href="/en/solutions/radar.html">x</a></div>`
	sections := New(Config{Resolver: prefixResolver{}}).Sections(page, base)
	require.Len(t, sections, 1)
	require.Equal(t, "resolved:/en/solutions/radar.html", sections[0].Link)
}

func TestPDFLinks(t *testing.T) {
	page := `<html><body>
<div class="search-results__container">
<a href="/media/en/brochure-a.pdf">Solutions Bulletin</a>
<a href="/media/en/other.html">Not a pdf</a>
<a href="https://cdn.example.com/files/B.PDF"> </a>
</div>
<a href="/media/en/brochure-a.pdf">Solutions Bulletin</a>
</body></html>`
	links := New(Config{}).PDFLinks(page, base)
	require.Equal(t, []crawler.Link{
		{URL: "https://www.example.com/media/en/brochure-a.pdf", Text: "Solutions Bulletin"},
		{URL: "https://cdn.example.com/files/B.PDF", Text: "B.PDF"},
	}, links)
}

func TestPageText(t *testing.T) {
	page := `<html><head><title>ignored</title></head><body>` +
		`<h1>Title</h1>` +
		`<p>Intro<a href="/x">Link</a></p>` +
		`<script>var x = 1;</script>` +
		`<a href="#top">Top</a>` +
		`<a href="javascript:void(0)">Menu</a>` +
		`<p>Intro</p>` +
		`<div>theme.css loaded</div>` +
		`</body></html>`
	require.Equal(t, "  Title\n  Intro\n    [Link](/x)", PageText(page))
}

func TestPageTextEmpty(t *testing.T) {
	require.Equal(t, "", PageText(""))
}
