package tree

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
)

func node(title string, children ...*crawler.CrawlNode) *crawler.CrawlNode {
	return &crawler.CrawlNode{
		Title:    title,
		URL:      "https://www.example.com/en/solutions/" + strings.ToLower(strings.ReplaceAll(title, " ", "-")) + ".html",
		Children: children,
	}
}

func sample() []*crawler.CrawlNode {
	return []*crawler.CrawlNode{
		node("Automotive",
			node("Radar"),
			node("Industry Applications", node("Hidden")),
			node("Audio", node("A<sup>2</sup>B Audio Bus")),
		),
		node("Healthcare", node("Radar")),
	}
}

func TestFilterDropsSkippedSubtrees(t *testing.T) {
	in := sample()
	out := Filter(in, DefaultSkipPhrases)

	require.Len(t, out, 2)
	require.Len(t, out[0].Children, 2)
	assert.Equal(t, "Radar", out[0].Children[0].Title)
	assert.Equal(t, "Audio", out[0].Children[1].Title)
	assert.Nil(t, out[0].Children[1].Children, "emptied children lists are removed")

	assert.Len(t, in[0].Children, 3, "input must not be mutated")
	data, err := json.Marshal(out[0].Children[1])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "children")
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Filter(sample(), DefaultSkipPhrases)))
	want := strings.Join([]string{
		"├── Automotive",
		"│   ├── Radar",
		"│   └── Audio",
		"└── Healthcare",
		"    └── Radar",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestTitleHierarchy(t *testing.T) {
	h := TitleHierarchy(Filter(sample(), DefaultSkipPhrases))
	assert.Equal(t, Hierarchy{
		"Automotive": {"Radar": {}, "Audio": {}},
		"Healthcare": {"Radar": {}},
	}, h)
}

func TestDuplicates(t *testing.T) {
	dups := Duplicates(sample())
	require.Len(t, dups, 1)
	assert.Equal(t, "Radar", dups[0].Title)
	assert.Equal(t, []string{"Automotive > Radar", "Healthcare > Radar"}, dups[0].Paths)
}

func TestFlattenLeaves(t *testing.T) {
	var buf bytes.Buffer
	n, err := FlattenLeaves(&buf, sample())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	var first Leaf
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, Leaf{
		Title:      "Radar",
		URL:        "https://www.example.com/en/solutions/radar.html",
		ParentPath: []string{"Automotive"},
		Level:      1,
	}, first)
	assert.Contains(t, lines[2], `"title":"A<sup>2</sup>B Audio Bus"`)
	assert.Contains(t, lines[2], `"level":2`)
}

func TestStats(t *testing.T) {
	assert.Equal(t, Summary{Nodes: 8, Leaves: 4, MaxDepth: 2}, Stats(sample()))
	assert.Equal(t, Summary{}, Stats(nil))
}
