// Package tree post-processes crawl trees: filtering, rendering, duplicate
// detection and leaf flattening.
package tree

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
)

// DefaultSkipPhrases removes navigation and umbrella entries.
var DefaultSkipPhrases = []string{
	"Applicable Technology Solutions",
	"Industry Applications",
	"A<sup>2</sup>B Audio Bus",
}

// Filter returns a copy of nodes without any node whose title contains a
// skip phrase. Subtrees of dropped nodes go with them.
func Filter(nodes []*crawler.CrawlNode, skipPhrases []string) []*crawler.CrawlNode {
	out := make([]*crawler.CrawlNode, 0, len(nodes))
	for _, node := range nodes {
		if node == nil || containsAny(node.Title, skipPhrases) {
			continue
		}
		clone := *node
		clone.Children = nil
		if children := Filter(node.Children, skipPhrases); len(children) > 0 {
			clone.Children = children
		}
		out = append(out, &clone)
	}
	return out
}

func containsAny(title string, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(title, phrase) {
			return true
		}
	}
	return false
}

// Render writes an ASCII tree of titles.
func Render(w io.Writer, nodes []*crawler.CrawlNode) error {
	bw := bufio.NewWriter(w)
	renderLevel(bw, nodes, "")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("render tree: %w", err)
	}
	return nil
}

func renderLevel(w *bufio.Writer, nodes []*crawler.CrawlNode, prefix string) {
	for i, node := range nodes {
		last := i == len(nodes)-1
		connector, childPrefix := "├── ", prefix+"│   "
		if last {
			connector, childPrefix = "└── ", prefix+"    "
		}
		_, _ = w.WriteString(prefix + connector + node.Title + "\n")
		renderLevel(w, node.Children, childPrefix)
	}
}

// Hierarchy is a title-only view of a tree. Leaves map to an empty Hierarchy.
type Hierarchy map[string]Hierarchy

// TitleHierarchy builds the nested title map. Sibling titles collide on
// purpose; the last one wins.
func TitleHierarchy(nodes []*crawler.CrawlNode) Hierarchy {
	out := Hierarchy{}
	for _, node := range nodes {
		out[node.Title] = TitleHierarchy(node.Children)
	}
	return out
}

// Duplicate is a title that appears at more than one path.
type Duplicate struct {
	Title string   `json:"title"`
	Paths []string `json:"paths"`
}

// Duplicates lists titles found at several paths, sorted by title. Paths are
// titles joined with " > ".
func Duplicates(nodes []*crawler.CrawlNode) []Duplicate {
	paths := make(map[string][]string)
	var walk func([]*crawler.CrawlNode, []string)
	walk = func(level []*crawler.CrawlNode, trail []string) {
		for _, node := range level {
			current := append(trail[:len(trail):len(trail)], node.Title)
			paths[node.Title] = append(paths[node.Title], strings.Join(current, " > "))
			walk(node.Children, current)
		}
	}
	walk(nodes, nil)

	var out []Duplicate
	for title, p := range paths {
		if len(p) > 1 {
			out = append(out, Duplicate{Title: title, Paths: p})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// Leaf is one line of the flattened leaf export.
type Leaf struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	ParentPath  []string `json:"parent_path"`
	Description string   `json:"description"`
	Level       int      `json:"level"`
}

// Leaves returns every leaf with its ancestor titles, in document order.
func Leaves(nodes []*crawler.CrawlNode) []Leaf {
	var out []Leaf
	var walk func([]*crawler.CrawlNode, []string)
	walk = func(level []*crawler.CrawlNode, trail []string) {
		for _, node := range level {
			if node.IsLeaf() {
				parents := append([]string{}, trail...)
				out = append(out, Leaf{
					Title:       node.Title,
					URL:         node.URL,
					ParentPath:  parents,
					Description: node.Description,
					Level:       len(parents),
				})
				continue
			}
			walk(node.Children, append(trail[:len(trail):len(trail)], node.Title))
		}
	}
	walk(nodes, nil)
	return out
}

// FlattenLeaves writes Leaves as JSON lines.
func FlattenLeaves(w io.Writer, nodes []*crawler.CrawlNode) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	leaves := Leaves(nodes)
	for _, leaf := range leaves {
		if err := enc.Encode(leaf); err != nil {
			return 0, fmt.Errorf("encode leaf %q: %w", leaf.URL, err)
		}
	}
	return len(leaves), nil
}

// Summary holds simple counts over a tree.
type Summary struct {
	Nodes    int `json:"nodes"`
	Leaves   int `json:"leaves"`
	MaxDepth int `json:"max_depth"`
}

// Stats counts nodes and leaves and reports the deepest nesting level, with
// roots at level 0.
func Stats(nodes []*crawler.CrawlNode) Summary {
	var s Summary
	var walk func([]*crawler.CrawlNode, int)
	walk = func(level []*crawler.CrawlNode, depth int) {
		for _, node := range level {
			s.Nodes++
			if node.IsLeaf() {
				s.Leaves++
			}
			if depth > s.MaxDepth {
				s.MaxDepth = depth
			}
			walk(node.Children, depth+1)
		}
	}
	walk(nodes, 0)
	return s
}
