package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var noisePatterns = []string{
	"var ",
	"function()",
	".js",
	".css",
	"google-analytics",
	"disqus",
	"{",
	"}",
}

// PageText renders the body of page as indented lines, anchors written as
// markdown links. Repeated text and script-like noise are dropped.
func PageText(page string) string {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}
	start := findBody(root)
	if start == nil {
		start = root
	}

	w := &textWriter{seen: make(map[string]struct{})}
	w.element(start, 0)

	var kept []string
	for _, line := range w.lines {
		if !isNoise(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

type textWriter struct {
	seen  map[string]struct{}
	lines []string
}

func (w *textWriter) element(n *html.Node, depth int) {
	if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			w.text(n, c.Data, depth)
		case html.ElementNode, html.DocumentNode:
			w.element(c, depth+1)
		}
	}
}

func (w *textWriter) text(parent *html.Node, raw string, depth int) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return
	}
	if _, dup := w.seen[text]; dup {
		return
	}
	line := text
	if parent.DataAtom == atom.A {
		href := attr(parent, "href")
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		line = "[" + text + "](" + href + ")"
	}
	w.seen[text] = struct{}{}
	w.lines = append(w.lines, strings.Repeat("  ", depth)+line)
}

func isNoise(line string) bool {
	lower := strings.ToLower(line)
	for _, pattern := range noisePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body := findBody(c); body != nil {
			return body
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
