// Package crawler defines core types shared across subsystems.
package crawler

import (
	"fmt"
	"net/http"
	"time"
)

// CrawlNode is one discovered page or resource in the crawl tree.
type CrawlNode struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	ImageURL    string `json:"image_url"`
	Depth       int    `json:"depth"`
	ParentURL   string `json:"parent_url"`
	// Pending marks a node whose own page has not been fetched yet.
	Pending  bool         `json:"pending,omitempty"`
	Children []*CrawlNode `json:"children,omitempty"`
}

// IsLeaf reports whether the node has no children.
func (n *CrawlNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// Section is one titled entry extracted from a listing page.
type Section struct {
	Title    string
	Link     string
	ImageURL string
}

// Link is a downloadable resource discovered on a page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// StatusError reports a completed HTTP exchange with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Walk visits every node depth-first in document order.
func Walk(nodes []*CrawlNode, fn func(node *CrawlNode)) {
	stack := make([]*CrawlNode, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, nodes[i])
	}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == nil {
			continue
		}
		fn(node)
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, node.Children[i])
		}
	}
}

// URLs returns every node URL in the tree, nested children included.
func URLs(nodes []*CrawlNode) []string {
	var out []string
	Walk(nodes, func(node *CrawlNode) {
		out = append(out, node.URL)
	})
	return out
}
