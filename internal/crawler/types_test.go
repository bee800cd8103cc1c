package crawler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWalkDocumentOrder(t *testing.T) {
	nodes := []*CrawlNode{
		{URL: "a", Children: []*CrawlNode{{URL: "a1"}, {URL: "a2", Children: []*CrawlNode{{URL: "a2x"}}}}},
		{URL: "b"},
	}
	require.Equal(t, []string{"a", "a1", "a2", "a2x", "b"}, URLs(nodes))
}

func TestCrawlNodeJSONOmitsEmptyChildren(t *testing.T) {
	leaf := &CrawlNode{Title: "Radar", URL: "https://www.example.com/en/solutions/radar.html"}
	data, err := json.Marshal(leaf)
	require.NoError(t, err)
	require.NotContains(t, string(data), "children")
	require.NotContains(t, string(data), "pending")
	require.True(t, leaf.IsLeaf())

	leaf.Pending = true
	data, err = json.Marshal(leaf)
	require.NoError(t, err)
	require.Contains(t, string(data), `"pending":true`)
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{URL: "https://example.com", StatusCode: 503}
	require.Equal(t, "unexpected status 503 for https://example.com", err.Error())
}
