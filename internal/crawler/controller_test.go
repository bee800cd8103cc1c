package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testHost = "https://www.example.com"

type fakePage struct {
	description string
	sections    []Section
}

// fakeSite serves pages keyed by URL and doubles as the extractor: the HTML
// it returns is the URL itself.
type fakeSite struct {
	t            *testing.T
	mu           sync.Mutex
	pages        map[string]fakePage
	calls        map[string]int
	failOnRepeat bool
}

func newFakeSite(t *testing.T, pages map[string]fakePage) *fakeSite {
	return &fakeSite{t: t, pages: pages, calls: make(map[string]int)}
}

func (s *fakeSite) FetchHTML(_ context.Context, rawURL string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[rawURL]++
	if s.failOnRepeat && s.calls[rawURL] > 1 {
		s.t.Errorf("url fetched more than once: %s", rawURL)
	}
	if _, ok := s.pages[rawURL]; !ok {
		return ""
	}
	return rawURL
}

func (s *fakeSite) Description(html string) string {
	return s.pages[html].description
}

func (s *fakeSite) Sections(html string, _ string) []Section {
	return s.pages[html].sections
}

func (s *fakeSite) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

type fakePolicy struct{}

func (fakePolicy) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "/") {
		return testHost + raw
	}
	return raw
}

func (fakePolicy) IsValidResourceURL(raw string) bool {
	return strings.HasPrefix(raw, testHost) && strings.Contains(raw, "/solutions/")
}

// memoryCheckpoint keeps a JSON copy of every save. When failAt is set the
// save with that 1-based call number returns err.
type memoryCheckpoint struct {
	calls  int
	saves  int
	last   []byte
	err    error
	failAt int
}

func (m *memoryCheckpoint) Save(nodes []*CrawlNode) error {
	m.calls++
	if m.err != nil && (m.failAt == 0 || m.calls == m.failAt) {
		return m.err
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return err
	}
	m.saves++
	m.last = data
	return nil
}

func (m *memoryCheckpoint) load(t *testing.T) []*CrawlNode {
	t.Helper()
	var nodes []*CrawlNode
	require.NoError(t, json.Unmarshal(m.last, &nodes))
	return nodes
}

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

type mockBlobStore struct {
	mock.Mock
}

func (m *mockBlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	body, _ := io.ReadAll(data)
	args := m.Called(ctx, path, contentType, string(body))
	return args.String(0), args.Error(1)
}

type fixedHasher struct{}

func (fixedHasher) Hash([]byte) (string, error) {
	return strings.Repeat("ab", 32), nil
}

func sec(title, path string) Section {
	return Section{Title: title, Link: path}
}

func catalog() map[string]fakePage {
	return map[string]fakePage{
		testHost + "/en/solutions.html": {sections: []Section{
			sec("Radar", "/en/solutions/radar.html"),
			sec("Audio", "/en/solutions/audio.html"),
		}},
		testHost + "/en/solutions/radar.html": {description: "Radar systems", sections: []Section{
			sec("Automotive Radar", "/en/solutions/radar/automotive.html"),
			sec("Audio", "/en/solutions/audio.html"),
		}},
		testHost + "/en/solutions/radar/automotive.html": {description: "Automotive", sections: []Section{
			sec("Radar", "/en/solutions/radar.html"),
			sec("Deep", "/en/solutions/radar/automotive/deep.html"),
		}},
		testHost + "/en/solutions/radar/automotive/deep.html": {description: "Deep page"},
		testHost + "/en/solutions/audio.html":                 {description: "Audio systems"},
	}
}

func newTestController(site *fakeSite, store CheckpointStore, cfg ControllerConfig, opts ...ControllerOption) *Controller {
	opts = append([]ControllerOption{WithPauser(noPause{})}, opts...)
	return NewController(cfg, site, site, fakePolicy{}, store, nil, opts...)
}

func TestCrawlBuildsTreeDepthFirst(t *testing.T) {
	site := newFakeSite(t, catalog())
	store := &memoryCheckpoint{}
	ctrl := newTestController(site, store, ControllerConfig{MaxDepth: 3})

	res, err := ctrl.Crawl(context.Background(), "/en/solutions.html", nil)
	require.NoError(t, err)
	require.False(t, res.BudgetExhausted)

	require.Len(t, res.Nodes, 2)
	radar := res.Nodes[0]
	require.Equal(t, "Radar", radar.Title)
	require.Equal(t, "Radar systems", radar.Description)
	require.Equal(t, 0, radar.Depth)
	require.Equal(t, testHost+"/en/solutions.html", radar.ParentURL)
	require.Len(t, radar.Children, 1, "audio is already recorded at the root level")

	auto := radar.Children[0]
	require.Equal(t, 1, auto.Depth)
	require.Equal(t, "Automotive", auto.Description)
	require.Equal(t, radar.URL, auto.ParentURL)
	require.Len(t, auto.Children, 1)
	require.Equal(t, 2, auto.Children[0].Depth)
	require.Empty(t, auto.Children[0].Description, "max depth pages are not fetched")

	require.Equal(t, "Audio systems", res.Nodes[1].Description)
	require.Equal(t, []string{
		testHost + "/en/solutions/radar.html",
		testHost + "/en/solutions/radar/automotive.html",
		testHost + "/en/solutions/radar/automotive/deep.html",
		testHost + "/en/solutions/audio.html",
	}, URLs(res.Nodes))
	require.Equal(t, 4, res.Processed)
	require.Greater(t, store.saves, 0)
}

func TestCrawlNeverRecordsDuplicateURLs(t *testing.T) {
	pages := catalog()
	pages[testHost+"/en/solutions/audio.html"] = fakePage{sections: []Section{
		sec("Radar again", "/en/solutions/radar.html"),
		sec("Self", "/en/solutions/audio.html"),
		sec("Seed", "/en/solutions.html"),
	}}
	site := newFakeSite(t, pages)
	site.failOnRepeat = true
	ctrl := newTestController(site, &memoryCheckpoint{}, ControllerConfig{MaxDepth: 5})

	res, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.NoError(t, err)

	seen := make(map[string]bool)
	Walk(res.Nodes, func(node *CrawlNode) {
		require.False(t, seen[node.URL], "duplicate url %s", node.URL)
		seen[node.URL] = true
	})
}

func TestCrawlChildDepthIsParentPlusOne(t *testing.T) {
	site := newFakeSite(t, catalog())
	ctrl := newTestController(site, &memoryCheckpoint{}, ControllerConfig{MaxDepth: 4})

	res, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.NoError(t, err)
	for _, root := range res.Nodes {
		require.Equal(t, 0, root.Depth)
	}
	Walk(res.Nodes, func(node *CrawlNode) {
		for _, child := range node.Children {
			require.Equal(t, node.Depth+1, child.Depth)
			require.Equal(t, node.URL, child.ParentURL)
		}
	})
}

func TestCrawlFetchDescriptionsAtMaxDepth(t *testing.T) {
	site := newFakeSite(t, catalog())
	ctrl := newTestController(site, &memoryCheckpoint{}, ControllerConfig{MaxDepth: 1, FetchDescriptions: true})

	res, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 2)
	require.Equal(t, "Radar systems", res.Nodes[0].Description)
	require.Empty(t, res.Nodes[0].Children)
	require.Equal(t, 3, res.Processed)

	site = newFakeSite(t, catalog())
	ctrl = newTestController(site, &memoryCheckpoint{}, ControllerConfig{MaxDepth: 1})
	res, err = ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.NoError(t, err)
	require.Empty(t, res.Nodes[0].Description)
	require.Equal(t, 1, res.Processed)
}

func TestCrawlRespectsPageBudget(t *testing.T) {
	site := newFakeSite(t, catalog())
	ctrl := newTestController(site, &memoryCheckpoint{}, ControllerConfig{MaxDepth: 3, MaxPages: 2})

	res, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.NoError(t, err)
	require.True(t, res.BudgetExhausted)
	require.Equal(t, 2, res.Processed)
	require.Equal(t, 2, site.totalCalls())
}

func TestCrawlResumeNeverRefetches(t *testing.T) {
	site := newFakeSite(t, catalog())
	site.failOnRepeat = true
	store := &memoryCheckpoint{}

	first := newTestController(site, store, ControllerConfig{MaxDepth: 3, MaxPages: 2})
	res, err := first.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.NoError(t, err)
	require.True(t, res.BudgetExhausted)

	resumed := store.load(t)
	require.NotEmpty(t, resumed)

	second := newTestController(site, store, ControllerConfig{MaxDepth: 3})
	res, err = second.Crawl(context.Background(), testHost+"/en/solutions.html", resumed)
	require.NoError(t, err)
	require.Equal(t, 2, res.Processed, "only the pending automotive and audio pages are fetched")

	Walk(res.Nodes, func(node *CrawlNode) {
		require.False(t, node.Pending, "node %s left pending", node.URL)
	})
	require.Equal(t, "Automotive", res.Nodes[0].Children[0].Description)
	require.Equal(t, "Audio systems", res.Nodes[1].Description)
}

type cancelAfterPauser struct {
	n      int
	cancel context.CancelFunc
}

func (p *cancelAfterPauser) Pause(context.Context, time.Duration) {
	p.n--
	if p.n <= 0 {
		p.cancel()
	}
}

func TestCrawlCancellationSavesCheckpoint(t *testing.T) {
	site := newFakeSite(t, catalog())
	store := &memoryCheckpoint{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pauser := &cancelAfterPauser{n: 2, cancel: cancel}
	ctrl := newTestController(site, store, ControllerConfig{MaxDepth: 3}, WithPauser(pauser))

	res, err := ctrl.Crawl(ctx, testHost+"/en/solutions.html", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, res.Processed)
	require.Len(t, res.Nodes, 2)

	saved := store.load(t)
	require.Len(t, saved, 2)
	require.True(t, saved[0].Pending, "interrupted node must stay pending for resume")
	require.True(t, saved[1].Pending)
}

func TestCrawlSeedUnreachable(t *testing.T) {
	site := newFakeSite(t, map[string]fakePage{})
	ctrl := newTestController(site, &memoryCheckpoint{}, ControllerConfig{MaxDepth: 3})

	res, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.ErrorIs(t, err, ErrSeedUnreachable)
	require.Empty(t, res.Nodes)
}

func TestCrawlFailedChildKeepsNode(t *testing.T) {
	pages := catalog()
	delete(pages, testHost+"/en/solutions/audio.html")
	site := newFakeSite(t, pages)
	ctrl := newTestController(site, &memoryCheckpoint{}, ControllerConfig{MaxDepth: 3})

	res, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 2)
	require.Equal(t, "Audio", res.Nodes[1].Title)
	require.Empty(t, res.Nodes[1].Description)
	require.False(t, res.Nodes[1].Pending)
}

func TestCrawlInvalidLinksAreRecordedButNotVisited(t *testing.T) {
	site := newFakeSite(t, map[string]fakePage{
		testHost + "/en/solutions.html": {sections: []Section{
			sec("Elsewhere", "https://other.example.org/en/solutions/x.html"),
			sec("Video", "/en/videos/x.html"),
		}},
	})
	site.failOnRepeat = true
	ctrl := newTestController(site, &memoryCheckpoint{}, ControllerConfig{MaxDepth: 3})

	res, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 2)
	require.Equal(t, 1, site.totalCalls())
}

func TestCrawlCheckpointFailureIsFatal(t *testing.T) {
	site := newFakeSite(t, catalog())
	store := &memoryCheckpoint{err: errors.New("disk full")}
	ctrl := newTestController(site, store, ControllerConfig{MaxDepth: 3})

	_, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCheckpoint)
	require.Contains(t, err.Error(), "disk full")
}

func TestCrawlResumeAfterFailedSaveKeepsAllSections(t *testing.T) {
	pages := map[string]fakePage{
		testHost + "/en/solutions.html": {sections: []Section{
			sec("Radar", "/en/solutions/radar.html"),
			sec("Power", "/en/solutions/power.html"),
		}},
		testHost + "/en/solutions/radar.html": {description: "Radar systems", sections: []Section{
			sec("Automotive Radar", "/en/solutions/radar/automotive.html"),
		}},
		testHost + "/en/solutions/power.html":            {description: "Power systems"},
		testHost + "/en/solutions/radar/automotive.html": {description: "Automotive"},
	}
	store := &memoryCheckpoint{err: errors.New("disk full"), failAt: 2}
	first := newTestController(newFakeSite(t, pages), store, ControllerConfig{MaxDepth: 3})

	_, err := first.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.ErrorIs(t, err, ErrCheckpoint)
	require.Equal(t, 1, store.saves)

	durable := store.load(t)
	require.Len(t, durable, 2, "seed sections are saved together")
	for _, node := range durable {
		require.True(t, node.Pending, "%s must be revisited on resume", node.Title)
	}

	second := newTestController(newFakeSite(t, pages), &memoryCheckpoint{}, ControllerConfig{MaxDepth: 3})
	res, err := second.Crawl(context.Background(), testHost+"/en/solutions.html", durable)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 2)
	require.Equal(t, "Radar", res.Nodes[0].Title)
	require.Equal(t, "Power", res.Nodes[1].Title)
	require.Equal(t, "Radar systems", res.Nodes[0].Description)
	require.Equal(t, "Power systems", res.Nodes[1].Description)
	require.Len(t, res.Nodes[0].Children, 1)
	require.Equal(t, "Automotive", res.Nodes[0].Children[0].Description)
}

func TestCrawlSavesOncePerPage(t *testing.T) {
	site := newFakeSite(t, catalog())
	store := &memoryCheckpoint{}
	ctrl := newTestController(site, store, ControllerConfig{MaxDepth: 3})

	res, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.NoError(t, err)
	require.Equal(t, res.Processed, store.saves)
}

type panickyExtractor struct {
	*fakeSite
	on string
}

func (p panickyExtractor) Sections(html string, baseURL string) []Section {
	if html == p.on {
		panic("bad markup")
	}
	return p.fakeSite.Sections(html, baseURL)
}

func TestCrawlPanicReturnsPartialTree(t *testing.T) {
	site := newFakeSite(t, catalog())
	extractor := panickyExtractor{fakeSite: site, on: testHost + "/en/solutions/radar.html"}
	ctrl := NewController(ControllerConfig{MaxDepth: 3}, site, extractor, fakePolicy{}, &memoryCheckpoint{}, nil, WithPauser(noPause{}))

	res, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad markup")
	require.Len(t, res.Nodes, 2)
	require.True(t, res.Nodes[0].Pending)
	require.Equal(t, 2, res.Processed)
}

func TestCrawlWritesDebugSnapshots(t *testing.T) {
	site := newFakeSite(t, map[string]fakePage{
		testHost + "/en/solutions.html": {},
	})
	blobs := &mockBlobStore{}
	blobs.On("PutObject", mock.Anything, "debug/run-1/0_1_"+strings.Repeat("ab", 8)+".html", "text/html; charset=utf-8", testHost+"/en/solutions.html").
		Return("memory://debug", nil).Once()

	ctrl := newTestController(site, &memoryCheckpoint{},
		ControllerConfig{MaxDepth: 3, DebugHTML: true, RunID: "run-1"},
		WithSnapshots(blobs, fixedHasher{}),
	)
	_, err := ctrl.Crawl(context.Background(), testHost+"/en/solutions.html", nil)
	require.NoError(t, err)
	blobs.AssertExpectations(t)
}

func TestRefreshReplacesOnlyWithNonEmptyDescriptions(t *testing.T) {
	site := newFakeSite(t, map[string]fakePage{
		testHost + "/a": {description: "fresh A"},
		testHost + "/b": {description: ""},
	})
	nodes := []*CrawlNode{
		{Title: "A", URL: testHost + "/a", Description: "old A", Children: []*CrawlNode{
			{Title: "B", URL: testHost + "/b", Description: "old B", Depth: 1},
			{Title: "C", URL: testHost + "/c", Description: "old C", Depth: 1},
		}},
	}
	store := &memoryCheckpoint{}
	refresher := NewRefresher(site, site, store, 0, noPause{}, nil)

	res, err := refresher.Refresh(context.Background(), nodes)
	require.NoError(t, err)
	require.Equal(t, RefreshResult{Visited: 3, Updated: 1}, res)
	require.Equal(t, "fresh A", nodes[0].Description)
	require.Equal(t, "old B", nodes[0].Children[0].Description)
	require.Equal(t, "old C", nodes[0].Children[1].Description)
	require.Equal(t, 3, store.saves)
	require.True(t, bytes.Contains(store.last, []byte("fresh A")))
}
