package download

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
}

type fakeFetcher struct {
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	statuses map[string]int
}

func (f *fakeFetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return crawler.FetchResponse{}, ctx.Err()
	}
	status := http.StatusOK
	if code, ok := f.statuses[req.URL]; ok {
		status = code
	}
	if status == -1 {
		return crawler.FetchResponse{}, errors.New("connection refused")
	}
	return crawler.FetchResponse{
		URL:        req.URL,
		StatusCode: status,
		Headers:    http.Header{"Content-Type": {"application/pdf"}},
		Body:       []byte("%PDF-" + req.URL),
	}, nil
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string]string
}

func (m *memBlobs) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string]string)
	}
	m.objects[path] = string(body)
	return "memory://" + path, nil
}

type countingWaiter struct {
	calls atomic.Int32
}

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls.Add(1)
	return nil
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "Solutions_Bulletin__Brochure_1.pdf", SanitizeFilename("Solutions Bulletin & Brochure #1"))
	assert.Equal(t, "data-sheet_v2.pdf", SanitizeFilename("  data-sheet_v2  "))
	assert.Equal(t, "brochurepdf.pdf", SanitizeFilename("brochure.pdf"))
	assert.Equal(t, "download.pdf", SanitizeFilename("&&&"))
	assert.Equal(t, "Café_Übersicht.pdf", SanitizeFilename("Café Übersicht"))

	name := SanitizeFilename("Solutions Bulletin & Brochure #1")
	for _, r := range name[:len(name)-len(".pdf")] {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
		assert.True(t, ok, "unexpected rune %q", r)
	}
}

func TestUniqueNamesSuffixesCollisions(t *testing.T) {
	links := []crawler.Link{
		{URL: "https://x/a.pdf", Text: "Brochure"},
		{URL: "https://x/b.pdf", Text: "Brochure!"},
		{URL: "https://x/c.pdf", Text: "Brochure"},
		{URL: "https://x/d.pdf", Text: "Other"},
	}
	assert.Equal(t, []string{
		"20240305_140709_Brochure.pdf",
		"20240305_140709_Brochure_2.pdf",
		"20240305_140709_Brochure_3.pdf",
		"20240305_140709_Other.pdf",
	}, UniqueNames("20240305_140709", links))
}

func TestDownloadAllBoundsConcurrency(t *testing.T) {
	fetcher := &fakeFetcher{delay: 20 * time.Millisecond}
	blobs := &memBlobs{}
	waiter := &countingWaiter{}
	d := New(fetcher, blobs, fixedClock{}, nil, WithLimiter(waiter), WithPrefix("pdfs/"))

	links := make([]crawler.Link, 10)
	for i := range links {
		links[i] = crawler.Link{URL: "https://example.com/" + string(rune('a'+i)) + ".pdf", Text: "Doc " + string(rune('A'+i))}
	}
	report := d.DownloadAll(context.Background(), links, 3)

	require.NoError(t, report.Err())
	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 10, report.Succeeded)
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(3))
	assert.Equal(t, int32(10), waiter.calls.Load())
	assert.Len(t, blobs.objects, 10)
	assert.Equal(t, "%PDF-https://example.com/a.pdf", blobs.objects["pdfs/20240305_140709_Doc_A.pdf"])
	assert.Equal(t, "memory://pdfs/20240305_140709_Doc_A.pdf", report.Results[0].URI)
}

func TestDownloadAllReportsFailures(t *testing.T) {
	fetcher := &fakeFetcher{statuses: map[string]int{
		"https://example.com/missing.pdf": http.StatusNotFound,
		"https://example.com/down.pdf":    -1,
	}}
	d := New(fetcher, &memBlobs{}, fixedClock{}, nil)
	links := []crawler.Link{
		{URL: "https://example.com/ok.pdf", Text: "ok"},
		{URL: "https://example.com/missing.pdf", Text: "missing"},
		{URL: "https://example.com/down.pdf", Text: "down"},
	}
	report := d.DownloadAll(context.Background(), links, 0)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Succeeded)
	require.NoError(t, report.Results[0].Err)
	var statusErr *crawler.StatusError
	require.True(t, errors.As(report.Results[1].Err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Error(t, report.Results[2].Err)

	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
}

func TestDownloadAllEmpty(t *testing.T) {
	d := New(&fakeFetcher{}, &memBlobs{}, fixedClock{}, nil)
	report := d.DownloadAll(context.Background(), nil, 4)
	assert.Equal(t, 0, report.Total)
	assert.NoError(t, report.Err())
}
