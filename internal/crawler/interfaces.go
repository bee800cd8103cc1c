package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageFetcher returns a page's HTML or an empty string on any failure.
type PageFetcher interface {
	FetchHTML(ctx context.Context, rawURL string) string
}

// Extractor turns fetched HTML into structured content.
type Extractor interface {
	Description(html string) string
	Sections(html string, baseURL string) []Section
}

// URLPolicy canonicalizes URLs and decides which ones are in scope for recursion.
type URLPolicy interface {
	Normalize(rawURL string) string
	IsValidResourceURL(rawURL string) bool
}

// CheckpointStore persists the current crawl tree.
type CheckpointStore interface {
	Save(nodes []*CrawlNode) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used in artifact names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Pauser waits between requests.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}
