package crawler

import (
	"context"
	"time"
)

// crawlState is scoped to one Crawl call and owned by it exclusively.
type crawlState struct {
	visited   map[string]struct{}
	processed int
}

func newCrawlState() *crawlState {
	return &crawlState{
		visited: make(map[string]struct{}),
	}
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (s *crawlState) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	if _, seen := s.visited[url]; seen {
		return false
	}
	s.visited[url] = struct{}{}
	return true
}

// Visited reports whether the URL was already attempted or recorded.
func (s *crawlState) Visited(url string) bool {
	_, seen := s.visited[url]
	return seen
}

// TimerPauser sleeps for the requested delay unless the context ends first.
type TimerPauser struct{}

// Pause implements Pauser.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
