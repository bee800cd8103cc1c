// Package retry wraps a crawler.Fetcher with bounded exponential backoff and
// exposes the best-effort page fetch used by the crawl controller.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
	"github.com/JakeFAU/solutions-crawler/internal/metrics"
)

// Policy decides which failures are retried and how long to wait.
type Policy struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// RetryStatuses lists non-5xx status codes that are retried.
	RetryStatuses []int
}

// DefaultPolicy returns three attempts starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BackoffInitial: time.Second,
		BackoffMax:     30 * time.Second,
		RetryStatuses:  []int{http.StatusTooManyRequests},
	}
}

// ShouldRetry reports whether attempt (1-based) may be followed by another.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *crawler.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= http.StatusInternalServerError {
			return true
		}
		for _, code := range p.RetryStatuses {
			if code == statusErr.StatusCode {
				return true
			}
		}
		return false
	}
	if errors.Is(err, colly.ErrRobotsTxtBlocked) || errors.Is(err, colly.ErrForbiddenURL) ||
		errors.Is(err, colly.ErrMissingURL) || errors.Is(err, colly.ErrForbiddenDomain) {
		return false
	}
	return true
}

// Backoff returns the wait after attempt (1-based): initial doubled per
// attempt and capped at BackoffMax.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.BackoffMax > 0 && delay >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && delay > p.BackoffMax {
		return p.BackoffMax
	}
	return delay
}

// Fetcher retries a wrapped crawler.Fetcher according to a Policy.
type Fetcher struct {
	next   crawler.Fetcher
	policy Policy
	pauser crawler.Pauser
	logger *zap.Logger
}

// New wraps next. A nil pauser uses crawler.TimerPauser.
func New(next crawler.Fetcher, policy Policy, pauser crawler.Pauser, logger *zap.Logger) *Fetcher {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{next: next, policy: policy, pauser: pauser, logger: logger}
}

// Fetch implements crawler.Fetcher with retries.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var (
		resp crawler.FetchResponse
		err  error
	)
	for attempt := 1; ; attempt++ {
		resp, err = f.next.Fetch(ctx, request)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return resp, fmt.Errorf("fetch %s: %w", request.URL, ctx.Err())
		}
		if !f.policy.ShouldRetry(err, attempt) {
			return resp, fmt.Errorf("fetch %s after %d attempt(s): %w", request.URL, attempt, err)
		}
		wait := f.policy.Backoff(attempt)
		metrics.ObserveRetry(request.URL)
		f.logger.Info("retrying fetch",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.policy.MaxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		f.pauser.Pause(ctx, wait)
	}
}

// FetchHTML implements crawler.PageFetcher. Every failure is logged and
// reported as an empty string.
func (f *Fetcher) FetchHTML(ctx context.Context, rawURL string) string {
	resp, err := f.Fetch(ctx, crawler.FetchRequest{URL: rawURL})
	if err != nil {
		fields := []zap.Field{zap.String("url", rawURL), zap.Error(err)}
		if len(resp.Body) > 0 {
			fields = append(fields, zap.String("body_prefix", prefix(resp.Body, 500)))
		}
		f.logger.Error("fetch page failed", fields...)
		return ""
	}
	if ct := resp.Headers.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		f.logger.Warn("unexpected content type", zap.String("url", rawURL), zap.String("content_type", ct))
	}
	return string(resp.Body)
}

func prefix(body []byte, n int) string {
	if len(body) > n {
		body = body[:n]
	}
	return string(body)
}
