// Package download fetches discovered binary resources concurrently and
// stores them through a blob store.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
	"github.com/JakeFAU/solutions-crawler/internal/metrics"
)

const timestampLayout = "20060102_150405"

// Waiter paces requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Result is the outcome of one download.
type Result struct {
	Link     crawler.Link
	Filename string
	URI      string
	Err      error
}

// Report summarizes a batch.
type Report struct {
	Total     int
	Succeeded int
	Results   []Result
}

// Err aggregates every failed download, or returns nil.
func (r Report) Err() error {
	var merr *multierror.Error
	for _, res := range r.Results {
		if res.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", res.Link.URL, res.Err))
		}
	}
	return merr.ErrorOrNil()
}

// Downloader fetches links and writes their bodies to a blob store.
type Downloader struct {
	fetcher crawler.Fetcher
	blobs   crawler.BlobStore
	limiter Waiter
	clock   crawler.Clock
	prefix  string
	logger  *zap.Logger
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithLimiter paces downloads per host.
func WithLimiter(w Waiter) Option {
	return func(d *Downloader) { d.limiter = w }
}

// WithPrefix stores every file under prefix.
func WithPrefix(prefix string) Option {
	return func(d *Downloader) { d.prefix = strings.Trim(prefix, "/") }
}

// New builds a Downloader.
func New(fetcher crawler.Fetcher, blobs crawler.BlobStore, clock crawler.Clock, logger *zap.Logger, opts ...Option) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Downloader{
		fetcher: fetcher,
		blobs:   blobs,
		clock:   clock,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DownloadAll fetches links with at most maxConcurrency downloads in flight.
// Individual failures are recorded in the report and never abort the batch.
func (d *Downloader) DownloadAll(ctx context.Context, links []crawler.Link, maxConcurrency int) Report {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	names := UniqueNames(d.clock.Now().Format(timestampLayout), links)
	results := make([]Result, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for i, link := range links {
		results[i] = Result{Link: link, Filename: names[i]}
		g.Go(func() error {
			uri, err := d.downloadOne(gctx, link, names[i])
			results[i].URI, results[i].Err = uri, err
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Total: len(links), Results: results}
	for _, res := range results {
		if res.Err == nil {
			report.Succeeded++
		}
	}
	d.logger.Info("download complete",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("total", report.Total),
	)
	return report
}

func (d *Downloader) downloadOne(ctx context.Context, link crawler.Link, name string) (string, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, link.URL); err != nil {
			metrics.ObserveDownload("canceled")
			return "", err
		}
	}
	resp, err := d.fetcher.Fetch(ctx, crawler.FetchRequest{URL: link.URL})
	if err != nil {
		metrics.ObserveDownload("error")
		d.logger.Error("download failed", zap.String("url", link.URL), zap.Error(err))
		return "", fmt.Errorf("fetch: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveDownload("error")
		err := &crawler.StatusError{URL: link.URL, StatusCode: resp.StatusCode}
		d.logger.Error("download failed", zap.String("url", link.URL), zap.Error(err))
		return "", err
	}

	path := name
	if d.prefix != "" {
		path = d.prefix + "/" + name
	}
	uri, err := d.blobs.PutObject(ctx, path, contentType(resp), bytes.NewReader(resp.Body))
	if err != nil {
		metrics.ObserveDownload("error")
		return "", fmt.Errorf("store %s: %w", path, err)
	}
	metrics.ObserveDownload("ok")
	d.logger.Info("downloaded", zap.String("url", link.URL), zap.String("uri", uri), zap.Int("bytes", len(resp.Body)))
	return uri, nil
}

func contentType(resp crawler.FetchResponse) string {
	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/pdf"
}

// SanitizeFilename keeps letters, digits, spaces, hyphens and underscores,
// trims, maps spaces to underscores and appends ".pdf".
func SanitizeFilename(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	name := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	if name == "" {
		name = "download"
	}
	if !strings.HasSuffix(name, ".pdf") {
		name += ".pdf"
	}
	return name
}

// UniqueNames returns "<timestamp>_<sanitized>" per link, suffixing
// collisions with _2, _3 and so on.
func UniqueNames(timestamp string, links []crawler.Link) []string {
	names := make([]string, len(links))
	used := make(map[string]struct{}, len(links))
	for i, link := range links {
		base := strings.TrimSuffix(SanitizeFilename(link.Text), ".pdf")
		candidate := timestamp + "_" + base + ".pdf"
		for n := 2; ; n++ {
			if _, taken := used[candidate]; !taken {
				break
			}
			candidate = timestamp + "_" + base + "_" + strconv.Itoa(n) + ".pdf"
		}
		used[candidate] = struct{}{}
		names[i] = candidate
	}
	return names
}

// ErrNoLinks is returned when a page yields nothing to download.
var ErrNoLinks = errors.New("no pdf links found")
