// Package app assembles the long-lived services shared by solcrawl commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/JakeFAU/solutions-crawler/internal/checkpoint"
	"github.com/JakeFAU/solutions-crawler/internal/clock/system"
	"github.com/JakeFAU/solutions-crawler/internal/config"
	"github.com/JakeFAU/solutions-crawler/internal/crawler"
	"github.com/JakeFAU/solutions-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/solutions-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/solutions-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/solutions-crawler/internal/fetcher/retry"
	"github.com/JakeFAU/solutions-crawler/internal/hash/sha256"
	"github.com/JakeFAU/solutions-crawler/internal/id/uuid"
	"github.com/JakeFAU/solutions-crawler/internal/metrics"
	"github.com/JakeFAU/solutions-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/solutions-crawler/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/solutions-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/solutions-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/solutions-crawler/internal/storage/memory"
	"github.com/JakeFAU/solutions-crawler/internal/storage/postgres"
	"github.com/JakeFAU/solutions-crawler/internal/urlnorm"
)

// TreeExporter persists a finished tree outside the JSON files.
type TreeExporter interface {
	SaveTree(ctx context.Context, runID string, exportedAt time.Time, nodes []*crawler.CrawlNode) (int, error)
}

// App holds the services built once per process from configuration.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	blobs     crawler.BlobStore
	exporter  TreeExporter
	publisher crawler.Publisher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	hasher    crawler.Hasher
	transport http.RoundTripper
	closers   []func() error
}

// Option overrides a service New would otherwise build from configuration.
type Option func(*App)

// WithBlobStore sets the artifact store.
func WithBlobStore(blobs crawler.BlobStore) Option {
	return func(a *App) { a.blobs = blobs }
}

// WithExporter sets the tree exporter.
func WithExporter(exporter TreeExporter) Option {
	return func(a *App) { a.exporter = exporter }
}

// WithPublisher sets the completion publisher.
func WithPublisher(publisher crawler.Publisher) Option {
	return func(a *App) { a.publisher = publisher }
}

// WithClock sets the clock used for run timestamps and download batch names.
func WithClock(clock crawler.Clock) Option {
	return func(a *App) { a.clock = clock }
}

// WithTransport sets the HTTP round tripper used by the plain page fetcher.
func WithTransport(rt http.RoundTripper) Option {
	return func(a *App) { a.transport = rt }
}

// New builds the services described by cfg. Optional sinks are only dialed
// when configured, and anything dialed is released by Close.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		ids:    uuid.New(""),
		hasher: sha256.New(16),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = system.NewIn(time.Local)
	}

	if err := a.initBlobs(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initExporter(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.initMetrics()

	return a, nil
}

func (a *App) initBlobs(ctx context.Context) error {
	if a.blobs != nil {
		return nil
	}
	switch a.cfg.Storage.Backend {
	case "gcs":
		store, closeFn, err := gcsstorage.Dial(ctx, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.GCSPrefix,
		})
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.logger.Info("using gcs blob storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		a.blobs = store
		a.closers = append(a.closers, closeFn)
	case "memory":
		a.logger.Info("using in-memory blob storage; artifacts are discarded on exit")
		a.blobs = memorystorage.NewBlobStore()
	default:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Dir})
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.blobs = store
	}
	return nil
}

func (a *App) initExporter(ctx context.Context) error {
	if a.exporter != nil || a.cfg.DB.DSN == "" {
		return nil
	}
	store, err := postgres.NewNodeStore(ctx, postgres.NodeStoreConfig{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("init node store: %w", err)
	}
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("init node store: %w", err)
	}
	a.exporter = store
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.publisher != nil || a.cfg.PubSub.Topic == "" {
		return nil
	}
	pub, err := pubsubpublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	a.publisher = pub
	a.closers = append(a.closers, pub.Close)
	return nil
}

func (a *App) initMetrics() {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	srv := metrics.NewServer(a.cfg.Metrics.Addr)
	go func() {
		a.logger.Info("metrics server listening", zap.String("addr", a.cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Blobs returns the artifact store.
func (a *App) Blobs() crawler.BlobStore { return a.blobs }

// Clock returns the process clock.
func (a *App) Clock() crawler.Clock { return a.clock }

// Hasher returns the digest used in snapshot names.
func (a *App) Hasher() crawler.Hasher { return a.hasher }

// NewRunID returns a fresh crawl run ID.
func (a *App) NewRunID() (string, error) {
	id, err := a.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}
	return id, nil
}

// Normalizer builds the URL policy for the configured site.
func (a *App) Normalizer() *urlnorm.Normalizer {
	return urlnorm.New(urlnorm.Config{
		Domain:         a.cfg.Crawler.Domain,
		ResourceMarker: a.cfg.Crawler.ResourceMarker,
		ExcludePaths:   a.cfg.Crawler.ExcludePaths,
	})
}

// Extractor builds the content extractor, resolving links with n.
func (a *App) Extractor(n *urlnorm.Normalizer) *extract.Extractor {
	return extract.New(extract.Config{
		ContentClass: a.cfg.Crawler.ContentClass,
		BackPrefix:   a.cfg.Crawler.BackPrefix,
		LinkMarker:   a.cfg.Crawler.LinkMarker,
		Resolver:     n,
	})
}

// Limiter builds the per-host limiter used by downloads.
func (a *App) Limiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Download.RPS,
		DefaultBurst: a.cfg.Download.Burst,
	})
}

// RetryPolicy converts the http section into a retry schedule.
func (a *App) RetryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = a.cfg.HTTP.MaxAttempts
	if a.cfg.HTTP.BackoffInitial > 0 {
		policy.BackoffInitial = a.cfg.HTTP.BackoffInitial
	}
	if a.cfg.HTTP.BackoffMax > 0 {
		policy.BackoffMax = a.cfg.HTTP.BackoffMax
	}
	if a.cfg.HTTP.RetryStatuses != nil {
		policy.RetryStatuses = a.cfg.HTTP.RetryStatuses
	}
	return policy
}

// NewFetcher returns the retrying page fetcher. With headless set the
// transport is a pooled Chrome instance; otherwise plain HTTP via colly.
// The returned func releases the transport.
func (a *App) NewFetcher(headless bool) (*retry.Fetcher, func(), error) {
	ua := a.cfg.Crawler.UserAgent
	if ua == "" {
		ua = collyfetcher.DefaultUserAgent
	}
	var (
		base    crawler.Fetcher
		release = func() {}
	)
	if headless {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         ua,
			NavigationTimeout: a.cfg.Headless.NavTimeout,
			WaitSelector:      a.cfg.Headless.WaitSelector,
			SelectorTimeout:   a.cfg.Headless.SelectorTimeout,
			Settle:            a.cfg.Headless.Settle,
		}, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		base = hf
		release = hf.Close
	} else {
		base = collyfetcher.New(collyfetcher.Config{
			UserAgent:     ua,
			RespectRobots: a.cfg.Crawler.RespectRobots,
			Timeout:       a.cfg.HTTP.Timeout,
			MaxBodySize:   a.cfg.HTTP.MaxBodyBytes,
			Transport:     a.transport,
		})
	}
	return retry.New(base, a.RetryPolicy(), nil, a.logger), release, nil
}

// Completion is the event published when a command finishes a tree.
type Completion struct {
	Command         string    `json:"command"`
	RunID           string    `json:"run_id"`
	SeedURL         string    `json:"seed_url,omitempty"`
	Output          string    `json:"output"`
	Nodes           int       `json:"nodes"`
	Processed       int       `json:"processed"`
	BudgetExhausted bool      `json:"budget_exhausted"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Finish writes the final tree file and feeds the optional sinks. The file is
// written first; sink failures are collected and returned together.
func (a *App) Finish(ctx context.Context, event Completion, nodes []*crawler.CrawlNode) error {
	if event.FinishedAt.IsZero() {
		event.FinishedAt = a.clock.Now()
	}
	if event.Output != "" {
		if err := checkpoint.WriteFinal(event.Output, nodes); err != nil {
			return err
		}
		a.logger.Info("final tree written", zap.String("path", event.Output))
	}

	var result *multierror.Error
	if a.exporter != nil {
		rows, err := a.exporter.SaveTree(ctx, event.RunID, event.FinishedAt, nodes)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("export tree: %w", err))
		} else {
			a.logger.Info("tree exported", zap.String("run_id", event.RunID), zap.Int("rows", rows))
		}
	}
	if a.publisher != nil {
		id, err := a.publisher.Publish(ctx, a.cfg.PubSub.Topic, event)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("publish completion: %w", err))
		} else {
			a.logger.Info("completion published", zap.String("message_id", id))
		}
	}
	return result.ErrorOrNil()
}

// Close releases dialed services in reverse order and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
