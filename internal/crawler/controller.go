package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/solutions-crawler/internal/metrics"
)

// ErrSeedUnreachable is returned when a fresh crawl cannot fetch its seed page.
var ErrSeedUnreachable = errors.New("seed page unreachable")

// ErrCheckpoint marks a failure to persist the crawl tree. Progress since the
// last successful save may be lost.
var ErrCheckpoint = errors.New("checkpoint not saved")

// ControllerConfig holds the settings for one crawl session.
type ControllerConfig struct {
	MaxDepth int
	// MaxPages caps the number of page fetches. Zero means unlimited.
	MaxPages int
	Delay    time.Duration
	// FetchDescriptions fetches the pages of nodes recorded at the deepest
	// level so their descriptions are populated even though they are not expanded.
	FetchDescriptions bool
	DebugHTML         bool
	RunID             string
}

// Result is the outcome of a crawl.
type Result struct {
	Nodes           []*CrawlNode
	Processed       int
	BudgetExhausted bool
}

// Controller walks a page graph depth-first and builds the crawl tree.
type Controller struct {
	cfg        ControllerConfig
	fetcher    PageFetcher
	extractor  Extractor
	policy     URLPolicy
	checkpoint CheckpointStore
	logger     *zap.Logger
	pauser     Pauser
	blobs      BlobStore
	hasher     Hasher
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithPauser overrides the politeness pauser.
func WithPauser(p Pauser) ControllerOption {
	return func(c *Controller) {
		if p != nil {
			c.pauser = p
		}
	}
}

// WithSnapshots enables debug HTML snapshots written to blobs.
func WithSnapshots(blobs BlobStore, hasher Hasher) ControllerOption {
	return func(c *Controller) {
		c.blobs = blobs
		c.hasher = hasher
	}
}

// NewController wires a Controller from its collaborators.
func NewController(
	cfg ControllerConfig,
	fetcher PageFetcher,
	extractor Extractor,
	policy URLPolicy,
	checkpoint CheckpointStore,
	logger *zap.Logger,
	opts ...ControllerOption,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		cfg:        cfg,
		fetcher:    fetcher,
		extractor:  extractor,
		policy:     policy,
		checkpoint: checkpoint,
		logger:     logger,
		pauser:     TimerPauser{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// task is one page fetch on the work stack. node is nil for the seed page.
type task struct {
	node  *CrawlNode
	url   string
	depth int
}

// Crawl walks the graph rooted at seedURL. When resumed is non-empty the
// seed is not fetched again and only pending nodes of the checkpoint are
// visited. On cancellation the partial tree is saved and returned with ctx.Err().
// A panic while crawling is returned as an error along with the tree built so far.
func (c *Controller) Crawl(ctx context.Context, seedURL string, resumed []*CrawlNode) (res Result, err error) {
	seed := c.policy.Normalize(seedURL)
	if seed == "" {
		return Result{}, fmt.Errorf("normalize seed %q: invalid url", seedURL)
	}

	state := newCrawlState()
	state.MarkIfNew(seed)
	result := Result{Nodes: resumed}
	fresh := len(resumed) == 0
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("crawl panicked", zap.Any("panic", r), zap.Stack("stack"))
			res, err = c.finish(&result, state), fmt.Errorf("crawl panicked: %v", r)
		}
	}()

	var stack []task
	if fresh {
		stack = append(stack, task{url: seed, depth: 0})
	} else {
		var pending []task
		Walk(resumed, func(node *CrawlNode) {
			state.MarkIfNew(node.URL)
			if node.Pending {
				pending = append(pending, task{node: node, url: node.URL, depth: node.Depth + 1})
			}
		})
		for i := len(pending) - 1; i >= 0; i-- {
			stack = append(stack, pending[i])
		}
		c.logger.Info("resuming crawl",
			zap.Int("checkpoint_nodes", len(state.visited)-1),
			zap.Int("pending", len(pending)),
		)
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return c.interrupted(&result, state, err)
		}
		if c.cfg.MaxPages > 0 && state.processed >= c.cfg.MaxPages {
			result.BudgetExhausted = true
			metrics.ObserveBudgetExhausted()
			c.logger.Info("page budget exhausted", zap.Int("max_pages", c.cfg.MaxPages))
			break
		}

		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		c.pauser.Pause(ctx, c.cfg.Delay)
		if err := ctx.Err(); err != nil {
			return c.interrupted(&result, state, err)
		}

		html := c.fetcher.FetchHTML(ctx, t.url)
		state.processed++
		if html == "" {
			metrics.ObservePage(t.url, "empty", 0)
			if t.node == nil && fresh {
				return c.finish(&result, state), ErrSeedUnreachable
			}
			if err := ctx.Err(); err != nil {
				return c.interrupted(&result, state, err)
			}
			c.logger.Warn("page fetch returned no content", zap.String("url", t.url), zap.Int("depth", t.depth))
			if t.node != nil {
				t.node.Pending = false
			}
			if err := c.save(result.Nodes); err != nil {
				return c.finish(&result, state), err
			}
			continue
		}
		metrics.ObservePage(t.url, "ok", len(html))
		c.snapshot(ctx, t, state.processed, html)

		if t.node != nil {
			t.node.Description = c.extractor.Description(html)
		}
		var children []*CrawlNode
		if t.depth < c.cfg.MaxDepth {
			children = c.record(&result, state, t, html)
		}
		// One save per page: a parent is marked done together with all of its sections.
		if t.node != nil {
			t.node.Pending = false
		}
		if err := c.save(result.Nodes); err != nil {
			return c.finish(&result, state), err
		}
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			stack = append(stack, task{node: child, url: child.URL, depth: t.depth + 1})
		}
	}

	c.logger.Info("crawl finished",
		zap.Int("processed", state.processed),
		zap.Bool("budget_exhausted", result.BudgetExhausted),
	)
	return c.finish(&result, state), nil
}

// record turns the sections of a fetched page into nodes and returns the
// ones that must be visited next, in document order.
func (c *Controller) record(result *Result, state *crawlState, t task, html string) []*CrawlNode {
	var next []*CrawlNode
	for _, section := range c.extractor.Sections(html, t.url) {
		link := c.policy.Normalize(section.Link)
		if link == "" || !state.MarkIfNew(link) {
			continue
		}
		node := &CrawlNode{
			Title:     section.Title,
			URL:       link,
			ImageURL:  section.ImageURL,
			Depth:     t.depth,
			ParentURL: t.url,
		}
		expand := t.depth+1 < c.cfg.MaxDepth || c.cfg.FetchDescriptions
		if expand && c.policy.IsValidResourceURL(link) {
			node.Pending = true
			next = append(next, node)
		}
		if t.node == nil {
			result.Nodes = append(result.Nodes, node)
		} else {
			t.node.Children = append(t.node.Children, node)
		}
		metrics.ObserveNode()
		c.logger.Debug("recorded node",
			zap.String("title", node.Title),
			zap.String("url", node.URL),
			zap.Int("depth", node.Depth),
		)
	}
	return next
}

func (c *Controller) save(nodes []*CrawlNode) error {
	start := time.Now()
	if err := c.checkpoint.Save(nodes); err != nil {
		return fmt.Errorf("save checkpoint: %w: %w", ErrCheckpoint, err)
	}
	metrics.ObserveCheckpoint(time.Since(start))
	return nil
}

func (c *Controller) interrupted(result *Result, state *crawlState, cause error) (Result, error) {
	c.logger.Warn("crawl interrupted, saving checkpoint", zap.Int("processed", state.processed))
	if err := c.save(result.Nodes); err != nil {
		return c.finish(result, state), errors.Join(cause, err)
	}
	return c.finish(result, state), cause
}

func (c *Controller) finish(result *Result, state *crawlState) Result {
	result.Processed = state.processed
	if result.Nodes == nil {
		result.Nodes = []*CrawlNode{}
	}
	return *result
}

func (c *Controller) snapshot(ctx context.Context, t task, n int, html string) {
	if !c.cfg.DebugHTML || c.blobs == nil || c.hasher == nil {
		return
	}
	digest, err := c.hasher.Hash([]byte(t.url))
	if err != nil {
		c.logger.Warn("hash snapshot url", zap.String("url", t.url), zap.Error(err))
		return
	}
	if len(digest) > 16 {
		digest = digest[:16]
	}
	runID := c.cfg.RunID
	if runID == "" {
		runID = "local"
	}
	path := "debug/" + runID + "/" + strconv.Itoa(t.depth) + "_" + strconv.Itoa(n) + "_" + digest + ".html"
	if _, err := c.blobs.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewBufferString(html)); err != nil {
		c.logger.Warn("write debug snapshot", zap.String("path", path), zap.Error(err))
	}
}
