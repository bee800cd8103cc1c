package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RefreshResult summarizes a refresh pass.
type RefreshResult struct {
	Visited int
	Updated int
}

// Refresher re-fetches every node of an existing tree and replaces its
// description when a non-empty one can be extracted.
type Refresher struct {
	fetcher    PageFetcher
	extractor  Extractor
	checkpoint CheckpointStore
	delay      time.Duration
	pauser     Pauser
	logger     *zap.Logger
}

// NewRefresher builds a Refresher. A nil pauser uses TimerPauser.
func NewRefresher(fetcher PageFetcher, extractor Extractor, checkpoint CheckpointStore, delay time.Duration, pauser Pauser, logger *zap.Logger) *Refresher {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		fetcher:    fetcher,
		extractor:  extractor,
		checkpoint: checkpoint,
		delay:      delay,
		pauser:     pauser,
		logger:     logger,
	}
}

// Refresh walks nodes depth-first in document order, mutating descriptions
// in place. The checkpoint is saved after every node.
func (r *Refresher) Refresh(ctx context.Context, nodes []*CrawlNode) (RefreshResult, error) {
	var all []*CrawlNode
	Walk(nodes, func(node *CrawlNode) {
		all = append(all, node)
	})

	var res RefreshResult
	for _, node := range all {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r.pauser.Pause(ctx, r.delay)
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Visited++
		html := r.fetcher.FetchHTML(ctx, node.URL)
		if html != "" {
			if desc := r.extractor.Description(html); desc != "" {
				node.Description = desc
				res.Updated++
			}
		}
		r.logger.Info("refreshed node",
			zap.String("title", node.Title),
			zap.String("url", node.URL),
			zap.Int("progress", res.Visited),
			zap.Int("total", len(all)),
		)
		if err := r.checkpoint.Save(nodes); err != nil {
			return res, fmt.Errorf("save checkpoint: %w: %w", ErrCheckpoint, err)
		}
	}
	return res, nil
}
