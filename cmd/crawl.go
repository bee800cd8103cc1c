package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/solutions-crawler/internal/app"
	"github.com/JakeFAU/solutions-crawler/internal/checkpoint"
	"github.com/JakeFAU/solutions-crawler/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <seed_url>",
		Short: "Crawl a solutions catalog starting at seed_url",
		Long: `Walks the catalog depth-first from seed_url, recording every titled section
as a node. The tree is checkpointed to the partial file after each page; use
--resume to continue an interrupted crawl from that file.`,
		Args: cobra.ExactArgs(1),
		Annotations: map[string]string{
			"max-pages":          "crawler.max_pages",
			"max-depth":          "crawler.max_depth",
			"domain":             "crawler.domain",
			"output":             "output.final",
			"partial":            "output.partial",
			"debug-html":         "crawler.debug_html",
			"fetch-descriptions": "crawler.fetch_descriptions",
			"headless":           "headless.enabled",
		},
		RunE: runCrawl,
	}

	flags := cmd.Flags()
	flags.Int("max-pages", 500, "maximum number of page fetches")
	flags.Float64("delay", 1, "seconds to wait before each request")
	flags.Int("max-depth", 3, "maximum recursion depth")
	flags.String("domain", "analog.com", "site domain; only URLs under it are crawled")
	flags.String("output", "crawl_results.json", "final tree file")
	flags.String("partial", "partial_results.json", "checkpoint file")
	flags.Bool("resume", false, "continue from the checkpoint file")
	flags.Bool("debug-html", false, "store every fetched page as a debug snapshot")
	flags.Bool("fetch-descriptions", true, "fetch deepest-level pages for their descriptions")
	flags.Bool("headless", false, "render pages in headless Chrome")
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}
	cfg := a.Config()
	logger := a.Logger()
	delay, err := delayFlag(cmd, cfg.Crawler.Delay)
	if err != nil {
		return err
	}
	resume, _ := cmd.Flags().GetBool("resume")

	store, err := checkpoint.NewFileStore(cfg.Output.Partial)
	if err != nil {
		return err
	}
	var resumed []*crawler.CrawlNode
	if resume {
		resumed, err = store.Load()
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		logger.Info("resuming crawl", zap.String("path", store.Path()), zap.Int("urls", len(checkpoint.URLs(resumed))))
	}

	fetcher, release, err := a.NewFetcher(cfg.Headless.Enabled)
	if err != nil {
		return err
	}
	defer release()

	runID, err := a.NewRunID()
	if err != nil {
		return err
	}
	norm := a.Normalizer()
	ctrl := crawler.NewController(crawler.ControllerConfig{
		MaxDepth:          cfg.Crawler.MaxDepth,
		MaxPages:          cfg.Crawler.MaxPages,
		Delay:             delay,
		FetchDescriptions: cfg.Crawler.FetchDescriptions,
		DebugHTML:         cfg.Crawler.DebugHTML,
		RunID:             runID,
	}, fetcher, a.Extractor(norm), norm, store, logger,
		crawler.WithSnapshots(a.Blobs(), a.Hasher()),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("crawl started",
		zap.String("run_id", runID),
		zap.String("seed", args[0]),
		zap.Int("max_depth", cfg.Crawler.MaxDepth),
		zap.Int("max_pages", cfg.Crawler.MaxPages),
	)
	result, err := ctrl.Crawl(ctx, args[0], resumed)
	switch {
	case errors.Is(err, context.Canceled) && !errors.Is(err, crawler.ErrCheckpoint):
		logger.Warn("crawl interrupted; rerun with --resume to continue",
			zap.String("partial", store.Path()),
			zap.Int("processed", result.Processed),
		)
		return nil
	case err != nil:
		finalSave(logger, store, result.Nodes, resumed)
		return fmt.Errorf("crawl: %w", err)
	}
	if result.BudgetExhausted {
		logger.Warn("page budget exhausted", zap.Int("max_pages", cfg.Crawler.MaxPages))
	}

	nodes := 0
	crawler.Walk(result.Nodes, func(*crawler.CrawlNode) { nodes++ })
	logger.Info("crawl finished", zap.Int("nodes", nodes), zap.Int("processed", result.Processed))

	return a.Finish(cmd.Context(), app.Completion{
		Command:         "crawl",
		RunID:           runID,
		SeedURL:         args[0],
		Output:          cfg.Output.Final,
		Nodes:           nodes,
		Processed:       result.Processed,
		BudgetExhausted: result.BudgetExhausted,
	}, result.Nodes)
}

// finalSave makes a last attempt to persist the tree after a fatal crawl
// error. Failures are logged; the crawl error is what the caller reports.
func finalSave(logger *zap.Logger, store *checkpoint.FileStore, nodes, resumed []*crawler.CrawlNode) {
	if len(nodes) == 0 {
		nodes = resumed
	}
	if nodes == nil {
		nodes = []*crawler.CrawlNode{}
	}
	if err := store.Save(nodes); err != nil {
		logger.Error("final checkpoint save failed", zap.String("partial", store.Path()), zap.Error(err))
		return
	}
	logger.Info("checkpoint saved after fatal error", zap.String("partial", store.Path()), zap.Int("urls", len(checkpoint.URLs(nodes))))
}

// delayFlag reads --delay in seconds when set, else returns fallback.
func delayFlag(cmd *cobra.Command, fallback time.Duration) (time.Duration, error) {
	if !cmd.Flags().Changed("delay") {
		return fallback, nil
	}
	seconds, err := cmd.Flags().GetFloat64("delay")
	if err != nil {
		return 0, err
	}
	if seconds < 0 {
		return 0, fmt.Errorf("--delay must be >= 0")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
