package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/solutions-crawler/internal/app"
	"github.com/JakeFAU/solutions-crawler/internal/checkpoint"
	"github.com/JakeFAU/solutions-crawler/internal/crawler"
)

func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh <tree.json>",
		Short: "Re-fetch every node of a saved tree and update its description",
		Long: `Visits each node of an existing crawl tree in document order and replaces
its description when the page yields a non-empty one. The tree is saved after
every node, so an interrupted refresh keeps the descriptions already updated.`,
		Args: cobra.ExactArgs(1),
		Annotations: map[string]string{
			"headless": "headless.enabled",
		},
		RunE: runRefresh,
	}
	cmd.Flags().String("output", "", "updated tree file (defaults to rewriting the input)")
	cmd.Flags().Float64("delay", 1, "seconds to wait before each request")
	cmd.Flags().Bool("headless", false, "render pages in headless Chrome")
	return cmd
}

func runRefresh(cmd *cobra.Command, args []string) error {
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
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = args[0]
	}

	nodes, err := checkpoint.ReadJSON(args[0])
	if err != nil {
		return err
	}
	store, err := checkpoint.NewFileStore(output)
	if err != nil {
		return err
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
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refresher := crawler.NewRefresher(fetcher, a.Extractor(a.Normalizer()), store, delay, nil, logger)
	result, err := refresher.Refresh(ctx, nodes)
	switch {
	case errors.Is(err, context.Canceled) && !errors.Is(err, crawler.ErrCheckpoint):
		logger.Warn("refresh interrupted", zap.String("output", output), zap.Int("visited", result.Visited))
		return nil
	case err != nil:
		return fmt.Errorf("refresh: %w", err)
	}
	logger.Info("refresh finished", zap.Int("visited", result.Visited), zap.Int("updated", result.Updated))

	return a.Finish(cmd.Context(), app.Completion{
		Command:   "refresh",
		RunID:     runID,
		Output:    output,
		Nodes:     result.Visited,
		Processed: result.Visited,
	}, nodes)
}
