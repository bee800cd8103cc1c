package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/solutions-crawler/internal/extract"
)

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape <url>...",
		Short: "Print the readable text of one or more pages",
		Long: `Renders each URL and prints its body as indented text with markdown links.
Pages are fetched concurrently; output keeps the order of the arguments.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScrape,
	}
	cmd.Flags().Int("max-concurrent", 5, "maximum pages fetched at once")
	cmd.Flags().Bool("headless", true, "render pages in headless Chrome")
	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}
	maxConcurrent, _ := cmd.Flags().GetInt("max-concurrent")
	if maxConcurrent <= 0 {
		return fmt.Errorf("--max-concurrent must be > 0")
	}
	headless, _ := cmd.Flags().GetBool("headless")

	fetcher, release, err := a.NewFetcher(headless)
	if err != nil {
		return err
	}
	defer release()

	texts := make([]string, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(maxConcurrent)
	for i, url := range args {
		g.Go(func() error {
			html := fetcher.FetchHTML(ctx, url)
			if html == "" {
				a.Logger().Warn("scrape returned no content", zap.String("url", url))
				return nil
			}
			texts[i] = extract.PageText(html)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, url := range args {
		fmt.Fprintf(out, "=== %s ===\n%s\n\n", url, texts[i])
	}
	return nil
}
