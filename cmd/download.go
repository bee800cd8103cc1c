package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
	"github.com/JakeFAU/solutions-crawler/internal/download"
	localstorage "github.com/JakeFAU/solutions-crawler/internal/storage/local"
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download PDF brochures linked from a page or listed in a file",
		Long: `Collects PDF links from --page, or reads them from --links (a JSON array of
{"url", "text"} objects), and downloads them concurrently. Files are named
<timestamp>_<sanitized link text>.pdf. A failed download is reported and
never stops the rest of the batch.`,
		Args: cobra.NoArgs,
		Annotations: map[string]string{
			"max-concurrency": "download.max_concurrency",
		},
		RunE: runDownload,
	}
	cmd.Flags().String("page", "", "page to collect PDF links from")
	cmd.Flags().String("links", "", "JSON file of links to download")
	cmd.Flags().String("dir", "", "write files to this directory instead of the configured blob store")
	cmd.Flags().Int("max-concurrency", 4, "maximum downloads in flight")
	cmd.MarkFlagsMutuallyExclusive("page", "links")
	cmd.MarkFlagsOneRequired("page", "links")
	return cmd
}

func runDownload(cmd *cobra.Command, _ []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}
	cfg := a.Config()
	logger := a.Logger()

	fetcher, release, err := a.NewFetcher(false)
	if err != nil {
		return err
	}
	defer release()

	var links []crawler.Link
	if page, _ := cmd.Flags().GetString("page"); page != "" {
		html := fetcher.FetchHTML(cmd.Context(), page)
		if html == "" {
			return fmt.Errorf("fetch %s: no content", page)
		}
		links = a.Extractor(a.Normalizer()).PDFLinks(html, page)
	} else {
		path, _ := cmd.Flags().GetString("links")
		links, err = readLinks(path)
		if err != nil {
			return err
		}
	}
	if len(links) == 0 {
		return download.ErrNoLinks
	}

	blobs := a.Blobs()
	opts := []download.Option{download.WithLimiter(a.Limiter())}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		store, err := localstorage.New(localstorage.Config{BaseDir: dir})
		if err != nil {
			return fmt.Errorf("open download dir: %w", err)
		}
		blobs = store
	} else {
		opts = append(opts, download.WithPrefix("downloads"))
	}

	logger.Info("downloading", zap.Int("links", len(links)), zap.Int("max_concurrency", cfg.Download.MaxConcurrency))
	d := download.New(fetcher, blobs, a.Clock(), logger, opts...)
	report := d.DownloadAll(cmd.Context(), links, cfg.Download.MaxConcurrency)

	out := cmd.OutOrStdout()
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", res.Link.URL, res.Err)
			continue
		}
		fmt.Fprintf(out, "OK   %s -> %s\n", res.Link.URL, res.URI)
	}
	fmt.Fprintf(out, "%d/%d downloaded\n", report.Succeeded, report.Total)

	if report.Succeeded == 0 {
		return fmt.Errorf("all downloads failed: %w", report.Err())
	}
	return nil
}

func readLinks(path string) ([]crawler.Link, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read links: %w", err)
	}
	var links []crawler.Link
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("decode links %s: %w", path, err)
	}
	valid := links[:0]
	for _, link := range links {
		if link.URL != "" {
			valid = append(valid, link)
		}
	}
	if len(valid) == 0 && len(links) > 0 {
		return nil, errors.New("links file has no urls")
	}
	return valid, nil
}
