package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/solutions-crawler/internal/checkpoint"
	"github.com/JakeFAU/solutions-crawler/internal/crawler"
	"github.com/JakeFAU/solutions-crawler/internal/tree"
)

func newTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <tree.json>",
		Short: "Filter, print and flatten a saved crawl tree",
		Long: `Drops nodes whose title contains a skip phrase, prints the remaining tree,
reports titles found at several paths, and optionally writes the filtered tree,
a JSON-lines file of leaves, or a nested title map.`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{offlineAnnotation: "true"},
		RunE:        runTree,
	}
	cmd.Flags().StringSlice("skip", nil, "title phrase to drop (repeatable; defaults to the built-in list)")
	cmd.Flags().String("filtered", "", "write the filtered tree here")
	cmd.Flags().String("flatten", "", "write leaves as JSON lines here")
	cmd.Flags().String("titles", "", "write the nested title map here")
	return cmd
}

func runTree(cmd *cobra.Command, args []string) error {
	nodes, err := checkpoint.ReadJSON(args[0])
	if err != nil {
		return err
	}
	skip, _ := cmd.Flags().GetStringSlice("skip")
	if !cmd.Flags().Changed("skip") {
		skip = tree.DefaultSkipPhrases
	}
	filtered := tree.Filter(nodes, skip)

	out := cmd.OutOrStdout()
	if err := tree.Render(out, filtered); err != nil {
		return err
	}
	stats := tree.Stats(filtered)
	fmt.Fprintf(out, "\n%d nodes, %d leaves, max depth %d\n", stats.Nodes, stats.Leaves, stats.MaxDepth)
	for _, dup := range tree.Duplicates(filtered) {
		fmt.Fprintf(out, "duplicate %q at %d paths\n", dup.Title, len(dup.Paths))
		for _, p := range dup.Paths {
			fmt.Fprintf(out, "  %s\n", p)
		}
	}

	if path, _ := cmd.Flags().GetString("filtered"); path != "" {
		if err := checkpoint.WriteFinal(path, filtered); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("flatten"); path != "" {
		if err := writeLeaves(path, filtered); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("titles"); path != "" {
		raw, err := json.MarshalIndent(tree.TitleHierarchy(filtered), "", "  ")
		if err != nil {
			return fmt.Errorf("encode titles: %w", err)
		}
		if err := os.WriteFile(path, append(raw, '\n'), 0o600); err != nil {
			return fmt.Errorf("write titles: %w", err)
		}
	}
	return nil
}

func writeLeaves(path string, nodes []*crawler.CrawlNode) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if _, err := tree.FlattenLeaves(f, nodes); err != nil {
		return err
	}
	return nil
}
