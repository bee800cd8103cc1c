// Command solcrawl crawls product solution catalogs into resumable JSON trees.
//
// Subcommands:
//   - crawl: depth-first crawl from a seed URL with a page budget, a politeness
//     delay between requests, and a checkpoint after every recorded node.
//     Interrupting it (Ctrl-C or SIGTERM) leaves a checkpoint that --resume
//     continues without refetching finished pages.
//   - refresh: re-fetch the nodes of a saved tree and update their descriptions.
//   - download: fetch PDF brochures with bounded concurrency and per-host rate limits.
//   - scrape: print the readable text of pages rendered in headless Chrome.
//   - tree: filter, print and flatten a saved tree.
//
// Configuration comes from an optional file (--config), CRAWLER_* environment
// variables (CRAWLER_CRAWLER_MAX_PAGES, CRAWLER_STORAGE_BACKEND, ...) and flags.
// Optional sinks are enabled by configuration: a GCS bucket for snapshots and
// downloads, a Postgres table receiving the finished tree, and a Pub/Sub topic
// receiving a completion event.
package main

import "github.com/JakeFAU/solutions-crawler/cmd"

func main() {
	cmd.Execute()
}
