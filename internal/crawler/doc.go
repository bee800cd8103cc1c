// Package crawler implements the recursive catalog crawl: the shared node
// types, the collaborator interfaces, the depth-first Controller that builds
// the tree with checkpointing, and the Refresher that re-extracts
// descriptions for an existing tree.
package crawler
