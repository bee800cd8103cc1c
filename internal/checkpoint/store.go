// Package checkpoint persists crawl trees as pretty-printed JSON so an
// interrupted crawl can resume where it stopped.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
)

// ErrCorrupt reports a checkpoint file that exists but cannot be decoded.
var ErrCorrupt = errors.New("checkpoint corrupt")

// FileStore reads and atomically rewrites one checkpoint file.
type FileStore struct {
	path string
}

// NewFileStore returns a store bound to path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	return &FileStore{path: path}, nil
}

// Path returns the checkpoint location.
func (s *FileStore) Path() string {
	return s.path
}

// Save implements crawler.CheckpointStore.
func (s *FileStore) Save(nodes []*crawler.CrawlNode) error {
	return WriteJSON(s.path, nodes)
}

// Load returns the saved tree, or an empty one when no checkpoint exists.
func (s *FileStore) Load() ([]*crawler.CrawlNode, error) {
	nodes, err := ReadJSON(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []*crawler.CrawlNode{}, nil
	}
	return nodes, err
}

// URLs returns every URL in the tree, nested children included.
func URLs(nodes []*crawler.CrawlNode) []string {
	return crawler.URLs(nodes)
}

// WriteFinal writes the completed tree to path in checkpoint format.
func WriteFinal(path string, nodes []*crawler.CrawlNode) error {
	return WriteJSON(path, nodes)
}

// WriteJSON replaces path with the indented JSON encoding of nodes. The file
// is written to a sibling temp file, synced, then renamed into place.
func WriteJSON(path string, nodes []*crawler.CrawlNode) error {
	if nodes == nil {
		nodes = []*crawler.CrawlNode{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(nodes); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// ReadJSON decodes a tree written by WriteJSON.
func ReadJSON(path string) ([]*crawler.CrawlNode, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []*crawler.CrawlNode{}, nil
	}
	var nodes []*crawler.CrawlNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	if nodes == nil {
		nodes = []*crawler.CrawlNode{}
	}
	return nodes, nil
}
