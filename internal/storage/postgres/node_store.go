// Package postgres exports crawl trees to Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/solutions-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NodeStoreConfig controls the Postgres connection pool used for node rows.
type NodeStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// NodeStore writes crawl nodes keyed by (run_id, url).
type NodeStore struct {
	pool  pool
	table string
}

// NewNodeStore connects to Postgres using cfg.
func NewNodeStore(ctx context.Context, cfg NodeStoreConfig) (*NodeStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &NodeStore{pool: p, table: table}, nil
}

// NewNodeStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewNodeStoreWithPool(p pool, table string) (*NodeStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &NodeStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "crawl_nodes"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *NodeStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the node table when it does not exist.
func (s *NodeStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT NOT NULL,
	url         TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	image_url   TEXT NOT NULL DEFAULT '',
	depth       INTEGER NOT NULL,
	parent_url  TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL,
	is_leaf     BOOLEAN NOT NULL,
	exported_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, url)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// SaveTree upserts every node of the tree in document order inside one
// transaction and returns the number of rows written.
func (s *NodeStore) SaveTree(ctx context.Context, runID string, exportedAt time.Time, nodes []*crawler.CrawlNode) (int, error) {
	if runID == "" {
		return 0, fmt.Errorf("run id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin export: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id, url, title, description, image_url, depth, parent_url, position, is_leaf, exported_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (run_id, url) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	image_url = EXCLUDED.image_url,
	depth = EXCLUDED.depth,
	parent_url = EXCLUDED.parent_url,
	position = EXCLUDED.position,
	is_leaf = EXCLUDED.is_leaf,
	exported_at = EXCLUDED.exported_at`, s.table)

	var (
		position int
		execErr  error
	)
	crawler.Walk(nodes, func(node *crawler.CrawlNode) {
		if execErr != nil {
			return
		}
		_, execErr = tx.Exec(ctx, query,
			runID,
			node.URL,
			node.Title,
			node.Description,
			node.ImageURL,
			node.Depth,
			node.ParentURL,
			position,
			node.IsLeaf(),
			exportedAt,
		)
		position++
	})
	if execErr != nil {
		return 0, fmt.Errorf("upsert node: %w", execErr)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit export: %w", err)
	}
	return position, nil
}
