package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Client wraps a SQLite database used as the local bar store.
type Client struct {
	db *sql.DB
}

type ClientConfig struct {
	Path    string
	Pragmas []string
}

type ClientOption func(*ClientConfig)

// WithPath sets the database file. ":memory:" opens a private in-memory db.
func WithPath(path string) ClientOption {
	return func(c *ClientConfig) { c.Path = path }
}

func WithPragmas(pragmas ...string) ClientOption {
	return func(c *ClientConfig) { c.Pragmas = append(c.Pragmas, pragmas...) }
}

func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		Path:    ":memory:",
		Pragmas: []string{"PRAGMA journal_mode = WAL;", "PRAGMA synchronous = NORMAL;", "PRAGMA busy_timeout = 5000;"},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if cfg.Path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	for _, p := range cfg.Pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", p, err)
		}
	}
	return &Client{db: db}, nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
