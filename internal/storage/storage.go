// Package storage manages the relational database connection and exposes
// per-model repositories to domain handlers.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/chassisworks/chassis/pkg/logger"
)

// EntityDefinition describes one persisted model: the logical model name the
// schema registry binds repositories to, the backing table, and the DDL that
// creates it.
type EntityDefinition struct {
	Model string
	Table string
	DDL   string
}

// Config holds connection settings.
type Config struct {
	DSN            string `yaml:"dsn"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	ApplyEntityDDL bool   `yaml:"apply_entity_ddl"`
}

// Connector owns the database handle. Entity definitions are collected by the
// caller before Connect; startup is strictly two-phase so there is no ordering
// dependency between entity loading and connection establishment.
type Connector struct {
	cfg Config
	log *logger.Logger

	mu       sync.RWMutex
	db       *sqlx.DB
	entities map[string]EntityDefinition
}

// NewConnector creates an unconnected connector.
func NewConnector(cfg Config, log *logger.Logger) *Connector {
	if log == nil {
		log = logger.NewDefault("storage")
	}
	return &Connector{cfg: cfg, log: log}
}

// Connect opens the database and registers the collected entity definitions.
// It must be called exactly once with the full entity set.
func (c *Connector) Connect(ctx context.Context, entities map[string]EntityDefinition) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.cfg.DSN)
	if err != nil {
		return fmt.Errorf("storage: connect: %w", err)
	}
	if c.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.cfg.MaxOpenConns)
	}
	if c.cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.cfg.MaxIdleConns)
	}
	return c.ConnectWithDB(ctx, db, entities)
}

// ConnectWithDB registers entities against an already-open handle. Split out
// so tests can drive the connector with sqlmock.
func (c *Connector) ConnectWithDB(ctx context.Context, db *sqlx.DB, entities map[string]EntityDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return errors.New("storage: connector already connected")
	}

	c.entities = make(map[string]EntityDefinition, len(entities))
	for model, def := range entities {
		c.entities[model] = def
	}

	if c.cfg.ApplyEntityDDL {
		// Deterministic order so failures are reproducible.
		models := make([]string, 0, len(c.entities))
		for model := range c.entities {
			models = append(models, model)
		}
		sort.Strings(models)

		for _, model := range models {
			def := c.entities[model]
			if def.DDL == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, def.DDL); err != nil {
				return fmt.Errorf("storage: apply entity %q: %w", model, err)
			}
			c.log.WithField("model", model).WithField("table", def.Table).Debug("entity schema applied")
		}
	}

	c.db = db
	c.log.WithField("entities", len(c.entities)).Info("storage connected")
	return nil
}

// Repository returns a repository bound to the named model.
func (c *Connector) Repository(model string) (*Repo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.db == nil {
		return nil, errors.New("storage: connector not connected")
	}
	def, ok := c.entities[model]
	if !ok {
		return nil, fmt.Errorf("storage: model %q not registered", model)
	}
	return &Repo{db: c.db, def: def}, nil
}

// DB exposes the raw handle for callers that need transactions.
func (c *Connector) DB() *sqlx.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Close shuts the connection down.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.entities = nil
	return err
}

// Repo is a live repository handle bound to one model's table. Domain
// repository handlers receive a Repo for their own domain's model.
type Repo struct {
	db  *sqlx.DB
	def EntityDefinition
}

// Model returns the bound model name.
func (r *Repo) Model() string { return r.def.Model }

// Table returns the bound table name.
func (r *Repo) Table() string { return r.def.Table }

// Get runs a query expected to return one row into dest.
func (r *Repo) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return r.db.GetContext(ctx, dest, query, args...)
}

// Select runs a query returning any number of rows into dest.
func (r *Repo) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return r.db.SelectContext(ctx, dest, query, args...)
}

// Exec runs a statement, returning its result.
func (r *Repo) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.db.ExecContext(ctx, query, args...)
}

// NamedExec runs a named statement bound from arg.
func (r *Repo) NamedExec(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	return r.db.NamedExecContext(ctx, query, arg)
}
