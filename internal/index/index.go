// Package index implements the relational index: a versioned SQLite
// schema holding bugs, messages, tags, recipients, version-status
// records and typed inter-bug links. It owns all mutation and all
// queries, and brings older index files up to the current schema
// version on open.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/gsliepen/lightbts/internal/msgstore"
)

// applicationID tags index files created by LightBTS ("LBTS"). Opening
// a file with a different tag is a fatal configuration error.
const applicationID = 0x4C425453

// currentVersion is the schema version this build reads and writes.
const currentVersion = 4

// ErrSchema indicates an index file this build must refuse to touch:
// wrong application tag, or a schema version outside the supported
// range.
var ErrSchema = errors.New("incompatible index schema")

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when inserting a message whose id is
// already indexed. The earlier message wins.
var ErrDuplicate = errors.New("message id already indexed")

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx,
// so every operation works both standalone and inside an import
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Env carries what migrations need beyond the database itself: the
// instance root and the content-addressed store that v4 moves legacy
// message bodies into.
type Env struct {
	BaseDir string
	Store   *msgstore.Store
}

// Index is an open relational index.
type Index struct {
	ops
	db   *sql.DB
	path string
}

// Open opens or creates the index at path and applies any pending
// schema migrations, each as its own committed step.
func Open(path string, env Env) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's connection pool.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := initSchema(db, env); err != nil {
		_ = db.Close()
		return nil, err
	}

	ix := &Index{db: db, path: path}
	ix.ops.q = db
	return ix, nil
}

func initSchema(db *sql.DB, env Env) error {
	var appID, version int64
	if err := db.QueryRow("PRAGMA application_id").Scan(&appID); err != nil {
		return fmt.Errorf("read application_id: %w", err)
	}
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if appID == 0 {
		var tables int64
		if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&tables); err != nil {
			return fmt.Errorf("inspect index: %w", err)
		}
		if tables == 0 {
			// Fresh file: create everything at the current version.
			if _, err := db.Exec(schema); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			version = currentVersion
			if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion)); err != nil {
				return fmt.Errorf("stamp user_version: %w", err)
			}
		}
		// A non-empty untagged file is a legacy v0 index: stamp the
		// tag and let the migrations below bring it up to date.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA application_id = %d", applicationID)); err != nil {
			return fmt.Errorf("stamp application_id: %w", err)
		}
	} else if appID != applicationID {
		return fmt.Errorf("%w: application tag %#x, want %#x", ErrSchema, appID, applicationID)
	}

	if version < 0 || version > currentVersion {
		return fmt.Errorf("%w: version %d, this build supports 0 through %d", ErrSchema, version, currentVersion)
	}

	return runMigrations(db, int(version), env)
}

// Close releases the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Path returns the path of the index file.
func (ix *Index) Path() string {
	return ix.path
}

// Tx is a write transaction over the index, carrying the same
// operation set as the index itself. The importer runs steps that must
// be atomic inside one Tx and commits only at the end.
type Tx struct {
	ops
	conn *sql.Conn
}

// Begin starts an immediate write transaction, taking the write lock
// up front so concurrent writers serialize instead of failing later.
func (ix *Index) Begin(ctx context.Context) (*Tx, error) {
	conn, err := ix.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	t := &Tx{conn: conn}
	t.ops.q = connExecer{conn}
	return t, nil
}

// Commit commits the transaction and releases its connection.
func (t *Tx) Commit(ctx context.Context) error {
	defer t.conn.Close()
	if _, err := t.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback abandons the transaction. Safe to defer after Commit: the
// rollback fails silently once the transaction is gone.
func (t *Tx) Rollback() {
	_, _ = t.conn.ExecContext(context.Background(), "ROLLBACK")
	_ = t.conn.Close()
}

// connExecer adapts *sql.Conn to DBTX.
type connExecer struct {
	conn *sql.Conn
}

func (c connExecer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c connExecer) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c connExecer) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}
