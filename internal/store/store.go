// Package store provides the local SQLite mirror of the NTSB dataset: the
// domain tables, the sync ledger that makes archive application idempotent,
// and the batched merge engine.
//
// The store runs on embedded SQLite (ncruces/go-sqlite3) in WAL mode so
// concurrent query tools see either the pre-archive or post-archive state
// while an update is in flight, never an intermediate one. One orchestrator
// run owns the store for its duration; there is no second writer.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ntsbtools/avdata/internal/schema"
)

// DB wraps the SQLite connection to one mirror database.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the mirror database at path.
//
// The database is opened in WAL mode with a busy timeout so readers are
// never blocked by an in-flight archive transaction. The caller MUST call
// Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the on-disk location of the database file.
func (db *DB) Path() string {
	return db.path
}

// BeginTx starts a transaction. The caller commits or rolls back; the
// orchestrator uses exactly one transaction per applied archive.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

// InitSchema creates the domain tables and the sync ledger if they do not
// already exist. All domain columns are TEXT; key columns are NOT NULL and
// form the composite primary key the merge engine upserts against.
func (db *DB) InitSchema(tables []schema.Table) error {
	for _, table := range tables {
		if _, err := db.conn.Exec(createTableSQL(table)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.Name, err)
		}
	}

	if _, err := db.conn.Exec(createSyncLogSQL); err != nil {
		return fmt.Errorf("failed to create sync ledger: %w", err)
	}
	return nil
}

func createTableSQL(table schema.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(table.Name))
	for _, col := range table.Columns {
		fmt.Fprintf(&b, "    %s TEXT", quoteIdent(col))
		if table.IsKey(col) {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}
	fmt.Fprintf(&b, "    PRIMARY KEY (%s)\n)", quoteIdents(table.Key))
	return b.String()
}

// quoteIdent double-quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// TableCount is one row of the stats report.
type TableCount struct {
	Table string
	Rows  int64
}

// Stats returns the row count of every mirrored table, in definition order.
func (db *DB) Stats(ctx context.Context, tables []schema.Table) ([]TableCount, error) {
	counts := make([]TableCount, 0, len(tables))
	for _, table := range tables {
		var n int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table.Name))
		if err := db.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table.Name, err)
		}
		counts = append(counts, TableCount{Table: table.Name, Rows: n})
	}
	return counts, nil
}
