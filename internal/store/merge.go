package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ntsbtools/avdata/internal/schema"
)

// maxBatchRows bounds how many rows go into one multi-row upsert statement.
// The widest table has a few dozen columns; 200 rows keeps the bind variable
// count well under SQLite's default limit while still merging a full seed in
// large set-based statements instead of one statement per row.
const maxBatchRows = 200

// Counts reports the effect of merging rows into one or more tables.
type Counts struct {
	Inserted    int64
	Overwritten int64
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Inserted += other.Inserted
	c.Overwritten += other.Overwritten
}

// Total returns the number of rows the merge touched.
func (c Counts) Total() int64 {
	return c.Inserted + c.Overwritten
}

// SchemaMismatchError reports a row that does not fit its table definition:
// an undeclared column, or a missing primary key column. The merge for that
// table is aborted; columns are never silently dropped or nulled.
type SchemaMismatchError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in table %s: column %q %s", e.Table, e.Column, e.Reason)
}

// RowIter streams rows to a consumer. A non-nil error from the consumer
// stops the stream and is returned unchanged.
type RowIter func(fn func(schema.Row) error) error

// Merge applies rows to the table with insert-or-replace semantics keyed by
// the table's primary key: a row whose key is absent is inserted, otherwise
// every non-key column is overwritten (last write wins). Rows are applied in
// the order the iterator yields them, batched into multi-row upserts.
//
// Runs entirely inside the caller's transaction; a failed merge leaves
// nothing behind once the transaction rolls back.
func Merge(ctx context.Context, tx *sql.Tx, table schema.Table, rows RowIter) (Counts, error) {
	before, err := countRows(ctx, tx, table.Name)
	if err != nil {
		return Counts{}, err
	}

	m := merger{ctx: ctx, tx: tx, table: table}
	err = rows(func(row schema.Row) error {
		return m.add(row)
	})
	if err != nil {
		return Counts{}, err
	}
	if err := m.flush(); err != nil {
		return Counts{}, err
	}

	after, err := countRows(ctx, tx, table.Name)
	if err != nil {
		return Counts{}, err
	}

	inserted := after - before
	return Counts{Inserted: inserted, Overwritten: m.yielded - inserted}, nil
}

type merger struct {
	ctx   context.Context
	tx    *sql.Tx
	table schema.Table

	args    []any
	batched int
	yielded int64
}

// add validates one row and queues it, flushing full batches.
func (m *merger) add(row schema.Row) error {
	for col := range row {
		if !m.table.HasColumn(col) {
			return &SchemaMismatchError{Table: m.table.Name, Column: col, Reason: "not in table definition"}
		}
	}
	for _, k := range m.table.Key {
		if _, ok := row[k]; !ok {
			return &SchemaMismatchError{Table: m.table.Name, Column: k, Reason: "required key column missing"}
		}
	}

	for _, col := range m.table.Columns {
		if v, ok := row[col]; ok {
			m.args = append(m.args, v)
		} else {
			m.args = append(m.args, nil)
		}
	}
	m.batched++
	m.yielded++

	if m.batched >= maxBatchRows {
		return m.flush()
	}
	return nil
}

// flush executes the queued rows as one multi-row upsert.
func (m *merger) flush() error {
	if m.batched == 0 {
		return nil
	}

	group := "(" + strings.TrimSuffix(strings.Repeat("?,", len(m.table.Columns)), ",") + ")"
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ",
		quoteIdent(m.table.Name), quoteIdents(m.table.Columns))
	for i := 0; i < m.batched; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(group)
	}
	b.WriteString(upsertClause(m.table))

	if _, err := m.tx.ExecContext(m.ctx, b.String(), m.args...); err != nil {
		return fmt.Errorf("failed to merge %d rows into %s: %w", m.batched, m.table.Name, err)
	}

	m.args = m.args[:0]
	m.batched = 0
	return nil
}

// upsertClause renders the ON CONFLICT clause: overwrite every non-key
// column from the incoming row. A table whose columns are all key columns
// has nothing to overwrite, so conflicts become no-ops.
func upsertClause(table schema.Table) string {
	var sets []string
	for _, col := range table.Columns {
		if table.IsKey(col) {
			continue
		}
		q := quoteIdent(col)
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", q, q))
	}
	if len(sets) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quoteIdents(table.Key))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdents(table.Key), strings.Join(sets, ", "))
}

func countRows(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(name))
	if err := tx.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", name, err)
	}
	return n, nil
}
