// Package mdb adapts Access MDB table extracts into row streams.
//
// Decoding the MDB format itself is delegated to the mdbtools CLI
// (mdb-tables, mdb-export), which must be installed on PATH. This package
// only shells out, parses the exported CSV, and normalizes column names;
// everything downstream sees schema.Row values and typed conversion errors.
package mdb

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/ntsbtools/avdata/internal/schema"
)

// Source yields rows for named tables out of one table extract.
type Source interface {
	// Tables lists the table names present in the extract.
	Tables() ([]string, error)

	// Rows streams every row of the named table to fn, in extract order.
	// A non-nil error from fn stops the stream and is returned unchanged.
	Rows(ctx context.Context, table string, fn func(schema.Row) error) error
}

// ConvertError reports a record that could not be converted from the
// extract, identifying the table and (when known) the failing record.
type ConvertError struct {
	Table  string
	Record int // 1-based record number within the table; 0 if unknown
	Err    error
}

func (e *ConvertError) Error() string {
	if e.Record > 0 {
		return fmt.Sprintf("failed to convert table %s record %d: %v", e.Table, e.Record, e.Err)
	}
	return fmt.Sprintf("failed to convert table %s: %v", e.Table, e.Err)
}

func (e *ConvertError) Unwrap() error {
	return e.Err
}

// File is a Source backed by an .mdb file on disk, read via mdbtools.
type File struct {
	path string
}

// Open prepares a Source for the MDB file at path. It verifies that the
// mdbtools binaries are available before any table work begins.
func Open(path string) (*File, error) {
	if _, err := exec.LookPath("mdb-export"); err != nil {
		return nil, fmt.Errorf("mdbtools not found on PATH (apt install mdbtools / brew install mdbtools): %w", err)
	}
	return &File{path: path}, nil
}

// Tables implements Source.
func (f *File) Tables() ([]string, error) {
	out, err := exec.Command("mdb-tables", "-1", f.path).Output()
	if err != nil {
		return nil, fmt.Errorf("mdb-tables failed for %s: %w", f.path, err)
	}

	var tables []string
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// Rows implements Source. mdb-export output is streamed through the CSV
// reader; the export process is killed if the consumer aborts early.
func (f *File) Rows(ctx context.Context, table string, fn func(schema.Row) error) error {
	cmd := exec.CommandContext(ctx, "mdb-export", f.path, table)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to pipe mdb-export: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start mdb-export: %w", err)
	}

	if err := readRows(table, stdout, fn); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}

	if err := cmd.Wait(); err != nil {
		return &ConvertError{Table: table, Err: fmt.Errorf("mdb-export: %w: %s", err, strings.TrimSpace(stderr.String()))}
	}
	return nil
}

// readRows parses exported CSV into rows keyed by normalized column name.
func readRows(table string, r io.Reader, fn func(schema.Row) error) error {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty table
		}
		return &ConvertError{Table: table, Err: fmt.Errorf("bad header: %w", err)}
	}
	columns := make([]string, len(header))
	for i, c := range header {
		columns[i] = NormalizeColumn(c)
	}

	record := 0
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		record++
		if err != nil {
			return &ConvertError{Table: table, Record: record, Err: err}
		}

		row := make(schema.Row, len(columns))
		for i, col := range columns {
			row[col] = fields[i]
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// NormalizeColumn maps an exported column header to the snake_case form the
// table definitions use.
func NormalizeColumn(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
