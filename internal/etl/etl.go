// Package etl orchestrates the two sync workflows against the local store:
// a one-time full seed from the snapshot archive and an idempotent
// incremental update that applies new delta archives in version order.
//
// The orchestrator owns the transactional boundaries: every archive is
// applied as one transaction covering all of its table merges plus the sync
// ledger record, so a failure rolls the whole archive back and the store is
// left at the last recorded archive. Collaborators (catalog, fetcher, row
// source) are injected interfaces; all of their calls are blocking and run
// on the single execution path.
package etl

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ntsbtools/avdata/internal/archive"
	"github.com/ntsbtools/avdata/internal/mdb"
	"github.com/ntsbtools/avdata/internal/schema"
	"github.com/ntsbtools/avdata/internal/store"
)

// Catalog lists the update archives published on the remote server.
type Catalog interface {
	ListDeltas(ctx context.Context) ([]archive.ID, error)
}

// Fetcher downloads one named archive and returns its local path.
type Fetcher interface {
	Download(ctx context.Context, name string) (string, error)
}

// Opener turns a downloaded archive into a row source.
type Opener interface {
	Open(ctx context.Context, zipPath string) (mdb.Source, error)
}

// Runner executes the seed and update workflows against one store.
type Runner struct {
	dbPath  string
	schema  schema.Schema
	catalog Catalog
	fetcher Fetcher
	opener  Opener
	logger  *log.Logger
}

// New creates a Runner. If logger is nil, a default stderr logger is used.
func New(dbPath string, s schema.Schema, catalog Catalog, fetcher Fetcher, opener Opener, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "[etl] ", log.LstdFlags)
	}
	return &Runner{
		dbPath:  dbPath,
		schema:  s,
		catalog: catalog,
		fetcher: fetcher,
		opener:  opener,
		logger:  logger,
	}
}

// applyArchive merges every defined table present in the source and records
// the sync ledger row, all inside one transaction. Either the whole
// archive's effect lands or none of it does.
func (r *Runner) applyArchive(ctx context.Context, db *store.DB, id archive.ID, fp archive.Fingerprint, src mdb.Source) (store.Counts, error) {
	names, err := src.Tables()
	if err != nil {
		return store.Counts{}, fmt.Errorf("failed to list tables in %s: %w", id, err)
	}
	// The MDB exports vary in table name casing.
	available := make(map[string]string, len(names))
	for _, n := range names {
		available[strings.ToLower(n)] = n
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return store.Counts{}, fmt.Errorf("failed to begin transaction for %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	var totals store.Counts
	for _, table := range r.schema.All() {
		actual, ok := available[strings.ToLower(table.Name)]
		if !ok {
			r.logger.Printf("%s: table %s not present, skipping", id, table.Name)
			continue
		}

		counts, err := store.Merge(ctx, tx, table, func(fn func(schema.Row) error) error {
			return src.Rows(ctx, actual, fn)
		})
		if err != nil {
			return store.Counts{}, fmt.Errorf("archive %s, table %s: %w", id, table.Name, err)
		}
		r.logger.Printf("%s: %s: %d inserted, %d overwritten", id, table.Name, counts.Inserted, counts.Overwritten)
		totals.Add(counts)
	}

	if err := store.RecordApplied(ctx, tx, id, fp, totals); err != nil {
		return store.Counts{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.Counts{}, fmt.Errorf("failed to commit archive %s: %w", id, err)
	}
	return totals, nil
}
