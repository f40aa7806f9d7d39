package etl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ntsbtools/avdata/internal/archive"
	"github.com/ntsbtools/avdata/internal/store"
)

// ErrNoStore reports an update attempted before any seed.
var ErrNoStore = errors.New("store not found (run seed first)")

// StoppedAtError reports an update run that aborted while applying one
// archive. That archive's partial changes were rolled back; archives
// recorded before it remain applied, and later archives were not attempted.
type StoppedAtError struct {
	Archive archive.ID
	Err     error
}

func (e *StoppedAtError) Error() string {
	return fmt.Sprintf("update stopped at %s: %v", e.Archive, e.Err)
}

func (e *StoppedAtError) Unwrap() error {
	return e.Err
}

// AppliedArchive records one archive applied during an update run.
type AppliedArchive struct {
	Archive archive.ID
	Counts  store.Counts
}

// UpdateReport summarizes an update run. On a StoppedAtError the report is
// still returned and covers the archives that did land.
type UpdateReport struct {
	Applied []AppliedArchive
	Skipped []archive.ID // already recorded in the ledger; not downloaded
}

// Update applies every remote delta archive the ledger does not list yet,
// ascending by version key. Already-applied archives are skipped without a
// download. Zero new archives is a well-defined success.
//
// Archives are applied strictly in order and the run stops at the first
// failure rather than skipping ahead: later deltas may depend on the state
// the failed one would have produced.
func (r *Runner) Update(ctx context.Context) (*UpdateReport, error) {
	if _, err := os.Stat(r.dbPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", r.dbPath, ErrNoStore)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", r.dbPath, err)
	}

	db, err := store.Open(r.dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	deltas, err := r.catalog.ListDeltas(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote archives: %w", err)
	}
	r.logger.Printf("server lists %d update archive(s)", len(deltas))

	report := &UpdateReport{}
	for _, id := range deltas {
		applied, err := db.HasApplied(ctx, id)
		if err != nil {
			return report, err
		}
		if applied {
			report.Skipped = append(report.Skipped, id)
			continue
		}

		counts, err := r.applyOne(ctx, db, id)
		if err != nil {
			return report, &StoppedAtError{Archive: id, Err: err}
		}
		report.Applied = append(report.Applied, AppliedArchive{Archive: id, Counts: counts})
	}

	if len(report.Applied) == 0 {
		r.logger.Printf("store is up to date")
	}
	return report, nil
}

// applyOne downloads, converts, and merges a single delta archive.
func (r *Runner) applyOne(ctx context.Context, db *store.DB, id archive.ID) (store.Counts, error) {
	zipPath, err := r.fetcher.Download(ctx, id.Name)
	if err != nil {
		return store.Counts{}, err
	}
	fp, err := archive.FingerprintFile(zipPath)
	if err != nil {
		return store.Counts{}, err
	}
	src, err := r.opener.Open(ctx, zipPath)
	if err != nil {
		return store.Counts{}, err
	}
	return r.applyArchive(ctx, db, id, fp, src)
}
