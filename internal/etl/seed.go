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

// Seed workflow phases, in execution order. Failure in any phase before
// finalizing discards the partially built store.
const (
	PhaseDownloading = "downloading"
	PhaseConverting  = "converting"
	PhaseMerging     = "merging"
	PhaseFinalizing  = "finalizing"
)

// ErrStoreExists reports a seed refused because a store is already present.
// Overwriting destroys user annotations, so it requires an explicit force.
var ErrStoreExists = errors.New("store already exists (re-run with force to overwrite; annotations will be lost)")

// SeedIncompleteError reports a seed run that failed before finalizing. The
// partially built store has been discarded; no half-seeded database is left
// behind.
type SeedIncompleteError struct {
	Phase string
	Err   error
}

func (e *SeedIncompleteError) Error() string {
	return fmt.Sprintf("seed incomplete (failed while %s): %v", e.Phase, e.Err)
}

func (e *SeedIncompleteError) Unwrap() error {
	return e.Err
}

// SeedReport summarizes a completed seed run.
type SeedReport struct {
	Archive archive.ID
	Counts  store.Counts
}

// Seed performs the initial full load from the snapshot archive.
//
// The store is built in a staging file next to the target path and only
// renamed into place once every table is merged, the snapshot's ledger
// record is written, and the reporting schema is applied. The snapshot's
// version key sorts below every delta, so later update runs treat it as
// already applied and never re-fetch it.
func (r *Runner) Seed(ctx context.Context, force bool) (*SeedReport, error) {
	if _, err := os.Stat(r.dbPath); err == nil {
		if !force {
			return nil, fmt.Errorf("%s: %w", r.dbPath, ErrStoreExists)
		}
		r.logger.Printf("removing existing store at %s", r.dbPath)
		removeStore(r.dbPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", r.dbPath, err)
	}

	staging := r.dbPath + ".seeding"
	removeStore(staging) // leftover from an aborted run

	report, err := r.seedInto(ctx, staging)
	if err != nil {
		removeStore(staging)
		return nil, err
	}

	if err := os.Rename(staging, r.dbPath); err != nil {
		removeStore(staging)
		return nil, &SeedIncompleteError{Phase: PhaseFinalizing, Err: err}
	}

	r.logger.Printf("seed complete: %d rows into %s", report.Counts.Total(), r.dbPath)
	return report, nil
}

func (r *Runner) seedInto(ctx context.Context, path string) (*SeedReport, error) {
	id := archive.Snapshot()

	r.logger.Printf("downloading %s", id)
	zipPath, err := r.fetcher.Download(ctx, id.Name)
	if err != nil {
		return nil, &SeedIncompleteError{Phase: PhaseDownloading, Err: err}
	}
	fp, err := archive.FingerprintFile(zipPath)
	if err != nil {
		return nil, &SeedIncompleteError{Phase: PhaseDownloading, Err: err}
	}

	src, err := r.opener.Open(ctx, zipPath)
	if err != nil {
		return nil, &SeedIncompleteError{Phase: PhaseConverting, Err: err}
	}

	db, err := store.Open(path)
	if err != nil {
		return nil, &SeedIncompleteError{Phase: PhaseMerging, Err: err}
	}
	defer db.Close()

	if err := db.InitSchema(r.schema.All()); err != nil {
		return nil, &SeedIncompleteError{Phase: PhaseMerging, Err: err}
	}

	counts, err := r.applyArchive(ctx, db, id, fp, src)
	if err != nil {
		return nil, &SeedIncompleteError{Phase: PhaseMerging, Err: err}
	}

	if err := db.InitReporting(); err != nil {
		return nil, &SeedIncompleteError{Phase: PhaseFinalizing, Err: err}
	}

	// Close before the rename so the WAL is checkpointed into the file.
	if err := db.Close(); err != nil {
		return nil, &SeedIncompleteError{Phase: PhaseFinalizing, Err: err}
	}
	return &SeedReport{Archive: id, Counts: counts}, nil
}

// removeStore deletes a database file and its WAL sidecars.
func removeStore(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
}
