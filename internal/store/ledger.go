package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ntsbtools/avdata/internal/archive"
)

// The sync ledger is append-only: one row per archive ever applied, written
// inside the same transaction as the merges it certifies. It is the single
// source of truth for "already processed".
const createSyncLogSQL = `
CREATE TABLE IF NOT EXISTS sync_log (
    archive          TEXT PRIMARY KEY,
    size             INTEGER NOT NULL,
    sha256           TEXT NOT NULL,
    applied_at       TEXT NOT NULL,
    rows_inserted    INTEGER NOT NULL,
    rows_overwritten INTEGER NOT NULL
)`

// DuplicateArchiveError reports an attempt to record an archive that the
// ledger already lists. The orchestrator checks HasApplied before merging,
// so this only surfaces when the same identifier is applied twice in one run.
type DuplicateArchiveError struct {
	Archive string
}

func (e *DuplicateArchiveError) Error() string {
	return fmt.Sprintf("archive %s is already recorded in the sync ledger", e.Archive)
}

// SyncRecord is one row of the sync ledger.
type SyncRecord struct {
	Archive         string
	Size            int64
	SHA256          string
	AppliedAt       time.Time
	RowsInserted    int64
	RowsOverwritten int64
}

// HasApplied reports whether a sync record exists for the identifier.
// Checked before any download or merge work to guarantee idempotence.
func (db *DB) HasApplied(ctx context.Context, id archive.ID) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_log WHERE archive = ?`, id.Name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query sync ledger: %w", err)
	}
	return n > 0, nil
}

// RecordApplied inserts the sync record certifying an archive, inside the
// same transaction as the merges it covers. Returns *DuplicateArchiveError
// if the identifier is already recorded.
func RecordApplied(ctx context.Context, tx *sql.Tx, id archive.ID, fp archive.Fingerprint, counts Counts) error {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_log WHERE archive = ?`, id.Name).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to query sync ledger: %w", err)
	}
	if n > 0 {
		return &DuplicateArchiveError{Archive: id.Name}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_log (archive, size, sha256, applied_at, rows_inserted, rows_overwritten)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id.Name, fp.Size, fp.SHA256, time.Now().UTC().Format(time.RFC3339),
		counts.Inserted, counts.Overwritten)
	if err != nil {
		return fmt.Errorf("failed to record archive %s: %w", id.Name, err)
	}
	return nil
}

// History returns every applied archive, most recent application first.
func (db *DB) History(ctx context.Context) ([]SyncRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT archive, size, sha256, applied_at, rows_inserted, rows_overwritten
		FROM sync_log ORDER BY rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync ledger: %w", err)
	}
	defer rows.Close()

	var records []SyncRecord
	for rows.Next() {
		var rec SyncRecord
		var applied string
		if err := rows.Scan(&rec.Archive, &rec.Size, &rec.SHA256, &applied,
			&rec.RowsInserted, &rec.RowsOverwritten); err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		rec.AppliedAt, err = time.Parse(time.RFC3339, applied)
		if err != nil {
			return nil, fmt.Errorf("bad applied_at for %s: %w", rec.Archive, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync ledger: %w", err)
	}
	return records, nil
}
