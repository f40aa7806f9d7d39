// Package archive defines the identifier value type for NTSB data archives.
//
// The NTSB publishes one full snapshot (avall.zip) plus incremental update
// archives named upYYNNN.zip, where YY is a two-digit publication year and
// NNN is a sequence number within that year. Identifiers order by year then
// sequence; the snapshot is assigned the key (0, 0) so it sorts below every
// update archive and a freshly seeded store treats it as the oldest applied
// file.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// SnapshotName is the fixed filename of the full dataset archive.
const SnapshotName = "avall.zip"

// ErrNotArchive reports a filename that is neither the snapshot nor shaped
// like an update archive. Directory listings contain plenty of unrelated
// files; callers should skip these silently.
var ErrNotArchive = errors.New("not a data archive")

// MalformedNameError reports a filename that matches the up*.zip shape but
// whose embedded version fields do not parse. These are logged and skipped
// during listing, never fatal.
type MalformedNameError struct {
	Name   string
	Reason string
}

func (e *MalformedNameError) Error() string {
	return fmt.Sprintf("malformed archive name %q: %s", e.Name, e.Reason)
}

// ID identifies one remote archive and carries its sortable version key.
type ID struct {
	Name string // filename as published, e.g. "up23001.zip"
	Year int    // two-digit publication year; 0 for the snapshot
	Seq  int    // sequence within the year; 0 for the snapshot
}

// Snapshot returns the identifier of the full snapshot archive.
func Snapshot() ID {
	return ID{Name: SnapshotName}
}

// Parse derives an ID from a remote filename.
//
// The snapshot is recognized by its fixed name (case-insensitive), update
// archives by the upYYNNN.zip pattern. Returns ErrNotArchive for unrelated
// filenames and a *MalformedNameError for names that look like an update
// archive but carry invalid version fields.
func Parse(name string) (ID, error) {
	lower := strings.ToLower(name)
	if lower == SnapshotName {
		return Snapshot(), nil
	}
	if !strings.HasPrefix(lower, "up") || !strings.HasSuffix(lower, ".zip") {
		return ID{}, ErrNotArchive
	}
	body := strings.TrimSuffix(strings.TrimPrefix(lower, "up"), ".zip")
	if len(body) != 5 {
		return ID{}, &MalformedNameError{Name: name, Reason: "version key must be 5 digits (YYNNN)"}
	}
	if !isDigits(body) {
		return ID{}, &MalformedNameError{Name: name, Reason: "version key is not numeric"}
	}
	return ID{
		Name: name,
		Year: atoi(body[:2]),
		Seq:  atoi(body[2:]),
	}, nil
}

// IsSnapshot reports whether id names the full snapshot archive.
func (id ID) IsSnapshot() bool {
	return strings.EqualFold(id.Name, SnapshotName)
}

// Less orders identifiers by version key: year first, then sequence.
func (id ID) Less(other ID) bool {
	if id.Year != other.Year {
		return id.Year < other.Year
	}
	return id.Seq < other.Seq
}

func (id ID) String() string {
	return id.Name
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// atoi converts a digits-only string; callers validate with isDigits first.
func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// Fingerprint records the exact content of an archive at apply time.
type Fingerprint struct {
	Size   int64
	SHA256 string
}

// FingerprintFile reads the file at path and returns its fingerprint.
func FingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to open archive for fingerprinting: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to hash archive: %w", err)
	}

	return Fingerprint{
		Size:   n,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}
