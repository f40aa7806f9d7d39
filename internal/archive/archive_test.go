package archive

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// TestParse_Snapshot tests that the fixed snapshot name parses to key (0, 0)
func TestParse_Snapshot(t *testing.T) {
	for _, name := range []string{"avall.zip", "AVALL.ZIP", "Avall.zip"} {
		id, err := Parse(name)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", name, err)
		}
		if !id.IsSnapshot() {
			t.Errorf("Parse(%q).IsSnapshot() = false, want true", name)
		}
		if id.Year != 0 || id.Seq != 0 {
			t.Errorf("Parse(%q) key = (%d, %d), want (0, 0)", name, id.Year, id.Seq)
		}
	}
}

// TestParse_Update tests parsing of well-formed update archive names
func TestParse_Update(t *testing.T) {
	tests := []struct {
		name string
		year int
		seq  int
	}{
		{"up23001.zip", 23, 1},
		{"up23012.zip", 23, 12},
		{"UP24105.ZIP", 24, 105},
		{"up00001.zip", 0, 1},
	}
	for _, tt := range tests {
		id, err := Parse(tt.name)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", tt.name, err)
			continue
		}
		if id.Year != tt.year || id.Seq != tt.seq {
			t.Errorf("Parse(%q) = (%d, %d), want (%d, %d)", tt.name, id.Year, id.Seq, tt.year, tt.seq)
		}
		if id.Name != tt.name {
			t.Errorf("Parse(%q).Name = %q, want input filename preserved", tt.name, id.Name)
		}
		if id.IsSnapshot() {
			t.Errorf("Parse(%q).IsSnapshot() = true, want false", tt.name)
		}
	}
}

// TestParse_Unrelated tests that unrelated filenames return ErrNotArchive
func TestParse_Unrelated(t *testing.T) {
	for _, name := range []string{"readme.txt", "index.html", "pre1982.zip", "avall.mdb", "update.zip.bak", ""} {
		_, err := Parse(name)
		if !errors.Is(err, ErrNotArchive) {
			t.Errorf("Parse(%q) error = %v, want ErrNotArchive", name, err)
		}
	}
}

// TestParse_Malformed tests that archive-shaped names with bad version fields
// return MalformedNameError rather than being silently accepted or dropped
func TestParse_Malformed(t *testing.T) {
	for _, name := range []string{"up23x01.zip", "up2301.zip", "up230011.zip", "upABCDE.zip", "up-1001.zip", "up.zip"} {
		_, err := Parse(name)
		var malformed *MalformedNameError
		if !errors.As(err, &malformed) {
			t.Errorf("Parse(%q) error = %v, want *MalformedNameError", name, err)
			continue
		}
		if malformed.Name != name {
			t.Errorf("MalformedNameError.Name = %q, want %q", malformed.Name, name)
		}
	}
}

// TestLess_Ordering tests the total order over version keys
func TestLess_Ordering(t *testing.T) {
	parse := func(name string) ID {
		id, err := Parse(name)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", name, err)
		}
		return id
	}

	ids := []ID{
		parse("up24001.zip"),
		parse("up23012.zip"),
		Snapshot(),
		parse("up23002.zip"),
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	want := []string{"avall.zip", "up23002.zip", "up23012.zip", "up24001.zip"}
	for i, name := range want {
		if ids[i].Name != name {
			t.Errorf("sorted[%d] = %s, want %s", i, ids[i].Name, name)
		}
	}
}

// TestLess_SnapshotBelowAllUpdates tests that the snapshot sorts below even
// the smallest possible update key
func TestLess_SnapshotBelowAllUpdates(t *testing.T) {
	snap := Snapshot()
	first, err := Parse("up00001.zip")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if !snap.Less(first) {
		t.Error("Snapshot().Less(up00001) = false, want true")
	}
	if first.Less(snap) {
		t.Error("up00001.Less(Snapshot()) = true, want false")
	}
}

// TestFingerprintFile_Content tests that the fingerprint reflects file content
func TestFingerprintFile_Content(t *testing.T) {
	path := filepath.Join(t.TempDir(), "up23001.zip")
	if err := os.WriteFile(path, []byte("hello"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	fp, err := FingerprintFile(path)
	if err != nil {
		t.Fatalf("FingerprintFile() failed: %v", err)
	}
	if fp.Size != 5 {
		t.Errorf("Size = %d, want 5", fp.Size)
	}
	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if fp.SHA256 != want {
		t.Errorf("SHA256 = %s, want %s", fp.SHA256, want)
	}
}

// TestFingerprintFile_Missing tests the error path for a missing file
func TestFingerprintFile_Missing(t *testing.T) {
	if _, err := FingerprintFile(filepath.Join(t.TempDir(), "nope.zip")); err == nil {
		t.Error("FingerprintFile() on missing file succeeded, want error")
	}
}
