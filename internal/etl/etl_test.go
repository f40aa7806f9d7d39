package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ntsbtools/avdata/internal/archive"
	"github.com/ntsbtools/avdata/internal/mdb"
	"github.com/ntsbtools/avdata/internal/schema"
	"github.com/ntsbtools/avdata/internal/store"
)

// --- fakes -----------------------------------------------------------------

type fakeCatalog struct {
	ids []archive.ID
	err error
}

func (f *fakeCatalog) ListDeltas(ctx context.Context) ([]archive.ID, error) {
	return f.ids, f.err
}

type fakeFetcher struct {
	dir       string
	downloads []string
	fail      map[string]error
}

func (f *fakeFetcher) Download(ctx context.Context, name string) (string, error) {
	if err := f.fail[name]; err != nil {
		return "", err
	}
	f.downloads = append(f.downloads, name)
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("content of "+name), 0600); err != nil {
		return "", err
	}
	return path, nil
}

type fakeSource struct {
	tables map[string][]schema.Row
	failAt map[string]int // yield this many rows of the table, then fail
}

func (s *fakeSource) Tables() ([]string, error) {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeSource) Rows(ctx context.Context, table string, fn func(schema.Row) error) error {
	for i, row := range s.tables[table] {
		if limit, ok := s.failAt[table]; ok && i == limit {
			return &mdb.ConvertError{Table: table, Record: i + 1, Err: errors.New("corrupt record")}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

type fakeOpener struct {
	sources map[string]mdb.Source // keyed by archive filename
}

func (o *fakeOpener) Open(ctx context.Context, zipPath string) (mdb.Source, error) {
	src, ok := o.sources[filepath.Base(zipPath)]
	if !ok {
		return nil, fmt.Errorf("no source for %s", filepath.Base(zipPath))
	}
	return src, nil
}

// --- harness ---------------------------------------------------------------

type env struct {
	dbPath  string
	catalog *fakeCatalog
	fetcher *fakeFetcher
	opener  *fakeOpener
	runner  *Runner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := schema.Load()
	if err != nil {
		t.Fatalf("schema.Load() failed: %v", err)
	}

	dir := t.TempDir()
	e := &env{
		dbPath:  filepath.Join(dir, "data", "ntsb_aviation.db"),
		catalog: &fakeCatalog{},
		fetcher: &fakeFetcher{dir: dir, fail: map[string]error{}},
		opener:  &fakeOpener{sources: map[string]mdb.Source{}},
	}
	e.runner = New(e.dbPath, s, e.catalog, e.fetcher, e.opener, log.New(io.Discard, "", 0))
	return e
}

// snapshotSource returns a snapshot with events {1, inj 10} and {2, inj 20}.
func snapshotSource() *fakeSource {
	return &fakeSource{tables: map[string][]schema.Row{
		"events": {
			{"ev_id": "1", "inj_tot_t": "10"},
			{"ev_id": "2", "inj_tot_t": "20"},
		},
	}}
}

func (e *env) seed(t *testing.T) *SeedReport {
	t.Helper()
	e.opener.sources[archive.SnapshotName] = snapshotSource()
	report, err := e.runner.Seed(context.Background(), false)
	if err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	return report
}

func mustParse(t *testing.T, name string) archive.ID {
	t.Helper()
	id, err := archive.Parse(name)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", name, err)
	}
	return id
}

// queryEvents reads ev_id -> inj_tot_t from the store file.
func queryEvents(t *testing.T, dbPath string) map[string]string {
	t.Helper()
	conn, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	defer conn.Close()

	rows, err := conn.Query(`SELECT ev_id, inj_tot_t FROM events`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer rows.Close()

	events := make(map[string]string)
	for rows.Next() {
		var id string
		var inj sql.NullString
		if err := rows.Scan(&id, &inj); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		events[id] = inj.String
	}
	return events
}

func hasApplied(t *testing.T, dbPath, name string) bool {
	t.Helper()
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	defer db.Close()
	applied, err := db.HasApplied(context.Background(), archive.ID{Name: name})
	if err != nil {
		t.Fatalf("HasApplied() failed: %v", err)
	}
	return applied
}

// --- seed ------------------------------------------------------------------

// TestSeed_Success tests the full seed workflow end to end
func TestSeed_Success(t *testing.T) {
	e := newEnv(t)
	report := e.seed(t)

	if !report.Archive.IsSnapshot() {
		t.Errorf("report.Archive = %v, want snapshot", report.Archive)
	}
	if report.Counts.Inserted != 2 {
		t.Errorf("report.Counts.Inserted = %d, want 2", report.Counts.Inserted)
	}
	if _, err := os.Stat(e.dbPath); err != nil {
		t.Fatalf("store file missing after seed: %v", err)
	}
	if !hasApplied(t, e.dbPath, archive.SnapshotName) {
		t.Error("snapshot not recorded in sync ledger")
	}
	if got := queryEvents(t, e.dbPath); got["1"] != "10" || got["2"] != "20" {
		t.Errorf("events after seed = %v", got)
	}
}

// TestSeed_RefusesExistingStore tests that seed will not destroy an
// existing (possibly annotated) store without force
func TestSeed_RefusesExistingStore(t *testing.T) {
	e := newEnv(t)
	if err := os.MkdirAll(filepath.Dir(e.dbPath), 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(e.dbPath, []byte("precious"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	e.opener.sources[archive.SnapshotName] = snapshotSource()
	_, err := e.runner.Seed(context.Background(), false)
	if !errors.Is(err, ErrStoreExists) {
		t.Fatalf("Seed() error = %v, want ErrStoreExists", err)
	}

	content, err := os.ReadFile(e.dbPath)
	if err != nil || string(content) != "precious" {
		t.Error("existing store was modified by a refused seed")
	}
	if len(e.fetcher.downloads) != 0 {
		t.Error("refused seed still downloaded the snapshot")
	}
}

// TestSeed_ForceOverwrites tests the explicit override
func TestSeed_ForceOverwrites(t *testing.T) {
	e := newEnv(t)
	if err := os.MkdirAll(filepath.Dir(e.dbPath), 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(e.dbPath, []byte("old"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	e.opener.sources[archive.SnapshotName] = snapshotSource()
	if _, err := e.runner.Seed(context.Background(), true); err != nil {
		t.Fatalf("Seed(force) failed: %v", err)
	}
	if !hasApplied(t, e.dbPath, archive.SnapshotName) {
		t.Error("snapshot not recorded after forced seed")
	}
}

// TestSeed_DownloadFailureDiscardsStore tests the Aborted path during download
func TestSeed_DownloadFailureDiscardsStore(t *testing.T) {
	e := newEnv(t)
	e.fetcher.fail[archive.SnapshotName] = errors.New("connection reset")

	_, err := e.runner.Seed(context.Background(), false)
	var incomplete *SeedIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("Seed() error = %v, want *SeedIncompleteError", err)
	}
	if incomplete.Phase != PhaseDownloading {
		t.Errorf("Phase = %q, want %q", incomplete.Phase, PhaseDownloading)
	}
	assertNoStore(t, e.dbPath)
}

// TestSeed_MergeFailureDiscardsStore tests that a conversion failure midway
// through merging leaves no store file behind
func TestSeed_MergeFailureDiscardsStore(t *testing.T) {
	e := newEnv(t)
	src := snapshotSource()
	src.failAt = map[string]int{"events": 1}
	e.opener.sources[archive.SnapshotName] = src

	_, err := e.runner.Seed(context.Background(), false)
	var incomplete *SeedIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("Seed() error = %v, want *SeedIncompleteError", err)
	}
	if incomplete.Phase != PhaseMerging {
		t.Errorf("Phase = %q, want %q", incomplete.Phase, PhaseMerging)
	}
	var convErr *mdb.ConvertError
	if !errors.As(err, &convErr) {
		t.Errorf("cause = %v, want wrapped *mdb.ConvertError", incomplete.Err)
	}
	assertNoStore(t, e.dbPath)
}

func assertNoStore(t *testing.T, dbPath string) {
	t.Helper()
	if _, err := os.Stat(dbPath); err == nil {
		t.Error("store file exists after failed seed")
	}
	if _, err := os.Stat(dbPath + ".seeding"); err == nil {
		t.Error("staging file left behind after failed seed")
	}
}

// --- update ----------------------------------------------------------------

// TestUpdate_NoStore tests that update requires a seeded store
func TestUpdate_NoStore(t *testing.T) {
	e := newEnv(t)
	_, err := e.runner.Update(context.Background())
	if !errors.Is(err, ErrNoStore) {
		t.Fatalf("Update() error = %v, want ErrNoStore", err)
	}
}

// TestUpdate_ZeroNewArchives tests that nothing-to-do is a success
func TestUpdate_ZeroNewArchives(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	report, err := e.runner.Update(context.Background())
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if len(report.Applied) != 0 || len(report.Skipped) != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

// TestUpdate_SeedThenUpdateConvergence tests end-to-end convergence: a
// delta overwrites event 1, adds event 3, and leaves event 2 alone.
func TestUpdate_SeedThenUpdateConvergence(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	delta := mustParse(t, "up23001.zip")
	e.catalog.ids = []archive.ID{delta}
	e.opener.sources[delta.Name] = &fakeSource{tables: map[string][]schema.Row{
		"events": {
			{"ev_id": "1", "inj_tot_t": "99"},
			{"ev_id": "3", "inj_tot_t": "30"},
		},
	}}

	report, err := e.runner.Update(context.Background())
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if len(report.Applied) != 1 {
		t.Fatalf("applied %d archives, want 1", len(report.Applied))
	}
	counts := report.Applied[0].Counts
	if counts.Inserted != 1 || counts.Overwritten != 1 {
		t.Errorf("counts = %+v, want 1 inserted, 1 overwritten", counts)
	}

	got := queryEvents(t, e.dbPath)
	want := map[string]string{"1": "99", "2": "20", "3": "30"}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for id, inj := range want {
		if got[id] != inj {
			t.Errorf("event %s = %q, want %q", id, got[id], inj)
		}
	}
}

// TestUpdate_Idempotent tests that a second run skips everything without
// downloading, and the ledger stays at one record per archive
func TestUpdate_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	delta := mustParse(t, "up23001.zip")
	e.catalog.ids = []archive.ID{delta}
	e.opener.sources[delta.Name] = &fakeSource{tables: map[string][]schema.Row{
		"events": {{"ev_id": "1", "inj_tot_t": "99"}},
	}}

	if _, err := e.runner.Update(context.Background()); err != nil {
		t.Fatalf("first Update() failed: %v", err)
	}
	downloadsAfterFirst := len(e.fetcher.downloads)
	stateAfterFirst := queryEvents(t, e.dbPath)

	report, err := e.runner.Update(context.Background())
	if err != nil {
		t.Fatalf("second Update() failed: %v", err)
	}
	if len(report.Applied) != 0 {
		t.Errorf("second run applied %d archives, want 0", len(report.Applied))
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Name != delta.Name {
		t.Errorf("second run skipped = %v, want [%s]", report.Skipped, delta.Name)
	}
	if len(e.fetcher.downloads) != downloadsAfterFirst {
		t.Error("second run re-downloaded an applied archive")
	}

	stateAfterSecond := queryEvents(t, e.dbPath)
	if len(stateAfterSecond) != len(stateAfterFirst) {
		t.Fatal("table contents changed on an idempotent re-run")
	}
	for id, inj := range stateAfterFirst {
		if stateAfterSecond[id] != inj {
			t.Errorf("event %s changed from %q to %q on re-run", id, inj, stateAfterSecond[id])
		}
	}

	db, err := store.Open(e.dbPath)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	defer db.Close()
	records, err := db.History(context.Background())
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	seen := make(map[string]int)
	for _, rec := range records {
		seen[rec.Archive]++
	}
	for name, n := range seen {
		if n != 1 {
			t.Errorf("ledger lists %s %d times, want exactly once", name, n)
		}
	}
}

// TestUpdate_AppliesInAscendingOrder tests strict version-order application
func TestUpdate_AppliesInAscendingOrder(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	first := mustParse(t, "up23001.zip")
	second := mustParse(t, "up23002.zip")
	e.catalog.ids = []archive.ID{first, second}
	for _, id := range e.catalog.ids {
		e.opener.sources[id.Name] = &fakeSource{tables: map[string][]schema.Row{
			"events": {{"ev_id": "1", "inj_tot_t": id.Name}},
		}}
	}

	report, err := e.runner.Update(context.Background())
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if len(report.Applied) != 2 {
		t.Fatalf("applied %d archives, want 2", len(report.Applied))
	}
	want := []string{archive.SnapshotName, first.Name, second.Name}
	for i, name := range want {
		if e.fetcher.downloads[i] != name {
			t.Errorf("downloads[%d] = %s, want %s", i, e.fetcher.downloads[i], name)
		}
	}

	// Last delta wins for event 1.
	if got := queryEvents(t, e.dbPath); got["1"] != second.Name {
		t.Errorf("event 1 = %q, want %q", got["1"], second.Name)
	}
}

// TestUpdate_StopsAtFailedArchive tests that a mid-run failure keeps prior
// archives committed, rolls back the failing one, and goes no further
func TestUpdate_StopsAtFailedArchive(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	first := mustParse(t, "up23001.zip")
	second := mustParse(t, "up23002.zip")
	third := mustParse(t, "up23003.zip")
	e.catalog.ids = []archive.ID{first, second, third}

	e.opener.sources[first.Name] = &fakeSource{tables: map[string][]schema.Row{
		"events": {{"ev_id": "3", "inj_tot_t": "30"}},
	}}
	e.opener.sources[second.Name] = &fakeSource{
		tables: map[string][]schema.Row{
			"events": {{"ev_id": "1", "inj_tot_t": "99"}, {"ev_id": "4", "inj_tot_t": "40"}},
		},
		failAt: map[string]int{"events": 1},
	}
	e.opener.sources[third.Name] = &fakeSource{tables: map[string][]schema.Row{
		"events": {{"ev_id": "5", "inj_tot_t": "50"}},
	}}

	report, err := e.runner.Update(context.Background())
	var stopped *StoppedAtError
	if !errors.As(err, &stopped) {
		t.Fatalf("Update() error = %v, want *StoppedAtError", err)
	}
	if stopped.Archive.Name != second.Name {
		t.Errorf("stopped at %s, want %s", stopped.Archive, second)
	}
	if len(report.Applied) != 1 || report.Applied[0].Archive.Name != first.Name {
		t.Errorf("report.Applied = %+v, want only %s", report.Applied, first)
	}

	// First delta committed, failing delta fully rolled back, third untouched.
	got := queryEvents(t, e.dbPath)
	if got["3"] != "30" {
		t.Error("first delta's rows missing after later failure")
	}
	if got["1"] != "10" {
		t.Errorf("event 1 = %q, want pre-failure value 10", got["1"])
	}
	if _, ok := got["4"]; ok {
		t.Error("failing delta's partial rows survived rollback")
	}
	if _, ok := got["5"]; ok {
		t.Error("archive after the failure was applied")
	}

	if !hasApplied(t, e.dbPath, first.Name) {
		t.Error("first delta not recorded")
	}
	if hasApplied(t, e.dbPath, second.Name) {
		t.Error("failed delta recorded in ledger")
	}
	if hasApplied(t, e.dbPath, third.Name) {
		t.Error("unattempted delta recorded in ledger")
	}
}

// TestUpdate_ListingFailure tests that a listing failure aborts before any
// download
func TestUpdate_ListingFailure(t *testing.T) {
	e := newEnv(t)
	e.seed(t)
	downloadsAfterSeed := len(e.fetcher.downloads)

	e.catalog.err = errors.New("503 service unavailable")
	if _, err := e.runner.Update(context.Background()); err == nil {
		t.Fatal("Update() succeeded despite listing failure")
	}
	if len(e.fetcher.downloads) != downloadsAfterSeed {
		t.Error("update downloaded archives despite listing failure")
	}
}
