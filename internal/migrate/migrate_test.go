package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master: %v", err)
	}
	return n == 1
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"0001_schema.sql", "0001", "schema", true},
		{"0012_add_notes_index.sql", "0012", "add_notes_index", true},
		{"1_schema.sql", "", "", false},
		{"0001_schema.txt", "", "", false},
		{"README.md", "", "", false},
	}
	for _, tt := range tests {
		version, name, ok := parseMigrationFilename(tt.in)
		if ok != tt.wantOK || version != tt.wantVersion || name != tt.wantName {
			t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, version, name, ok, tt.wantVersion, tt.wantName, tt.wantOK)
		}
	}
}

func TestRun_EmbeddedSchema(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	if err := Run(ctx, db, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, table := range []string{"schema_migrations", "measurements", "user_profile", "user_preferences", "goals"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing after Run", table)
		}
	}

	// A second run is a no-op.
	if err := Run(ctx, db, nil); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("schema_migrations rows = %d, want 2", n)
	}
}

func TestRun_OrderAndSkipApplied(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"sql/0002_second.sql": {Data: []byte(`INSERT INTO log (v) VALUES ('second');`)},
		"sql/0001_first.sql":  {Data: []byte(`CREATE TABLE log (v TEXT); INSERT INTO log (v) VALUES ('first');`)},
		"sql/notes.txt":       {Data: []byte(`ignored`)},
	}
	if err := run(ctx, db, fsys, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	fsys["sql/0003_third.sql"] = &fstest.MapFile{Data: []byte(`INSERT INTO log (v) VALUES ('third');`)}
	if err := run(ctx, db, fsys, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}

	rows, err := db.Query(`SELECT v FROM log ORDER BY rowid`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var got []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, v)
	}
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("log = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRun_FailedMigrationRollsBack(t *testing.T) {
	db := openMemory(t)
	fsys := fstest.MapFS{
		"sql/0001_broken.sql": {Data: []byte(`CREATE TABLE ok (id INTEGER); INSERT INTO nowhere VALUES (1);`)},
	}

	if err := run(context.Background(), db, fsys, nil); err == nil {
		t.Fatal("run: want error for broken migration")
	}
	if tableExists(t, db, "ok") {
		t.Error("partial migration was not rolled back")
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("schema_migrations rows = %d, want 0", n)
	}
}
