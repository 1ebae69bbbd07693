package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/go-playground/assert/v2"
)

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "realtime.db")

	first, err := Open(path)
	assert.Equal(t, err, nil)
	_, err = first.Exec(`INSERT INTO channels (cid, type, id) VALUES ('messaging:general', 'messaging', 'general')`)
	assert.Equal(t, err, nil)
	assert.Equal(t, first.Close(), nil)

	second, err := Open(path)
	assert.Equal(t, err, nil)
	defer second.Close()

	var applied, rows int
	assert.Equal(t, second.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied), nil)
	assert.Equal(t, second.QueryRow(`SELECT COUNT(*) FROM channels`).Scan(&rows), nil)
	assert.Equal(t, applied, 1)
	assert.Equal(t, rows, 1)
}

func openBare(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "bare.db"))
	assert.Equal(t, err, nil)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func appliedVersions(t *testing.T, db *sql.DB) []int {
	t.Helper()
	rows, err := db.Query(`SELECT version FROM schema_migrations ORDER BY version`)
	assert.Equal(t, err, nil)
	defer rows.Close()

	var out []int
	for rows.Next() {
		var v int
		assert.Equal(t, rows.Scan(&v), nil)
		out = append(out, v)
	}
	return out
}

func TestMigrateVersionsFromFileNames(t *testing.T) {
	db := openBare(t)
	scripts := fstest.MapFS{
		"010_c.sql": {Data: []byte(`CREATE TABLE c (id INTEGER);`)},
		"002_b.sql": {Data: []byte(`CREATE TABLE b (id INTEGER);`)},
		"001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER);`)},
	}
	assert.Equal(t, migrate(db, scripts), nil)
	assert.Equal(t, appliedVersions(t, db), []int{1, 2, 10})

	// "0005_d.sql" sorts first by name but is version 5.
	scripts["0005_d.sql"] = &fstest.MapFile{Data: []byte(`CREATE TABLE d (id INTEGER);`)}
	assert.Equal(t, migrate(db, scripts), nil)
	assert.Equal(t, appliedVersions(t, db), []int{1, 2, 5, 10})
}

func TestMigrateRejectsBadNames(t *testing.T) {
	tests := []struct {
		name    string
		scripts fstest.MapFS
	}{
		{"no prefix", fstest.MapFS{"channels.sql": {Data: []byte(`SELECT 1;`)}}},
		{"non-numeric prefix", fstest.MapFS{"abc_channels.sql": {Data: []byte(`SELECT 1;`)}}},
		{"duplicate version", fstest.MapFS{
			"001_a.sql":  {Data: []byte(`SELECT 1;`)},
			"0001_b.sql": {Data: []byte(`SELECT 1;`)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, migrate(openBare(t), tt.scripts), nil)
		})
	}
}

func TestMigrateStopsWhenVersionLookupFails(t *testing.T) {
	db := openBare(t)
	// A view without a version column shadows the bookkeeping table.
	_, err := db.Exec(`CREATE VIEW schema_migrations AS SELECT 1 AS other`)
	assert.Equal(t, err, nil)

	scripts := fstest.MapFS{"001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER);`)}}
	assert.NotEqual(t, migrate(db, scripts), nil)

	var tables int
	assert.Equal(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'a'`).Scan(&tables), nil)
	assert.Equal(t, tables, 0)
}

func TestFailedMigrationIsRolledBack(t *testing.T) {
	db := openBare(t)
	scripts := fstest.MapFS{"001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER); INSERT INTO missing VALUES (1);`)}}
	assert.NotEqual(t, migrate(db, scripts), nil)

	var tables int
	assert.Equal(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'a'`).Scan(&tables), nil)
	assert.Equal(t, tables, 0)
	assert.Equal(t, len(appliedVersions(t, db)), 0)
}
