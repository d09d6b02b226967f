package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "raw.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitSchema_Fresh(t *testing.T) {
	db := openRaw(t)
	ctx := context.Background()
	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	v, err := getSchemaVersion(ctx, db)
	if err != nil || v != SchemaVersion {
		t.Errorf("schema version = %d, %v", v, err)
	}
	for _, table := range []string{"runs", "ticks", "ops"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
	// Idempotent on an existing database.
	if err := InitSchema(ctx, db); err != nil {
		t.Errorf("second InitSchema() error = %v", err)
	}
}

func TestInitSchema_NewerVersion(t *testing.T) {
	db := openRaw(t)
	ctx := context.Background()
	if err := InitSchema(ctx, db); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version, applied_at) VALUES (99, datetime('now'))`); err != nil {
		t.Fatal(err)
	}
	if err := InitSchema(ctx, db); err == nil {
		t.Error("expected error for newer schema version")
	}
}

func TestInitSchema_MigratesEmptyVersionTable(t *testing.T) {
	db := openRaw(t)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		t.Fatal(err)
	}
	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	if v, _ := getSchemaVersion(ctx, db); v != SchemaVersion {
		t.Errorf("version after migration = %d", v)
	}
	if err := ValidateIntegrity(ctx, db); err != nil {
		t.Errorf("ValidateIntegrity() = %v", err)
	}
}
