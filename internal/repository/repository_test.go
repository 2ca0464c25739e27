package repository

import (
	"path/filepath"
	"testing"

	"postflow/internal/db"
	"postflow/internal/secrets"
)

const testKey = "0000000000000000000000000000000000000000000000000000000000000000"

func newTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return database
}

func newTestBox(t *testing.T) *secrets.Box {
	t.Helper()

	box, err := secrets.NewBox(testKey)
	if err != nil {
		t.Fatalf("secrets.NewBox() error = %v", err)
	}
	return box
}
