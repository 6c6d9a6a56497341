package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/keyfold/keyfold-server/internal/store"
	"github.com/keyfold/keyfold-server/internal/store/storetest"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s, err := NewWithDB(db)
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	return s
}

func TestSQLiteStoreConformance(t *testing.T) {
	storetest.Run(t, newTestStore)
}
