// Package testdb opens throwaway SQLite stores for tests in other packages.
package testdb

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/kuitang/linknotes/internal/db"
	"github.com/kuitang/linknotes/internal/notes"
)

// counter provides unique names so in-memory databases never share a cache
var counter atomic.Int64

// NewStore returns an isolated in-memory store closed at test end.
func NewStore(t testing.TB) *db.DB {
	t.Helper()

	name := fmt.Sprintf("testdb-%s-%d", sanitize(t.Name()), counter.Add(1))
	store, err := db.OpenInMemory(name, "")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := applyFastSQLitePragmas(store.SQL()); err != nil {
		store.Close()
		t.Fatalf("failed to apply fast SQLite pragmas: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// NewService returns a notes service over a fresh in-memory store.
func NewService(t testing.TB) (*notes.Service, *db.DB) {
	t.Helper()
	store := NewStore(t)
	return notes.NewService(store), store
}

func sanitize(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func applyFastSQLitePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
