package db

import (
	"database/sql"
	"fmt"
	"strings"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/kuitang/linknotes/internal/notes"
)

const (
	// SQLiteDriverName is the project-specific SQLCipher driver with custom SQL functions.
	SQLiteDriverName = "sqlite3_linknotes"
)

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("casefold_contains", sqliteCasefoldContains, true); err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "already exists") {
					return nil
				}
				return fmt.Errorf("register casefold_contains SQL function: %w", err)
			}
			return nil
		},
	})
}

// sqliteCasefoldContains is SQLite's LIKE without the ASCII-only case folding
// and wildcard escaping.
func sqliteCasefoldContains(haystack, needle string) bool {
	return notes.ContainsFold(haystack, needle)
}
