package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/linknotes/internal/notes"
)

const (
	// DefaultPath is the default database file location
	DefaultPath = "./data/linknotes.db"

	// MaxOpenConns is the maximum number of open connections for a file database.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 10

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns = 2

	// KeyBytes is the SQLCipher raw key length
	KeyBytes = 32
)

// ErrReadOnly is returned by writes attempted inside View
var ErrReadOnly = errors.New("read-only transaction")

// DB is the SQLite implementation of notes.Store and notes.Searcher.
// Update transactions are serialized in-process by writeMu so that one unit
// of work never interleaves with another; View transactions run concurrently.
type DB struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewFromSQL wraps an existing sql.DB whose schema is already initialized.
func NewFromSQL(sqlDB *sql.DB) *DB {
	return &DB{db: sqlDB}
}

// Open opens (creating if needed) the notes database at path.
// A non-empty key must be 32 bytes hex-encoded and enables SQLCipher
// encryption; an empty key opens a plain SQLite file.
func Open(path, key string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn, err := keyedDSN(path, key)
	if err != nil {
		return nil, err
	}
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	return initialize(sqlDB)
}

// OpenInMemory opens a private in-memory database named name.
// All connections share one cache, so the pool is pinned to a single
// connection to keep SQLite's shared-cache table locks out of the way.
func OpenInMemory(name, key string) (*DB, error) {
	if name == "" {
		name = "linknotes-" + uuid.NewString()
	}
	dsn, err := keyedDSN(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), key)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	return initialize(sqlDB)
}

func keyedDSN(dsn, key string) (string, error) {
	if key == "" {
		return dsn, nil
	}
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != KeyBytes {
		return "", fmt.Errorf("database key must be %d hex-encoded bytes", KeyBytes)
	}
	// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
	return appendSQLiteParams(dsn, fmt.Sprintf("_pragma_key=x'%s'&_pragma_cipher_page_size=4096", hex.EncodeToString(raw))), nil
}

func initialize(sqlDB *sql.DB) (*DB, error) {
	// Verify connection and encryption by executing a simple query.
	// If the encryption key is wrong, this will fail.
	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	if _, err := sqlDB.Exec(NotesSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return NewFromSQL(sqlDB), nil
}

func sqliteCommonParams() string {
	// Production-safe defaults: WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// SQL returns the underlying sql.DB for direct access when needed
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Ping verifies the database is reachable
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Update runs fn in a write transaction and commits only if fn returns nil.
func (d *DB) Update(ctx context.Context, fn func(tx notes.Tx) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// View runs fn in a transaction that is always rolled back.
func (d *DB) View(ctx context.Context, fn func(tx notes.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	return fn(&sqlTx{tx: tx, readOnly: true})
}

// SearchNotes returns notes whose title or content contains query, ignoring
// case, in creation order.
func (d *DB) SearchNotes(ctx context.Context, query string) ([]notes.Note, error) {
	query = strings.ReplaceAll(query, "\x00", "")
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, title, content, backlinks, created_at, updated_at
		FROM notes
		WHERE casefold_contains(title, ?1) OR casefold_contains(content, ?1)
		ORDER BY seq
	`, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return scanNotes(rows)
}

const noteColumns = `id, title, content, backlinks, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (notes.Note, error) {
	var (
		n                    notes.Note
		backlinks            string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &backlinks, &createdAt, &updatedAt); err != nil {
		return notes.Note{}, err
	}
	set, err := DecodeBacklinks(backlinks)
	if err != nil {
		return notes.Note{}, fmt.Errorf("note %s: %w", n.ID, err)
	}
	n.Backlinks = set
	n.CreatedAt = time.UnixMilli(createdAt).UTC()
	n.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return n, nil
}

func scanNotes(rows *sql.Rows) ([]notes.Note, error) {
	defer rows.Close()

	out := []notes.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return out, nil
}

// sqlTx adapts a database transaction to notes.Tx.
type sqlTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *sqlTx) GetAll(ctx context.Context) ([]notes.Note, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return scanNotes(rows)
}

func (t *sqlTx) GetByID(ctx context.Context, id string) (notes.Note, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return notes.Note{}, fmt.Errorf("%w: %s", notes.ErrNotFound, id)
	}
	if err != nil {
		return notes.Note{}, fmt.Errorf("failed to get note: %w", err)
	}
	return n, nil
}

func (t *sqlTx) Insert(ctx context.Context, n notes.Note) (string, error) {
	if t.readOnly {
		return "", ErrReadOnly
	}
	id := uuid.NewString()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, backlinks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, n.Title, n.Content, EncodeBacklinks(n.Backlinks), n.CreatedAt.UnixMilli(), n.UpdatedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to insert note: %w", err)
	}
	return id, nil
}

func (t *sqlTx) Update(ctx context.Context, id string, n notes.Note) error {
	if t.readOnly {
		return ErrReadOnly
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE notes SET title = ?, content = ?, backlinks = ?, updated_at = ?
		WHERE id = ?
	`, n.Title, n.Content, EncodeBacklinks(n.Backlinks), n.UpdatedAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	return requireRow(res, id)
}

func (t *sqlTx) Delete(ctx context.Context, id string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notes.ErrNotFound, id)
	}
	return nil
}

var (
	_ notes.Store    = (*DB)(nil)
	_ notes.Searcher = (*DB)(nil)
)
