package db

// NotesSchema creates the single notes table.
//
// seq preserves creation order and is never reused, so listing by seq is
// stable across deletes. backlinks holds the encoded title set (see
// EncodeBacklinks); an empty string is the empty set.
const NotesSchema = `
-- Notes table: main notes storage with 1MB content limit
CREATE TABLE IF NOT EXISTS notes (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '' CHECK(length(content) <= 1048576),
    backlinks TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_title ON notes(title);
CREATE INDEX IF NOT EXISTS idx_notes_updated_at ON notes(updated_at DESC);
`
