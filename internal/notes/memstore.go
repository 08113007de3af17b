package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrReadOnly is returned by writes attempted inside Store.View
var ErrReadOnly = errors.New("read-only transaction")

// MemStore is a process-local Store. Update works on a private copy of the
// notes and publishes it only when fn succeeds, so a failed unit of work
// leaves no trace.
type MemStore struct {
	mu    sync.RWMutex
	notes []Note // creation order
}

// NewMemStore returns an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Update runs fn exclusively and commits its writes only if it returns nil
func (m *MemStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{notes: cloneNotes(m.notes)}
	if err := fn(tx); err != nil {
		return err
	}
	m.notes = tx.notes
	return nil
}

// View runs fn against the committed notes
func (m *MemStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn(&memTx{notes: m.notes, readOnly: true})
}

func cloneNotes(in []Note) []Note {
	out := make([]Note, len(in))
	for i, n := range in {
		out[i] = n.Clone()
	}
	return out
}

type memTx struct {
	notes    []Note
	readOnly bool
}

func (t *memTx) index(id string) int {
	for i := range t.notes {
		if t.notes[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *memTx) GetAll(ctx context.Context) ([]Note, error) {
	return cloneNotes(t.notes), nil
}

func (t *memTx) GetByID(ctx context.Context, id string) (Note, error) {
	i := t.index(id)
	if i < 0 {
		return Note{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.notes[i].Clone(), nil
}

func (t *memTx) Insert(ctx context.Context, n Note) (string, error) {
	if t.readOnly {
		return "", ErrReadOnly
	}
	n = n.Clone()
	n.ID = uuid.NewString()
	t.notes = append(t.notes, n)
	return n.ID, nil
}

func (t *memTx) Update(ctx context.Context, id string, n Note) error {
	if t.readOnly {
		return ErrReadOnly
	}
	i := t.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	n = n.Clone()
	n.ID = id
	n.CreatedAt = t.notes[i].CreatedAt
	t.notes[i] = n
	return nil
}

func (t *memTx) Delete(ctx context.Context, id string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	i := t.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t.notes = append(t.notes[:i:i], t.notes[i+1:]...)
	return nil
}
