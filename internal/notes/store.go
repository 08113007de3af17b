package notes

import "context"

// Tx is the narrow CRUD view of the note store inside one transaction.
// Implementations return ErrNotFound (possibly wrapped) for unknown ids.
type Tx interface {
	// GetAll returns every note in stable creation order.
	GetAll(ctx context.Context) ([]Note, error)
	GetByID(ctx context.Context, id string) (Note, error)
	// Insert stores n and returns the identifier the store assigned to it.
	// n.ID is ignored.
	Insert(ctx context.Context, n Note) (string, error)
	Update(ctx context.Context, id string, n Note) error
	Delete(ctx context.Context, id string) error
}

// Store runs units of work against durable note storage.
//
// Update runs fn as one exclusive, atomic unit: either every write fn made
// through the Tx is committed or none is, and no other Update interleaves.
// View runs fn against a consistent snapshot; writes through its Tx fail.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Searcher is implemented by stores that can filter notes natively.
// Service.Search falls back to an in-memory scan when the store lacks it.
type Searcher interface {
	// SearchNotes returns notes whose title or content contains query,
	// ignoring case, in creation order.
	SearchNotes(ctx context.Context, query string) ([]Note, error)
}
