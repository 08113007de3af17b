package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kuitang/linknotes/internal/errs"
	"github.com/kuitang/linknotes/internal/obs"
)

const (
	// MaxContentBytes is the largest accepted note content (1MB), matching the store's CHECK constraint
	MaxContentBytes = 1 << 20

	// MaxTitleBytes bounds titles; every title is matched against every note's content
	MaxTitleBytes = 512
)

var (
	// noteMutations counts service mutations by operation and result
	noteMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linknotes_note_mutations_total",
		Help: "Note mutations by operation and result",
	}, []string{"operation", "result"})
)

// Service is the only entry point callers use to read and mutate notes.
// Every mutation runs the store write and the backlink recompute as one unit.
type Service struct {
	store      Store
	maintainer *Maintainer
}

// NewService creates a new notes service over store
func NewService(store Store) *Service {
	return &Service{store: store, maintainer: NewMaintainer()}
}

// ValidateTitle rejects titles that are empty after trimming whitespace or
// longer than MaxTitleBytes. The title is stored exactly as given.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errs.Wrap(errs.InvalidArgument, "title is required", ErrTitleRequired)
	}
	if len(title) > MaxTitleBytes {
		return errs.Newf(errs.InvalidArgument, "title exceeds %d bytes", MaxTitleBytes)
	}
	return nil
}

func validateContent(content string) error {
	if len(content) > MaxContentBytes {
		return errs.Newf(errs.InvalidArgument, "content exceeds %d bytes", MaxContentBytes)
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errs.New(errs.InvalidArgument, "note ID is required")
	}
	return nil
}

// storeError maps a store failure onto the application error codes.
func storeError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return errs.Wrap(errs.NotFound, fmt.Sprintf("note not found: %s", id), err)
	}
	if errs.CodeOf(err) != errs.Internal {
		return err
	}
	return errs.Wrap(errs.Unavailable, fmt.Sprintf("failed to %s: note store unavailable", op), err)
}

func observeMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = string(errs.CodeOf(err))
	}
	noteMutations.WithLabelValues(op, result).Inc()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Create creates a new note and links it into the graph
func (s *Service) Create(ctx context.Context, params CreateNoteParams) (_ *Note, err error) {
	defer func() { observeMutation("create", err) }()

	if err := ValidateTitle(params.Title); err != nil {
		return nil, err
	}
	if err := validateContent(params.Content); err != nil {
		return nil, err
	}

	var created Note
	err = s.store.Update(ctx, func(tx Tx) error {
		ts := now()
		note := Note{
			Title:     params.Title,
			Content:   params.Content,
			Backlinks: TitleSet{},
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		id, err := tx.Insert(ctx, note)
		if err != nil {
			return err
		}
		note.ID = id
		if err := s.maintainer.OnCreated(ctx, tx, note); err != nil {
			return err
		}
		created, err = tx.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, storeError("create note", "", err)
	}

	obs.From(ctx).With("pkg", "notes").Info("note_created",
		"note_id", created.ID,
		"backlinks", created.Backlinks.Len(),
	)
	return &created, nil
}

// Get retrieves a note by ID together with its current backlinks
func (s *Service) Get(ctx context.Context, id string) (*Note, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	var note Note
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		note, err = tx.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, storeError("read note", id, err)
	}
	return &note, nil
}

// Update replaces a note's title and/or content and recomputes every
// backlink set the change can affect
func (s *Service) Update(ctx context.Context, id string, params UpdateNoteParams) (_ *Note, err error) {
	defer func() { observeMutation("update", err) }()

	if err := validateID(id); err != nil {
		return nil, err
	}
	if params.Title != nil {
		if err := ValidateTitle(*params.Title); err != nil {
			return nil, err
		}
	}
	if params.Content != nil {
		if err := validateContent(*params.Content); err != nil {
			return nil, err
		}
	}

	var (
		updated Note
		renamed bool
	)
	err = s.store.Update(ctx, func(tx Tx) error {
		old, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}

		next := old.Clone()
		if params.Title != nil {
			next.Title = *params.Title
		}
		if params.Content != nil {
			next.Content = *params.Content
		}
		next.UpdatedAt = now()
		renamed = next.Title != old.Title

		if err := tx.Update(ctx, id, next); err != nil {
			return err
		}
		if err := s.maintainer.OnUpdated(ctx, tx, old, next); err != nil {
			return err
		}
		updated, err = tx.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, storeError("update note", id, err)
	}

	obs.From(ctx).With("pkg", "notes").Info("note_updated",
		"note_id", id,
		"renamed", renamed,
		"backlinks", updated.Backlinks.Len(),
	)
	return &updated, nil
}

// Delete removes a note and purges its title from the other notes' backlinks
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	defer func() { observeMutation("delete", err) }()

	if err := validateID(id); err != nil {
		return err
	}

	err = s.store.Update(ctx, func(tx Tx) error {
		old, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return s.maintainer.OnDeleted(ctx, tx, old)
	})
	if err != nil {
		return storeError("delete note", id, err)
	}

	obs.From(ctx).With("pkg", "notes").Info("note_deleted", "note_id", id)
	return nil
}

// List returns every note in creation order
func (s *Service) List(ctx context.Context) (*NoteListResult, error) {
	var all []Note
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		all, err = tx.GetAll(ctx)
		return err
	})
	if err != nil {
		return nil, storeError("list notes", "", err)
	}
	if all == nil {
		all = []Note{}
	}
	return &NoteListResult{Notes: all, TotalCount: len(all)}, nil
}

// Search returns notes whose title or content contains query, ignoring case.
// An empty query matches every note. Results are unranked, in creation order.
func (s *Service) Search(ctx context.Context, query string) (*NoteListResult, error) {
	if strings.TrimSpace(query) == "" {
		return s.List(ctx)
	}

	if searcher, ok := s.store.(Searcher); ok {
		found, err := searcher.SearchNotes(ctx, query)
		if err != nil {
			return nil, storeError("search notes", "", err)
		}
		if found == nil {
			found = []Note{}
		}
		return &NoteListResult{Notes: found, TotalCount: len(found)}, nil
	}

	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	found := make([]Note, 0, len(all.Notes))
	for _, n := range all.Notes {
		if MatchesQuery(n, query) {
			found = append(found, n)
		}
	}
	return &NoteListResult{Notes: found, TotalCount: len(found)}, nil
}

// Backlinks returns the notes whose content references the note's title,
// resolving each backlink title to the notes that actually hold it.
func (s *Service) Backlinks(ctx context.Context, id string) ([]Note, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	var sources []Note
	err := s.store.View(ctx, func(tx Tx) error {
		target, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		all, err := tx.GetAll(ctx)
		if err != nil {
			return err
		}
		for _, src := range all {
			if src.Title != target.Title && Mentions(src.Content, target.Title) {
				sources = append(sources, src)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError("read backlinks", id, err)
	}
	if sources == nil {
		sources = []Note{}
	}
	return sources, nil
}

// Rebuild recomputes every backlink set from the current titles and content
func (s *Service) Rebuild(ctx context.Context) (_ RebuildResult, err error) {
	defer func() { observeMutation("rebuild", err) }()

	var result RebuildResult
	err = s.store.Update(ctx, func(tx Tx) error {
		var err error
		result, err = s.maintainer.Rebuild(ctx, tx)
		return err
	})
	if err != nil {
		return RebuildResult{}, storeError("rebuild backlinks", "", err)
	}

	obs.From(ctx).With("pkg", "notes").Info("backlinks_rebuilt",
		"notes_scanned", result.NotesScanned,
		"notes_rewritten", result.NotesRewritten,
	)
	return result, nil
}
