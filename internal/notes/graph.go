package notes

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kuitang/linknotes/internal/logutil"
	"github.com/kuitang/linknotes/internal/obs"
)

var (
	// backlinkRewrites tracks how many notes had their backlink set rewritten per mutation
	backlinkRewrites = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linknotes_backlink_rewrites",
		Help:    "Notes whose backlink set was rewritten per graph event",
		Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 1000},
	}, []string{"event"})
)

// BacklinksFor computes the backlink set of a note titled target over all.
// A source never contributes to a target that shares its title, so a note
// can never list its own title.
func BacklinksFor(target string, all []Note) TitleSet {
	out := make(TitleSet)
	for _, src := range all {
		if src.Title == target {
			continue
		}
		if Mentions(src.Content, target) {
			out.Add(src.Title)
		}
	}
	return out
}

// Maintainer keeps every note's backlink set consistent with the content of
// the other notes. All methods run inside the caller's store transaction and
// expect the triggering write to have been applied to tx already.
type Maintainer struct{}

// NewMaintainer returns a link graph maintainer.
func NewMaintainer() *Maintainer {
	return &Maintainer{}
}

// OnCreated updates the graph after note was inserted.
// The new note's own backlinks come from every existing note mentioning its
// title; every note holding a title the new content references gains it.
func (m *Maintainer) OnCreated(ctx context.Context, tx Tx, note Note) error {
	all, err := tx.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load notes: %w", err)
	}
	targets := NewScannerForNotes(all).Scan(note.Content, note.Title)
	targets.Add(note.Title)
	return m.recompute(ctx, tx, "create", all, targets)
}

// OnUpdated updates the graph after old was replaced by updated.
//
// Content side: targets referenced before but not after lose the source,
// targets referenced after gain it under the current title. Title side:
// the renamed note's backlinks are rescanned against its new title and never
// carried over from the old one.
func (m *Maintainer) OnUpdated(ctx context.Context, tx Tx, old, updated Note) error {
	all, err := tx.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load notes: %w", err)
	}
	// Both scans resolve against the post-write universe: a target only
	// needs rewriting if some note still holds its title.
	scanner := NewScannerForNotes(all)
	targets := scanner.Scan(old.Content, old.Title).Union(scanner.Scan(updated.Content, updated.Title))
	targets.Add(updated.Title)
	return m.recompute(ctx, tx, "update", all, targets)
}

// OnDeleted updates the graph after note was removed.
// Every target the deleted note referenced is recomputed; a title shared
// with a surviving note that still references the target stays listed.
func (m *Maintainer) OnDeleted(ctx context.Context, tx Tx, note Note) error {
	all, err := tx.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load notes: %w", err)
	}
	targets := NewScannerForNotes(all).Scan(note.Content, note.Title)
	return m.recompute(ctx, tx, "delete", all, targets)
}

// Rebuild recomputes every backlink set from scratch.
func (m *Maintainer) Rebuild(ctx context.Context, tx Tx) (RebuildResult, error) {
	all, err := tx.GetAll(ctx)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("failed to load notes: %w", err)
	}
	targets := make(TitleSet, len(all))
	for _, n := range all {
		targets.Add(n.Title)
	}
	rewritten, err := m.rewrite(ctx, tx, all, targets)
	if err != nil {
		return RebuildResult{}, err
	}
	backlinkRewrites.WithLabelValues("rebuild").Observe(float64(rewritten))
	return RebuildResult{NotesScanned: len(all), NotesRewritten: rewritten}, nil
}

func (m *Maintainer) recompute(ctx context.Context, tx Tx, event string, all []Note, targets TitleSet) error {
	rewritten, err := m.rewrite(ctx, tx, all, targets)
	if err != nil {
		return err
	}
	backlinkRewrites.WithLabelValues(event).Observe(float64(rewritten))
	obs.From(ctx).With("pkg", "notes").Debug(
		"backlinks_recomputed",
		"event", event,
		"targets", logutil.TruncateForLog(fmt.Sprint(targets.Sorted()), 200),
		"rewritten", rewritten,
	)
	return nil
}

// rewrite recomputes the backlinks of every note whose title is in targets
// and writes back only the sets that changed.
func (m *Maintainer) rewrite(ctx context.Context, tx Tx, all []Note, targets TitleSet) (int, error) {
	cache := make(map[string]TitleSet, len(targets))
	rewritten := 0
	for _, n := range all {
		if !targets.Has(n.Title) {
			continue
		}
		want, ok := cache[n.Title]
		if !ok {
			want = BacklinksFor(n.Title, all)
			cache[n.Title] = want
		}
		if want.Equal(n.Backlinks) {
			continue
		}
		n.Backlinks = want.Clone()
		if err := tx.Update(ctx, n.ID, n); err != nil {
			return rewritten, fmt.Errorf("failed to write backlinks for %s: %w", n.ID, err)
		}
		rewritten++
	}
	return rewritten, nil
}
