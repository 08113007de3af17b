package notes

import (
	"context"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// backlinksOf reads a note and returns its sorted backlink titles
func backlinksOf(t testing.TB, svc *Service, id string) []string {
	t.Helper()
	n, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return n.Backlinks.Sorted()
}

func assertBacklinks(t testing.TB, svc *Service, id string, want ...string) {
	t.Helper()
	got := backlinksOf(t, svc, id)
	if strings.Join(got, "|") != strings.Join(NewTitleSet(want...).Sorted(), "|") {
		t.Fatalf("note %s: expected backlinks %v, got %v", id, want, got)
	}
}

func mustCreate(t testing.TB, svc *Service, title, content string) *Note {
	t.Helper()
	n, err := svc.Create(context.Background(), CreateNoteParams{Title: title, Content: content})
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", title, err)
	}
	return n
}

func mustUpdate(t testing.TB, svc *Service, id string, params UpdateNoteParams) *Note {
	t.Helper()
	n, err := svc.Update(context.Background(), id, params)
	if err != nil {
		t.Fatalf("Update(%s) failed: %v", id, err)
	}
	return n
}

func ptr(s string) *string { return &s }

// =============================================================================
// Scenarios
// =============================================================================

func TestGraph_CreateRenameEditDelete(t *testing.T) {
	t.Parallel()
	svc := setupNotesService(t)
	ctx := context.Background()

	alpha := mustCreate(t, svc, "Alpha", "hello")
	beta := mustCreate(t, svc, "Beta", "see Alpha for details")
	assertBacklinks(t, svc, alpha.ID, "Beta")
	assertBacklinks(t, svc, beta.ID)

	// Rename: Beta still says "Alpha", which no longer names anything
	mustUpdate(t, svc, alpha.ID, UpdateNoteParams{Title: ptr("Gamma")})
	assertBacklinks(t, svc, alpha.ID)
	assertBacklinks(t, svc, beta.ID)

	// Editing the source restores the link under the new title
	mustUpdate(t, svc, beta.ID, UpdateNoteParams{Content: ptr("see Gamma")})
	assertBacklinks(t, svc, alpha.ID, "Beta")

	if err := svc.Delete(ctx, beta.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	assertBacklinks(t, svc, alpha.ID)
}

func TestGraph_DuplicateTitlesFanOut(t *testing.T) {
	t.Parallel()
	svc := setupNotesService(t)

	dup1 := mustCreate(t, svc, "Dup", "first")
	dup2 := mustCreate(t, svc, "Dup", "second")
	third := mustCreate(t, svc, "Third", "mentions Dup here")

	assertBacklinks(t, svc, dup1.ID, "Third")
	assertBacklinks(t, svc, dup2.ID, "Third")
	assertBacklinks(t, svc, third.ID)
}

func TestGraph_SelfMentionIsNotABacklink(t *testing.T) {
	t.Parallel()
	svc := setupNotesService(t)

	n := mustCreate(t, svc, "Loop", "Loop refers to Loop")
	assertBacklinks(t, svc, n.ID)

	// A same-titled source never contributes to its namesake either
	other := mustCreate(t, svc, "Loop", "also Loop")
	assertBacklinks(t, svc, n.ID)
	assertBacklinks(t, svc, other.ID)
}

func TestGraph_CreatePicksUpExistingReferences(t *testing.T) {
	t.Parallel()
	svc := setupNotesService(t)

	src := mustCreate(t, svc, "Source", "waiting for Later")
	later := mustCreate(t, svc, "Later", "")
	assertBacklinks(t, svc, later.ID, "Source")
	assertBacklinks(t, svc, src.ID)
}

func TestGraph_RenameSourceUpdatesTargets(t *testing.T) {
	t.Parallel()
	svc := setupNotesService(t)

	target := mustCreate(t, svc, "Target", "")
	src := mustCreate(t, svc, "Old", "see Target")
	assertBacklinks(t, svc, target.ID, "Old")

	mustUpdate(t, svc, src.ID, UpdateNoteParams{Title: ptr("New")})
	assertBacklinks(t, svc, target.ID, "New")
}

func TestGraph_RenameOntoDuplicateTitle(t *testing.T) {
	t.Parallel()
	svc := setupNotesService(t)

	a := mustCreate(t, svc, "A", "refers to B")
	b := mustCreate(t, svc, "B", "")
	assertBacklinks(t, svc, b.ID, "A")

	// Renaming A to B makes it a namesake, so it no longer counts
	mustUpdate(t, svc, a.ID, UpdateNoteParams{Title: ptr("B")})
	assertBacklinks(t, svc, b.ID)
	assertBacklinks(t, svc, a.ID)

	// Renaming away restores the link
	mustUpdate(t, svc, a.ID, UpdateNoteParams{Title: ptr("C")})
	assertBacklinks(t, svc, b.ID, "C")
}

func TestGraph_DeleteWithSurvivingNamesake(t *testing.T) {
	t.Parallel()
	svc := setupNotesService(t)
	ctx := context.Background()

	target := mustCreate(t, svc, "Target", "")
	gone := mustCreate(t, svc, "Src", "see Target")
	mustCreate(t, svc, "Src", "Target too")
	assertBacklinks(t, svc, target.ID, "Src")

	if err := svc.Delete(ctx, gone.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// The surviving "Src" still references Target
	assertBacklinks(t, svc, target.ID, "Src")
}

func TestGraph_DeleteTargetLeavesNoDanglingTitle(t *testing.T) {
	t.Parallel()
	svc := setupNotesService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, "A", "see B")
	b := mustCreate(t, svc, "B", "see A")
	assertBacklinks(t, svc, a.ID, "B")

	if err := svc.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	assertBacklinks(t, svc, a.ID)
}

func TestRebuild_RepairsCorruptedBacklinks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemStore()
	svc := NewService(mem)

	alpha := mustCreate(t, svc, "Alpha", "")
	mustCreate(t, svc, "Beta", "Alpha")

	// Corrupt the stored set behind the service's back
	err := mem.Update(ctx, func(tx Tx) error {
		n, err := tx.GetByID(ctx, alpha.ID)
		if err != nil {
			return err
		}
		n.Backlinks = NewTitleSet("Ghost")
		return tx.Update(ctx, alpha.ID, n)
	})
	if err != nil {
		t.Fatalf("corrupting store failed: %v", err)
	}

	result, err := svc.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if result.NotesScanned != 2 || result.NotesRewritten != 1 {
		t.Fatalf("unexpected rebuild result %+v", result)
	}
	assertBacklinks(t, svc, alpha.ID, "Beta")

	// Idempotent
	again, err := svc.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if again.NotesRewritten != 0 {
		t.Fatalf("second rebuild rewrote %d notes", again.NotesRewritten)
	}
}

// =============================================================================
// Property: incremental maintenance matches a from-scratch recompute
// =============================================================================

var graphTitles = []string{"Go", "Golang", "Rust", "Dup", "Alpha", "Beta"}

func graphTitleGenerator() *rapid.Generator[string] {
	return rapid.SampledFrom(graphTitles)
}

// graphContentGenerator builds content from titles, lowercase decoys and filler
func graphContentGenerator() *rapid.Generator[string] {
	word := rapid.OneOf(
		graphTitleGenerator(),
		rapid.SampledFrom([]string{"go", "alpha", "see", "and", "x"}),
	)
	return rapid.Custom(func(t *rapid.T) string {
		return strings.Join(rapid.SliceOfN(word, 0, 4).Draw(t, "words"), " ")
	})
}

// checkGraph asserts every stored backlink set equals the from-scratch answer
func checkGraph(t *rapid.T, svc *Service) {
	list, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, n := range list.Notes {
		want := BacklinksFor(n.Title, list.Notes)
		if !n.Backlinks.Equal(want) {
			t.Fatalf("note %q (%s): backlinks %v, want %v", n.Title, n.ID, n.Backlinks.Sorted(), want.Sorted())
		}
		if n.Backlinks.Has(n.Title) {
			t.Fatalf("note %q lists itself", n.Title)
		}
	}
}

func testGraph_IncrementalMatchesRebuild_Properties(t *rapid.T) {
	svc := setupNotesServiceRapid(t)
	ctx := context.Background()
	var ids []string

	t.Repeat(map[string]func(*rapid.T){
		"create": func(t *rapid.T) {
			n, err := svc.Create(ctx, CreateNoteParams{
				Title:   graphTitleGenerator().Draw(t, "title"),
				Content: graphContentGenerator().Draw(t, "content"),
			})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			ids = append(ids, n.ID)
		},
		"rename": func(t *rapid.T) {
			if len(ids) == 0 {
				t.Skip("no notes")
			}
			id := rapid.SampledFrom(ids).Draw(t, "id")
			title := graphTitleGenerator().Draw(t, "title")
			if _, err := svc.Update(ctx, id, UpdateNoteParams{Title: &title}); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
		},
		"edit": func(t *rapid.T) {
			if len(ids) == 0 {
				t.Skip("no notes")
			}
			id := rapid.SampledFrom(ids).Draw(t, "id")
			content := graphContentGenerator().Draw(t, "content")
			if _, err := svc.Update(ctx, id, UpdateNoteParams{Content: &content}); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
		},
		"delete": func(t *rapid.T) {
			if len(ids) == 0 {
				t.Skip("no notes")
			}
			i := rapid.IntRange(0, len(ids)-1).Draw(t, "index")
			if err := svc.Delete(ctx, ids[i]); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			ids = append(ids[:i], ids[i+1:]...)
		},
		"": func(t *rapid.T) {
			checkGraph(t, svc)
		},
	})

	// A full recompute over the settled state finds nothing to fix
	result, err := svc.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if result.NotesRewritten != 0 {
		t.Fatalf("rebuild rewrote %d notes after incremental maintenance", result.NotesRewritten)
	}
}

func TestGraph_IncrementalMatchesRebuild_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testGraph_IncrementalMatchesRebuild_Properties)
}

func FuzzGraph_IncrementalMatchesRebuild_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testGraph_IncrementalMatchesRebuild_Properties))
}

// =============================================================================
// Property: renaming reproduces the graph of a fresh create
// =============================================================================

func testGraph_RenameEqualsFreshCreate_Properties(t *rapid.T) {
	ctx := context.Background()
	others := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) CreateNoteParams {
		return CreateNoteParams{
			Title:   graphTitleGenerator().Draw(t, "title"),
			Content: graphContentGenerator().Draw(t, "content"),
		}
	}), 0, 6).Draw(t, "others")
	oldTitle := graphTitleGenerator().Draw(t, "oldTitle")
	newTitle := graphTitleGenerator().Draw(t, "newTitle")
	content := graphContentGenerator().Draw(t, "content")

	build := func(title string) (*Service, string) {
		svc := NewService(NewMemStore())
		var renamed string
		for i, p := range others {
			if i == len(others)/2 {
				n, err := svc.Create(ctx, CreateNoteParams{Title: title, Content: content})
				if err != nil {
					t.Fatalf("Create failed: %v", err)
				}
				renamed = n.ID
			}
			if _, err := svc.Create(ctx, p); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}
		if renamed == "" {
			n, err := svc.Create(ctx, CreateNoteParams{Title: title, Content: content})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			renamed = n.ID
		}
		return svc, renamed
	}

	viaRename, id := build(oldTitle)
	if _, err := viaRename.Update(ctx, id, UpdateNoteParams{Title: &newTitle}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	fresh, _ := build(newTitle)

	got, err := viaRename.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want, err := fresh.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for i := range want.Notes {
		if got.Notes[i].Title != want.Notes[i].Title {
			t.Fatalf("title mismatch at %d: %q vs %q", i, got.Notes[i].Title, want.Notes[i].Title)
		}
		if !got.Notes[i].Backlinks.Equal(want.Notes[i].Backlinks) {
			t.Fatalf("note %d (%q): rename gave %v, fresh create gave %v",
				i, want.Notes[i].Title, got.Notes[i].Backlinks.Sorted(), want.Notes[i].Backlinks.Sorted())
		}
	}
}

func TestGraph_RenameEqualsFreshCreate_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testGraph_RenameEqualsFreshCreate_Properties)
}

func FuzzGraph_RenameEqualsFreshCreate_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testGraph_RenameEqualsFreshCreate_Properties))
}
