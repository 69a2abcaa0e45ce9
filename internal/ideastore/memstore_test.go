package ideastore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ideaspark/ideaspark/internal/idea"
	embedmock "github.com/ideaspark/ideaspark/pkg/provider/embeddings/mock"
)

func TestMemStore_CreateAssignsID(t *testing.T) {
	t.Parallel()
	s := NewMemStore(nil)

	created, err := s.Create(context.Background(), idea.Idea{ID: "ignored", OwnerID: "alice", Title: "A"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.ID == "ignored" {
		t.Errorf("ID = %q, want a store-assigned identifier", created.ID)
	}

	got, err := s.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "A" || got.OwnerID != "alice" {
		t.Errorf("Get = %+v", got)
	}
}

func TestMemStore_GetMissing(t *testing.T) {
	t.Parallel()
	s := NewMemStore(nil)

	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_ListByOwnerOrdering(t *testing.T) {
	t.Parallel()
	s := NewMemStore(nil)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	older, _ := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "older", CreatedAt: base})
	newer, _ := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "newer", CreatedAt: base.Add(time.Hour)})
	undated, _ := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "undated"})
	if _, err := s.Create(ctx, idea.Idea{OwnerID: "bob", Title: "other vault", CreatedAt: base}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want alice's 3 records", len(got))
	}
	// Newest first; records without a timestamp sort last.
	if got[0].ID != newer.ID || got[1].ID != older.ID || got[2].ID != undated.ID {
		t.Errorf("order = %q, %q, %q", got[0].Title, got[1].Title, got[2].Title)
	}
}

func TestMemStore_Update(t *testing.T) {
	t.Parallel()
	s := NewMemStore(nil)
	ctx := context.Background()

	rec, _ := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "Draft", Status: idea.StatusIdea})

	err := s.Update(ctx, rec.ID, Patch{
		"title":      "Final",
		"status":     "Development",
		"importance": 4,
		"tags":       []string{"one", "two"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(ctx, rec.ID)
	if got.Title != "Final" || got.Status != idea.StatusDevelopment || got.Importance != 4 {
		t.Errorf("updated = %+v", got)
	}
	if len(got.Tags) != 2 {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestMemStore_UpdateJSONDecodedPatch(t *testing.T) {
	t.Parallel()
	s := NewMemStore(nil)
	ctx := context.Background()

	rec, _ := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "Draft"})

	// A patch decoded from a JSON body carries float64 numbers and []any
	// slices; the store must absorb them.
	err := s.Update(ctx, rec.ID, Patch{
		"importance": float64(5),
		"tags":       []any{"voice", "notes"},
		"createdAt":  "2026-05-01T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(ctx, rec.ID)
	if got.Importance != 5 {
		t.Errorf("importance = %d, want 5", got.Importance)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "voice" {
		t.Errorf("tags = %v", got.Tags)
	}
	if got.CreatedAt.IsZero() {
		t.Error("createdAt string was not parsed")
	}
}

func TestMemStore_UpdateRejectsBadPatch(t *testing.T) {
	t.Parallel()
	s := NewMemStore(nil)
	ctx := context.Background()

	rec, _ := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "Draft"})

	if err := s.Update(ctx, rec.ID, Patch{"id": "other"}); err == nil {
		t.Error("patch with the identifier field must be rejected")
	}
	if err := s.Update(ctx, rec.ID, Patch{"color": "red"}); err == nil {
		t.Error("patch with an unknown field must be rejected")
	}
	if err := s.Update(ctx, "missing", Patch{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_Delete(t *testing.T) {
	t.Parallel()
	s := NewMemStore(nil)
	ctx := context.Background()

	rec, _ := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "Done"})

	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_WatchDeliversSnapshots(t *testing.T) {
	t.Parallel()
	s := NewMemStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx, "alice")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// Initial snapshot arrives immediately, even when empty.
	select {
	case snap := <-ch:
		if len(snap) != 0 {
			t.Fatalf("initial snapshot = %+v, want empty", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	rec, _ := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "Live"})

	select {
	case snap := <-ch:
		if len(snap) != 1 || snap[0].ID != rec.ID {
			t.Fatalf("snapshot after create = %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after create")
	}

	// Changes to another owner's collection are not delivered.
	if _, err := s.Create(ctx, idea.Idea{OwnerID: "bob", Title: "Other"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot for another owner's change: %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// A final buffered snapshot may still drain; the channel must
			// close right after.
			if _, ok := <-ch; ok {
				t.Fatal("channel not closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestMemStore_WatchCoalescesBursts(t *testing.T) {
	t.Parallel()
	s := NewMemStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx, "alice")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	<-ch // initial snapshot

	// Burst of writes while the consumer is idle: the subscriber sees the
	// latest snapshot, not every intermediate one.
	for i := 0; i < 5; i++ {
		if _, err := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "burst"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	deadline := time.After(time.Second)
	for {
		select {
		case snap := <-ch:
			if len(snap) == 5 {
				return
			}
		case <-deadline:
			t.Fatal("never observed the final snapshot")
		}
	}
}

func TestMemStore_SearchSemantic(t *testing.T) {
	t.Parallel()
	embed := &embedmock.Provider{
		EmbedFunc: func(text string) []float32 {
			// Orthogonal vectors per topic so ranking is deterministic.
			switch {
			case strings.Contains(text, "cook"):
				return []float32{1, 0, 0}
			case strings.Contains(text, "hike"):
				return []float32{0, 1, 0}
			default:
				return []float32{0, 0, 1}
			}
		},
	}
	s := NewMemStore(embed)
	ctx := context.Background()

	cooking, _ := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "cooking planner", Description: "cook meals"})
	if _, err := s.Create(ctx, idea.Idea{OwnerID: "alice", Title: "hiking log", Description: "hike trails"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Create(ctx, idea.Idea{OwnerID: "bob", Title: "cooking vault", Description: "cook"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	results, err := s.SearchSemantic(ctx, "alice", "how to cook dinner", 10)
	if err != nil {
		t.Fatalf("SearchSemantic: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want alice's 2", len(results))
	}
	if results[0].Idea.ID != cooking.ID {
		t.Errorf("best match = %q, want the cooking record", results[0].Idea.Title)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v vs %v", results[0].Score, results[1].Score)
	}
}

func TestMemStore_SearchSemanticDisabled(t *testing.T) {
	t.Parallel()
	s := NewMemStore(nil)

	if _, err := s.SearchSemantic(context.Background(), "alice", "q", 10); err == nil {
		t.Fatal("search without an embeddings provider must fail")
	}
}
