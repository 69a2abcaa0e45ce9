package ideastore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ideaspark/ideaspark/internal/idea"
	"github.com/ideaspark/ideaspark/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store], suitable
// for tests and local development without a database. Watch subscriptions
// are fanned out in-process.
type MemStore struct {
	mu       sync.RWMutex
	ideas    map[string]idea.Idea
	vectors  map[string][]float32
	watchers map[int]*memWatcher
	nextID   int

	embed embeddings.Provider // nil disables semantic search

	// NowFunc supplies creation order tie-breaking for tests. Unused for
	// record timestamps, which callers set explicitly.
	NowFunc func() time.Time
}

type memWatcher struct {
	ownerID string
	ch      chan []idea.Idea
}

// NewMemStore returns an initialised [MemStore]. embed may be nil, which
// disables [MemStore.SearchSemantic].
func NewMemStore(embed embeddings.Provider) *MemStore {
	return &MemStore{
		ideas:    make(map[string]idea.Idea),
		vectors:  make(map[string][]float32),
		watchers: make(map[int]*memWatcher),
		embed:    embed,
	}
}

// Create implements [Store].
func (s *MemStore) Create(ctx context.Context, rec idea.Idea) (idea.Idea, error) {
	rec.ID = uuid.NewString()

	s.mu.Lock()
	s.ideas[rec.ID] = rec
	s.mu.Unlock()

	if s.embed != nil {
		if vec, err := s.embed.Embed(ctx, embeddingText(rec)); err == nil {
			s.mu.Lock()
			s.vectors[rec.ID] = vec
			s.mu.Unlock()
		}
	}

	s.notify(rec.OwnerID)
	return rec, nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, id string) (idea.Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.ideas[id]
	if !ok {
		return idea.Idea{}, ErrNotFound
	}
	return rec, nil
}

// ListByOwner implements [Store].
func (s *MemStore) ListByOwner(_ context.Context, ownerID string) ([]idea.Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(ownerID), nil
}

// snapshotLocked collects and orders one owner's records.
// Must be called with s.mu held (read or write).
func (s *MemStore) snapshotLocked(ownerID string) []idea.Idea {
	out := make([]idea.Idea, 0, len(s.ideas))
	for _, rec := range s.ideas {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		// Missing timestamps sort last; otherwise newest first.
		switch {
		case a.CreatedAt.IsZero() && b.CreatedAt.IsZero():
			return a.ID < b.ID
		case a.CreatedAt.IsZero():
			return false
		case b.CreatedAt.IsZero():
			return true
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// Update implements [Store].
func (s *MemStore) Update(ctx context.Context, id string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("ideastore: update: %w", err)
	}

	s.mu.Lock()
	rec, ok := s.ideas[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}

	embedStale := false
	for field, value := range patch {
		switch field {
		case "userId":
			rec.OwnerID = toString(value)
		case "title":
			rec.Title = toString(value)
			embedStale = true
		case "description":
			rec.Description = toString(value)
			embedStale = true
		case "status":
			rec.Status = toStatus(value)
		case "category":
			rec.Category = toCategory(value)
		case "importance":
			rec.Importance = toInt(value)
		case "targetAudience":
			rec.TargetAudience = toString(value)
		case "platform":
			rec.Platform = toPlatform(value)
		case "appUrl":
			rec.AppURL = toString(value)
		case "devPrompt":
			rec.Blueprint = toString(value)
		case "createdAt":
			rec.CreatedAt = toTime(value)
		case "tags":
			rec.Tags = toStringSlice(value)
			embedStale = true
		case "imageUrl":
			rec.ImageURL = toString(value)
		}
	}
	s.ideas[id] = rec
	owner := rec.OwnerID
	s.mu.Unlock()

	if embedStale && s.embed != nil {
		if vec, err := s.embed.Embed(ctx, embeddingText(rec)); err == nil {
			s.mu.Lock()
			s.vectors[id] = vec
			s.mu.Unlock()
		}
	}

	s.notify(owner)
	return nil
}

// Delete implements [Store].
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	rec, ok := s.ideas[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.ideas, id)
	delete(s.vectors, id)
	owner := rec.OwnerID
	s.mu.Unlock()

	s.notify(owner)
	return nil
}

// Watch implements [Store].
func (s *MemStore) Watch(ctx context.Context, ownerID string) (<-chan []idea.Idea, error) {
	w := &memWatcher{ownerID: ownerID, ch: make(chan []idea.Idea, 1)}

	s.mu.Lock()
	key := s.nextID
	s.nextID++
	s.watchers[key] = w
	w.ch <- s.snapshotLocked(ownerID)
	s.mu.Unlock()

	out := make(chan []idea.Idea, 1)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers, key)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-w.ch:
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// notify pushes fresh snapshots to all watchers of ownerID, replacing any
// snapshot they have not consumed yet.
func (s *MemStore) notify(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.watchers {
		if w.ownerID != ownerID {
			continue
		}
		snap := s.snapshotLocked(ownerID)
		select {
		case <-w.ch:
		default:
		}
		w.ch <- snap
	}
}

// SearchSemantic implements [Store].
func (s *MemStore) SearchSemantic(ctx context.Context, ownerID, query string, limit int) ([]SearchResult, error) {
	if s.embed == nil {
		return nil, fmt.Errorf("ideastore: semantic search disabled: no embeddings provider")
	}
	if limit <= 0 {
		limit = 10
	}

	qvec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ideastore: search: embed query: %w", err)
	}

	s.mu.RLock()
	results := make([]SearchResult, 0, limit)
	for id, rec := range s.ideas {
		if rec.OwnerID != ownerID {
			continue
		}
		vec, ok := s.vectors[id]
		if !ok {
			continue
		}
		results = append(results, SearchResult{Idea: rec, Score: cosine(qvec, vec)})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosine computes cosine similarity between two equal-length vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// The to* helpers absorb the type looseness of Patch values: patches built
// in Go carry native types, patches decoded from JSON carry float64 numbers,
// []any slices, and RFC 3339 timestamp strings.

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	}
	return 0
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toStatus(v any) idea.Status {
	switch t := v.(type) {
	case idea.Status:
		return t
	case string:
		return idea.Status(t)
	}
	return ""
}

func toCategory(v any) idea.Category {
	switch t := v.(type) {
	case idea.Category:
		return t
	case string:
		return idea.Category(t)
	}
	return ""
}

func toPlatform(v any) idea.Platform {
	switch t := v.(type) {
	case idea.Platform:
		return t
	case string:
		return idea.Platform(t)
	}
	return ""
}
