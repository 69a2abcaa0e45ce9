package orchestrator

import (
	"sync"

	"github.com/ideaspark/ideaspark/internal/idea"
)

// Snapshot is the in-memory record set kept current by the store
// subscription. It is the single shared resource between the orchestrator
// and the rendering layer: the subscription replaces it wholesale on every
// change event, the orchestrator only reads it.
type Snapshot struct {
	mu   sync.RWMutex
	byID map[string]idea.Idea
}

// NewSnapshot returns an empty Snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{byID: make(map[string]idea.Idea)}
}

// Replace swaps the full record set for recs.
func (s *Snapshot) Replace(recs []idea.Idea) {
	next := make(map[string]idea.Idea, len(recs))
	for _, r := range recs {
		next[r.ID] = r
	}
	s.mu.Lock()
	s.byID = next
	s.mu.Unlock()
}

// Lookup implements [RecordSet].
func (s *Snapshot) Lookup(id string) (idea.Idea, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	return rec, ok
}

// Len returns the number of records currently held.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ RecordSet = (*Snapshot)(nil)
