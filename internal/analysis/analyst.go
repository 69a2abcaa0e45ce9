// Package analysis turns raw spoken transcripts into structured idea
// records using an LLM backend.
//
// It provides the two AI services of the voice workflow: idea extraction
// (free-text transcript → [idea.Analysis]) and idea mutation (existing
// record + free-text instruction → full replacement record). Both are
// single-shot completions with strict JSON output contracts; responses
// that fail to parse surface as [ErrUninterpretable] so callers can show
// a distinct "could not interpret response" message.
//
// All exported types are safe for concurrent use.
package analysis

import (
	"context"
	"errors"

	"github.com/ideaspark/ideaspark/internal/idea"
)

// ErrUninterpretable indicates that the model responded, but the response
// could not be parsed into the expected structure. Callers should surface
// it differently from transport failures: the service worked, the answer
// did not.
var ErrUninterpretable = errors.New("could not interpret AI response")

// Analyst is the abstraction over the idea extraction and mutation services.
//
// Implementations must be safe for concurrent use.
type Analyst interface {
	// AnalyzeIdea extracts a complete structured idea profile from a raw
	// voice transcript: metadata (title, description, category, importance,
	// target audience, platform, tags) and a long-form markdown blueprint.
	AnalyzeIdea(ctx context.Context, transcript string) (idea.Analysis, error)

	// ProposeUpdate applies a free-text spoken instruction to an existing
	// record and returns the complete replacement record. Identity fields
	// (ID, OwnerID, CreatedAt) always carry the current record's values
	// regardless of what the model returns; the image reference is taken
	// from the model's response when non-empty and preserved otherwise.
	ProposeUpdate(ctx context.Context, current idea.Idea, instruction string) (idea.Idea, error)
}
