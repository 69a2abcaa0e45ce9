package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ideaspark/ideaspark/internal/idea"
	"github.com/ideaspark/ideaspark/pkg/provider/llm"
)

// extractionPrompt is the system prompt for idea extraction. The metadata
// domains and the blueprint section structure are contractual: downstream
// rendering and validation depend on them.
const extractionPrompt = `You are an AI system architect for an app-idea vault.
Given a voice transcript describing an app idea, generate a complete,
high-level professional application profile.

METADATA RULES:
- category: must be one of "Work", "Leisure", "Side Project", "Other".
- importance: integer from 1 (lowest) to 5 (highest).
- platform: must be one of "Desktop", "Mobile", "Tablet", "TV".
- targetAudience: short free text.
- tags: 3-6 short searchable labels.

BLUEPRINT RULES (devPrompt field):
- Format: MARKDOWN only. Professional, systematic, technical register.
- Structure, in order:
  1. ## SYSTEM ARCHITECTURE — bulleted component list
  2. --- (horizontal rule)
  3. ## CORE FUNCTIONALITY — numbered or bulleted feature list
  4. ---
  5. ## DATABASE SCHEMA — markdown table or code block
  6. ## ROADMAP — step-by-step list
- Language: English. Length: detailed, approx 450-600 words.

Return ONLY a single JSON object with the keys:
title, description, category, importance, targetAudience, platform, tags, devPrompt.`

// mutationPrompt is the system prompt for voice-driven record mutation.
const mutationPrompt = `You are an AI system architect for an app-idea vault.
You receive the current JSON object of one idea record and a user's spoken
instruction. Apply the instruction and return the COMPLETE updated JSON
object for this record.

RULES:
- Map spoken requests (e.g. "change importance to 5", "rename it to ...",
  "rewrite the blueprint") to the correct fields.
- status must be one of "Idea", "Development", "Testing", "Published";
  category one of "Work", "Leisure", "Side Project", "Other";
  platform one of "Desktop", "Mobile", "Tablet", "TV";
  importance an integer from 1 to 5.
- When updating the blueprint (devPrompt), use strict markdown
  (## headings, --- separators, lists).
- NEVER change or drop "id", "userId", "createdAt", or "imageUrl" unless
  the instruction explicitly asks to change the image.

Return ONLY valid JSON matching the record structure.`

// Compile-time interface check.
var _ Analyst = (*LLMAnalyst)(nil)

// LLMAnalyst implements [Analyst] on top of an [llm.Provider].
type LLMAnalyst struct {
	llm       llm.Provider
	corrector Corrector
}

// Corrector repairs misrecognized domain vocabulary in a spoken instruction
// before it reaches the mutation service. See internal/transcript.
type Corrector interface {
	Correct(text string) string
}

// Option is a functional option for [NewLLMAnalyst].
type Option func(*LLMAnalyst)

// WithCorrector routes mutation instructions through c before they are sent
// to the model. Extraction transcripts are never corrected: free prose is
// exactly what the extraction prompt wants.
func WithCorrector(c Corrector) Option {
	return func(a *LLMAnalyst) { a.corrector = c }
}

// NewLLMAnalyst creates an [LLMAnalyst] backed by the given provider.
func NewLLMAnalyst(provider llm.Provider, opts ...Option) *LLMAnalyst {
	a := &LLMAnalyst{llm: provider}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AnalyzeIdea implements [Analyst].
func (a *LLMAnalyst) AnalyzeIdea(ctx context.Context, transcript string) (idea.Analysis, error) {
	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: extractionPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf("App idea voice transcript: %q", transcript)},
		},
		Temperature: 0.4,
		ForceJSON:   true,
	})
	if err != nil {
		return idea.Analysis{}, fmt.Errorf("analysis: analyze idea: %w", err)
	}

	var result idea.Analysis
	if err := decodeStrict(resp.Content, &result); err != nil {
		return idea.Analysis{}, fmt.Errorf("analysis: analyze idea: %w: %w", ErrUninterpretable, err)
	}
	if err := idea.ValidateAnalysis(result); err != nil {
		return idea.Analysis{}, fmt.Errorf("analysis: analyze idea: %w: %w", ErrUninterpretable, err)
	}
	return result, nil
}

// ProposeUpdate implements [Analyst].
func (a *LLMAnalyst) ProposeUpdate(ctx context.Context, current idea.Idea, instruction string) (idea.Idea, error) {
	if a.corrector != nil {
		instruction = a.corrector.Correct(instruction)
	}

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return idea.Idea{}, fmt.Errorf("analysis: propose update: marshal current record: %w", err)
	}

	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: mutationPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf("CURRENT RECORD:\n%s\n\nSPOKEN INSTRUCTION:\n%q", currentJSON, instruction)},
		},
		Temperature: 0.2,
		ForceJSON:   true,
	})
	if err != nil {
		return idea.Idea{}, fmt.Errorf("analysis: propose update: %w", err)
	}

	var updated idea.Idea
	if err := decodeStrict(resp.Content, &updated); err != nil {
		return idea.Idea{}, fmt.Errorf("analysis: propose update: %w: %w", ErrUninterpretable, err)
	}

	// Caller precedence: identity fields always come from the current
	// record. The image reference is the one field where the model's value
	// wins when present, else the prior value is preserved.
	updated.ID = current.ID
	updated.OwnerID = current.OwnerID
	updated.CreatedAt = current.CreatedAt
	if updated.ImageURL == "" {
		updated.ImageURL = current.ImageURL
	}
	if !updated.Status.IsValid() {
		return idea.Idea{}, fmt.Errorf("analysis: propose update: %w: status %q", ErrUninterpretable, updated.Status)
	}
	return updated, nil
}

// decodeStrict parses a model response into v. Models occasionally wrap the
// object in a markdown code fence even when asked not to; the fence is
// stripped before decoding. Anything else non-JSON fails decoding.
func decodeStrict(content string, v any) error {
	text := strings.TrimSpace(content)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
