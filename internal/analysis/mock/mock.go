// Package mock provides a test double for the analysis.Analyst interface.
package mock

import (
	"context"
	"sync"

	"github.com/ideaspark/ideaspark/internal/analysis"
	"github.com/ideaspark/ideaspark/internal/idea"
)

// AnalyzeCall records a single invocation of AnalyzeIdea.
type AnalyzeCall struct {
	// Transcript is the text passed to AnalyzeIdea.
	Transcript string
}

// ProposeCall records a single invocation of ProposeUpdate.
type ProposeCall struct {
	// Current is the record passed to ProposeUpdate.
	Current idea.Idea
	// Instruction is the text passed to ProposeUpdate.
	Instruction string
}

// Analyst is a mock implementation of analysis.Analyst.
type Analyst struct {
	mu sync.Mutex

	// AnalyzeResult is returned from AnalyzeIdea when AnalyzeErr is nil.
	AnalyzeResult idea.Analysis

	// AnalyzeErr, if non-nil, is returned as the error from AnalyzeIdea.
	AnalyzeErr error

	// ProposeResult is returned from ProposeUpdate when ProposeErr is nil
	// and ProposeFunc is nil.
	ProposeResult idea.Idea

	// ProposeFunc, if non-nil, computes the ProposeUpdate result.
	ProposeFunc func(current idea.Idea, instruction string) (idea.Idea, error)

	// ProposeErr, if non-nil, is returned as the error from ProposeUpdate.
	ProposeErr error

	// Block, if non-nil, is received from before either method returns.
	// Use it to hold a call in flight while asserting concurrent behaviour.
	Block chan struct{}

	// AnalyzeCalls and ProposeCalls record every invocation.
	AnalyzeCalls []AnalyzeCall
	ProposeCalls []ProposeCall
}

// Compile-time interface check.
var _ analysis.Analyst = (*Analyst)(nil)

// AnalyzeIdea implements analysis.Analyst.
func (a *Analyst) AnalyzeIdea(ctx context.Context, transcript string) (idea.Analysis, error) {
	a.mu.Lock()
	a.AnalyzeCalls = append(a.AnalyzeCalls, AnalyzeCall{Transcript: transcript})
	result := a.AnalyzeResult
	err := a.AnalyzeErr
	block := a.Block
	a.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return idea.Analysis{}, ctx.Err()
		}
	}
	if err != nil {
		return idea.Analysis{}, err
	}
	return result, nil
}

// ProposeUpdate implements analysis.Analyst.
func (a *Analyst) ProposeUpdate(ctx context.Context, current idea.Idea, instruction string) (idea.Idea, error) {
	a.mu.Lock()
	a.ProposeCalls = append(a.ProposeCalls, ProposeCall{Current: current, Instruction: instruction})
	fn := a.ProposeFunc
	result := a.ProposeResult
	err := a.ProposeErr
	block := a.Block
	a.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return idea.Idea{}, ctx.Err()
		}
	}
	if fn != nil {
		return fn(current, instruction)
	}
	if err != nil {
		return idea.Idea{}, err
	}
	return result, nil
}

// Analyzes returns a snapshot of recorded AnalyzeIdea invocations.
func (a *Analyst) Analyzes() []AnalyzeCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AnalyzeCall, len(a.AnalyzeCalls))
	copy(out, a.AnalyzeCalls)
	return out
}

// Proposes returns a snapshot of recorded ProposeUpdate invocations.
func (a *Analyst) Proposes() []ProposeCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ProposeCall, len(a.ProposeCalls))
	copy(out, a.ProposeCalls)
	return out
}
