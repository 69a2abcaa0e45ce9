package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// ListenerState is the capture lifecycle state visible to the client.
type ListenerState int

const (
	// StateIdle means no capture is active and nothing is being processed.
	StateIdle ListenerState = iota

	// StateListening means a capture session is open and interim results
	// are accumulating.
	StateListening

	// StateProcessing means a finalized utterance is being converted into
	// a persistence effect. A new capture may already be open underneath;
	// Processing wins for display until the operation completes.
	StateProcessing
)

// String returns the lowercase wire name of the state.
func (s ListenerState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	default:
		return "idle"
	}
}

// ListenerConfig carries the collaborators for [NewListener].
type ListenerConfig struct {
	// Orchestrator receives finalized utterances. Required.
	Orchestrator *Orchestrator

	// OnState is called with the new display state on every transition.
	// Optional; called without the Listener's lock held but serialised
	// with respect to other OnState calls. Must not block.
	OnState func(ListenerState)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Listener owns the per-utterance capture lifecycle: it accumulates
// interim transcripts, tracks the user's focus, and hands each finalized
// utterance to the orchestrator. Capture events for the next utterance may
// arrive while the previous one is still processing; the orchestrator's
// guard, checked when the utterance finalizes, decides what survives.
type Listener struct {
	cfg ListenerConfig

	mu         sync.Mutex
	listening  bool
	processing int
	transcript string
	focus      Focus

	// stateMu serialises OnState callbacks so transitions are observed
	// in order.
	stateMu sync.Mutex

	submits sync.WaitGroup
}

// NewListener creates a Listener feeding orch.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Listener{cfg: cfg}
}

// SetFocus records what the user is looking at. Focus is sampled at the
// moment an utterance is finalized, so changing it mid-capture affects the
// current utterance, not past ones.
func (l *Listener) SetFocus(f Focus) {
	l.mu.Lock()
	l.focus = f
	l.mu.Unlock()
}

// Focus returns the current focus.
func (l *Listener) Focus() Focus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.focus
}

// State returns the current display state. Processing wins over Listening
// because the user needs to know their previous utterance is still being
// worked on.
func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

func (l *Listener) stateLocked() ListenerState {
	switch {
	case l.processing > 0:
		return StateProcessing
	case l.listening:
		return StateListening
	default:
		return StateIdle
	}
}

// Transcript returns the current interim transcript.
func (l *Listener) Transcript() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transcript
}

// CaptureStarted opens a new capture session. Any stale interim
// transcript from an aborted session is discarded.
func (l *Listener) CaptureStarted() {
	l.mu.Lock()
	l.listening = true
	l.transcript = ""
	l.mu.Unlock()
	l.emitState()
}

// CaptureResult replaces the interim transcript with the cumulative text
// of the session so far. Results are full replacements, never deltas.
// Results outside an open session are dropped.
func (l *Listener) CaptureResult(transcript string) {
	l.mu.Lock()
	if l.listening {
		l.transcript = transcript
	}
	l.mu.Unlock()
}

// CaptureError stops the current session. The accumulated transcript is
// kept: the recognizer always delivers an end event after an error, and
// that event decides whether the text is submitted. The error itself
// starts no operation and never surfaces as an operation error.
func (l *Listener) CaptureError(reason string) {
	l.mu.Lock()
	wasListening := l.listening
	l.listening = false
	l.mu.Unlock()
	if wasListening {
		l.cfg.Logger.Warn("speech capture failed", "reason", reason)
	}
	l.emitState()
}

// CaptureEnded finalizes the current utterance and submits it. The
// transcript is cleared before the submission runs, so a failed operation
// never leaves text behind to resubmit. An utterance that is empty after
// trimming ends the session without starting an operation.
//
// The drop-while-busy decision is made here, at finalize time: an
// utterance that ends while another submission holds the guard is dropped
// immediately, even if that submission completes a moment later. Only the
// admitted operation runs asynchronously, so the caller's event loop can
// keep delivering capture events for the next utterance while this one is
// processed. [Listener.Wait] blocks until in-flight submissions finish.
func (l *Listener) CaptureEnded(ctx context.Context) {
	l.mu.Lock()
	text := strings.TrimSpace(l.transcript)
	focus := l.focus
	l.transcript = ""
	l.listening = false

	if text == "" {
		l.mu.Unlock()
		l.emitState()
		return
	}

	if !l.cfg.Orchestrator.tryAcquire(ctx) {
		l.mu.Unlock()
		l.cfg.Logger.Debug("utterance dropped, a submission is in flight")
		l.emitState()
		return
	}

	l.processing++
	l.mu.Unlock()
	l.emitState()

	l.submits.Add(1)
	go func() {
		defer l.submits.Done()
		defer func() {
			l.mu.Lock()
			l.processing--
			l.mu.Unlock()
			l.emitState()
		}()

		if err := l.cfg.Orchestrator.submitAcquired(ctx, text, focus); err != nil {
			// Real failures were already surfaced through the
			// orchestrator's notifier; this is diagnostics only.
			l.cfg.Logger.Debug("utterance submission finished with error", "err", err)
		}
	}()
}

// Wait blocks until all submissions started by CaptureEnded have
// completed. Intended for shutdown and tests.
func (l *Listener) Wait() {
	l.submits.Wait()
}

func (l *Listener) emitState() {
	if l.cfg.OnState == nil {
		return
	}
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.cfg.OnState(l.State())
}
