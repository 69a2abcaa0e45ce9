// Package orchestrator implements the voice reconciliation workflow: it
// converts each finalized spoken utterance into exactly one persistence
// effect — either a new idea record extracted from the transcript, or an
// AI-proposed replacement of the record the user is focused on.
//
// The package has two layers. [Orchestrator] owns the operation contract:
// the single in-flight guard, the create-vs-mutate branch, the field
// precedence rules, and the detached best-effort image patch. [Listener]
// owns the per-utterance capture lifecycle (Idle → Listening → Processing)
// and the interim transcript state, and feeds finalized utterances into
// the Orchestrator.
//
// All exported methods are safe for concurrent use.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ideaspark/ideaspark/internal/analysis"
	"github.com/ideaspark/ideaspark/internal/auth"
	"github.com/ideaspark/ideaspark/internal/idea"
	"github.com/ideaspark/ideaspark/internal/ideastore"
	"github.com/ideaspark/ideaspark/internal/observe"
	"github.com/ideaspark/ideaspark/pkg/provider/image"
)

// ErrBusy is returned by [Orchestrator.Submit] when another submission is
// still in flight. The caller must treat it as a silent drop: no user
// notification, no state change.
var ErrBusy = errors.New("a submission is already in flight")

// fallbackMessage is shown when a failing service supplies no message of
// its own.
const fallbackMessage = "AI analysis failed."

// uninterpretableMessage is shown when the AI responded but the response
// could not be parsed into the expected structure.
const uninterpretableMessage = "Could not interpret the AI response. Try rephrasing your command."

// defaultImageTimeout bounds the detached image generation and patch.
const defaultImageTimeout = 2 * time.Minute

// Focus identifies what the user is looking at: the record list (zero
// value, unbound) or one record's detail view (bound). It decides whether
// a finalized utterance creates a record or mutates the focused one.
type Focus struct {
	// IdeaID is the focused record's identifier; empty means list view.
	IdeaID string
}

// Bound reports whether the focus is bound to a record.
func (f Focus) Bound() bool { return f.IdeaID != "" }

// RecordSet is a read-only view of the in-memory record snapshot kept
// current by the store subscription. The orchestrator resolves mutation
// targets against it and never writes to it.
type RecordSet interface {
	// Lookup returns the record with the given identifier, if present.
	Lookup(id string) (idea.Idea, bool)
}

// Notifier receives the single user-visible error produced by a failed
// submission. Implementations must not block.
type Notifier interface {
	// OperationFailed surfaces one dismissible error message to the user.
	OperationFailed(message string)
}

// NotifierFunc adapts a function to the [Notifier] interface.
type NotifierFunc func(message string)

// OperationFailed implements [Notifier].
func (f NotifierFunc) OperationFailed(message string) { f(message) }

// Config carries the collaborators for [New]. Analyst, Store, Records, and
// Session are required; the rest default sensibly.
type Config struct {
	// Analyst provides the idea extraction and mutation services.
	Analyst analysis.Analyst

	// Images provides best-effort illustrative image synthesis.
	// Nil disables image generation entirely.
	Images image.Provider

	// Store receives all persistence effects.
	Store ideastore.Store

	// Records resolves mutation targets from the live snapshot.
	Records RecordSet

	// Session is the authenticated identity owning created records. The
	// orchestrator never reads ambient auth state.
	Session auth.Session

	// Notifier receives user-visible operation errors. Nil drops them
	// (useful in tests that assert on returned errors instead).
	Notifier Notifier

	// Metrics records pipeline instrumentation. Nil disables it.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now supplies creation timestamps. Defaults to time.Now.
	Now func() time.Time

	// ImageTimeout bounds the detached image task. Defaults to 2 minutes.
	ImageTimeout time.Duration
}

// Orchestrator converts finalized utterances into persistence effects with
// at most one outstanding operation at a time.
type Orchestrator struct {
	cfg Config

	// inFlight is the single-operation guard. Held for the extraction or
	// mutation call and the store write; never for image generation.
	inFlight atomic.Bool

	// imageTasks tracks detached image patches so tests and shutdown can
	// wait for them without coupling them to the submission's lifetime.
	imageTasks sync.WaitGroup
}

// New creates an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = defaultImageTimeout
	}
	return &Orchestrator{cfg: cfg}
}

// Busy reports whether a submission is currently in flight.
func (o *Orchestrator) Busy() bool { return o.inFlight.Load() }

// Submit converts one finalized utterance into exactly one create-or-update
// call against the store.
//
// Empty (after trimming) text is a no-op. If another submission is in
// flight, Submit returns [ErrBusy] without any side effect — overlapping
// utterances are dropped, never queued. Any extraction, mutation, or
// persistence failure is converted into a single user-visible notification
// and returned; the record set is left unchanged. The guard is released
// regardless of outcome.
func (o *Orchestrator) Submit(ctx context.Context, text string, focus Focus) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if !o.tryAcquire(ctx) {
		return ErrBusy
	}
	return o.submitAcquired(ctx, trimmed, focus)
}

// tryAcquire claims the in-flight guard for one submission. A false return
// means another submission holds it; the utterance is dropped, never
// queued, and the drop is counted.
func (o *Orchestrator) tryAcquire(ctx context.Context) bool {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.count(func(m *observe.Metrics) { m.UtterancesDropped.Add(ctx, 1) })
		return false
	}
	return true
}

// submitAcquired runs one admitted submission. The caller must hold the
// guard via tryAcquire; it is released on return regardless of outcome.
func (o *Orchestrator) submitAcquired(ctx context.Context, text string, focus Focus) error {
	defer o.inFlight.Store(false)

	ctx, span := observe.StartSpan(ctx, "utterance.submit")
	defer span.End()

	o.count(func(m *observe.Metrics) { m.UtterancesSubmitted.Add(ctx, 1) })

	var err error
	if focus.Bound() {
		err = o.mutate(ctx, text, focus.IdeaID)
	} else {
		err = o.create(ctx, text)
	}
	if err != nil {
		span.RecordError(err)
		o.notify(err)
	}
	return err
}

// create runs the extraction branch: transcript → new record, plus a
// detached image patch.
func (o *Orchestrator) create(ctx context.Context, transcript string) error {
	ctx, span := observe.StartSpan(ctx, "idea.extract")
	defer span.End()

	start := o.cfg.Now()
	result, err := o.cfg.Analyst.AnalyzeIdea(ctx, transcript)
	o.observeDuration(ctx, observe.StageExtraction, start, err)
	if err != nil {
		return err
	}

	rec := idea.Idea{
		OwnerID:        o.cfg.Session.UserID,
		Title:          result.Title,
		Description:    result.Description,
		Status:         idea.StatusIdea,
		Category:       result.Category,
		Importance:     result.Importance,
		TargetAudience: result.TargetAudience,
		Platform:       result.Platform,
		AppURL:         "",
		Blueprint:      result.Blueprint,
		CreatedAt:      o.cfg.Now(),
		Tags:           result.Tags,
		ImageURL:       "",
	}

	created, err := o.cfg.Store.Create(ctx, rec)
	if err != nil {
		return err
	}

	o.spawnImagePatch(ctx, created)
	return nil
}

// mutate runs the mutation branch: focused record + instruction →
// full-record patch. A focus pointing at a record that is no longer in the
// snapshot (deleted concurrently) is a no-op.
func (o *Orchestrator) mutate(ctx context.Context, instruction, ideaID string) error {
	current, ok := o.cfg.Records.Lookup(ideaID)
	if !ok {
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "idea.mutate")
	defer span.End()

	start := o.cfg.Now()
	updated, err := o.cfg.Analyst.ProposeUpdate(ctx, current, instruction)
	o.observeDuration(ctx, observe.StageMutation, start, err)
	if err != nil {
		return err
	}

	// The write carries the full replacement field set minus the ID; the
	// analyst has already pinned OwnerID and CreatedAt to current's values.
	return o.cfg.Store.Update(ctx, ideaID, ideastore.Patch(updated.Fields()))
}

// spawnImagePatch starts the detached, fire-and-forget image generation
// for a newly created record. It must never affect the completion of the
// submission that spawned it: failures are logged and swallowed, and the
// task survives cancellation of the submission's context.
func (o *Orchestrator) spawnImagePatch(ctx context.Context, rec idea.Idea) {
	if o.cfg.Images == nil {
		return
	}

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ImageTimeout)

	o.imageTasks.Add(1)
	go func() {
		defer o.imageTasks.Done()
		defer cancel()

		taskCtx, span := observe.StartSpan(taskCtx, "idea.illustrate")
		defer span.End()

		start := o.cfg.Now()
		img, err := o.cfg.Images.Generate(taskCtx, image.Request{
			Prompt:      analysis.ImagePrompt(rec.Title, rec.Description),
			AspectRatio: "16:9",
		})
		o.observeDuration(taskCtx, observe.StageImage, start, err)
		if err != nil {
			span.RecordError(err)
			o.cfg.Logger.Warn("idea image generation failed", "idea_id", rec.ID, "err", err)
			return
		}

		if err := o.cfg.Store.Update(taskCtx, rec.ID, ideastore.Patch{"imageUrl": img.DataURL()}); err != nil {
			span.RecordError(err)
			o.cfg.Logger.Warn("idea image patch failed", "idea_id", rec.ID, "err", err)
		}
	}()
}

// WaitImagePatches blocks until all detached image tasks spawned so far
// have finished. Intended for shutdown and tests.
func (o *Orchestrator) WaitImagePatches() {
	o.imageTasks.Wait()
}

// notify converts an operation failure into the single user-visible
// message mandated by the error policy.
func (o *Orchestrator) notify(err error) {
	if o.cfg.Notifier == nil {
		return
	}
	msg := fallbackMessage
	switch {
	case errors.Is(err, analysis.ErrUninterpretable):
		msg = uninterpretableMessage
	case err.Error() != "":
		msg = err.Error()
	}
	o.cfg.Notifier.OperationFailed(msg)
}

// count runs fn when metrics are configured.
func (o *Orchestrator) count(fn func(*observe.Metrics)) {
	if o.cfg.Metrics != nil {
		fn(o.cfg.Metrics)
	}
}

// observeDuration records one pipeline-stage latency sample.
func (o *Orchestrator) observeDuration(ctx context.Context, stage observe.Stage, start time.Time, err error) {
	if o.cfg.Metrics == nil {
		return
	}
	o.cfg.Metrics.RecordStage(ctx, stage, o.cfg.Now().Sub(start), err)
}
