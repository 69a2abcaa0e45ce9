package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ideaspark/ideaspark/internal/analysis"
	"github.com/ideaspark/ideaspark/internal/auth"
	"github.com/ideaspark/ideaspark/internal/health"
	"github.com/ideaspark/ideaspark/internal/idea"
	"github.com/ideaspark/ideaspark/internal/ideastore"
	"github.com/ideaspark/ideaspark/internal/observe"
	"github.com/ideaspark/ideaspark/pkg/provider/image"
)

// defaultSearchLimit bounds /api/ideas/search when no limit is given.
const defaultSearchLimit = 10

// routes assembles the HTTP surface: the REST API over idea records, the
// WebSocket capture endpoint, Prometheus metrics, and health probes.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	authed := a.requireSession

	mux.Handle("GET /api/ideas", authed(http.HandlerFunc(a.handleList)))
	mux.Handle("POST /api/ideas", authed(http.HandlerFunc(a.handleCreate)))
	mux.Handle("GET /api/ideas/search", authed(http.HandlerFunc(a.handleSearch)))
	mux.Handle("GET /api/ideas/{id}", authed(http.HandlerFunc(a.handleGet)))
	mux.Handle("PATCH /api/ideas/{id}", authed(http.HandlerFunc(a.handlePatch)))
	mux.Handle("DELETE /api/ideas/{id}", authed(http.HandlerFunc(a.handleDelete)))
	mux.Handle("GET /api/capture", authed(http.HandlerFunc(a.handleCaptureSettings)))

	// The gateway verifies credentials itself during the handshake.
	mux.Handle("GET /ws", a.gateway)

	// Unauthenticated on purpose: it is how a local client gets its first
	// token. Only registered when auth.dev_tokens is set.
	if a.issuer != nil {
		mux.Handle("POST /api/dev/token", http.HandlerFunc(a.handleDevToken))
	}

	mux.Handle("GET /metrics", promhttp.Handler())
	checks := []health.Checker{health.Database(a.pinger)}
	if a.llmHealth != nil {
		checks = append(checks, health.Checker{
			Name:  "llm",
			Check: func(context.Context) error { return a.llmHealth() },
		})
	}
	health.New(checks...).Register(mux)

	return observe.Middleware(a.metrics)(mux)
}

// requireSession authenticates the bearer token and stores the resulting
// session in the request context.
func (a *App) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := a.verifier.Verify(r.Context(), auth.BearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
	})
}

func (a *App) handleList(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	ideas, err := a.store.ListByOwner(r.Context(), sess.UserID)
	if err != nil {
		observe.Logger(r.Context()).Error("list ideas failed", "user", sess.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not list ideas")
		return
	}
	if ideas == nil {
		ideas = []idea.Idea{}
	}
	writeJSON(w, http.StatusOK, ideas)
}

// createRequest is the manual-entry payload: just a title and a free-text
// description. The full record is produced by the extraction service, the
// same way a spoken utterance is.
type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// handleCreate runs a manually entered idea through extraction and persists
// the result. The owner comes from the session and the timestamp from the
// server clock; the illustration is patched in by a detached task.
func (a *App) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed idea payload")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	start := time.Now()
	result, err := a.analyst.AnalyzeIdea(r.Context(), req.Title+": "+req.Description)
	a.metrics.RecordStage(r.Context(), observe.StageExtraction, time.Since(start), err)
	if err != nil {
		if errors.Is(err, analysis.ErrUninterpretable) {
			writeError(w, http.StatusUnprocessableEntity, "could not interpret idea")
			return
		}
		observe.Logger(r.Context()).Error("manual idea analysis failed", "user", sess.UserID, "err", err)
		writeError(w, http.StatusBadGateway, "idea analysis failed")
		return
	}

	rec := idea.Idea{
		OwnerID:        sess.UserID,
		Title:          result.Title,
		Description:    result.Description,
		Status:         idea.StatusIdea,
		Category:       result.Category,
		Importance:     result.Importance,
		TargetAudience: result.TargetAudience,
		Platform:       result.Platform,
		Blueprint:      result.Blueprint,
		CreatedAt:      time.Now().UTC(),
		Tags:           result.Tags,
	}

	created, err := a.store.Create(r.Context(), rec)
	if err != nil {
		observe.Logger(r.Context()).Error("create idea failed", "user", sess.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not create idea")
		return
	}

	a.spawnImagePatch(r.Context(), created)
	writeJSON(w, http.StatusCreated, created)
}

// spawnImagePatch fills in the illustration for a freshly created record.
// It runs detached from the request: the response does not wait for it and
// its failures are logged, never surfaced.
func (a *App) spawnImagePatch(ctx context.Context, rec idea.Idea) {
	if a.providers.Image == nil {
		return
	}

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), imagePatchTimeout)

	a.imageTasks.Add(1)
	go func() {
		defer a.imageTasks.Done()
		defer cancel()

		start := time.Now()
		img, err := a.providers.Image.Generate(taskCtx, image.Request{
			Prompt:      analysis.ImagePrompt(rec.Title, rec.Description),
			AspectRatio: "16:9",
		})
		a.metrics.RecordStage(taskCtx, observe.StageImage, time.Since(start), err)
		if err != nil {
			observe.Logger(taskCtx).Warn("idea image generation failed", "idea_id", rec.ID, "err", err)
			return
		}

		if err := a.store.Update(taskCtx, rec.ID, ideastore.Patch{"imageUrl": img.DataURL()}); err != nil {
			observe.Logger(taskCtx).Warn("idea image patch failed", "idea_id", rec.ID, "err", err)
		}
	}()
}

func (a *App) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	rec, err := a.loadOwned(r, sess.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "idea not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *App) handlePatch(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	rec, err := a.loadOwned(r, sess.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "idea not found")
		return
	}

	var patch ideastore.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed patch payload")
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.store.Update(r.Context(), rec.ID, patch); err != nil {
		if errors.Is(err, ideastore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "idea not found")
			return
		}
		observe.Logger(r.Context()).Error("patch idea failed", "id", rec.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not update idea")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	rec, err := a.loadOwned(r, sess.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "idea not found")
		return
	}

	if err := a.store.Delete(r.Context(), rec.ID); err != nil {
		if errors.Is(err, ideastore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "idea not found")
			return
		}
		observe.Logger(r.Context()).Error("delete idea failed", "id", rec.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not delete idea")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	results, err := a.store.SearchSemantic(r.Context(), sess.UserID, query, limit)
	if err != nil {
		observe.Logger(r.Context()).Error("semantic search failed", "user", sess.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "search unavailable")
		return
	}
	if results == nil {
		results = []ideastore.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleCaptureSettings hands the client its speech-recognition settings.
func (a *App) handleCaptureSettings(w http.ResponseWriter, _ *http.Request) {
	c := a.captureCfg.Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"language":       c.Language,
		"interimResults": c.InterimResultsEnabled(),
		"continuous":     c.ContinuousEnabled(),
	})
}

// devTokenRequest asks the development token endpoint for a signed token.
type devTokenRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// handleDevToken mints a token for the requested user. The route only
// exists when auth.dev_tokens is enabled.
func (a *App) handleDevToken(w http.ResponseWriter, r *http.Request) {
	var req devTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed token request")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	token, err := a.issuer.Issue(auth.Session{UserID: req.UserID, Email: req.Email})
	if err != nil {
		observe.Logger(r.Context()).Error("dev token issue failed", "user", req.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// loadOwned fetches the record addressed by the path and checks ownership.
// A record owned by someone else is reported as missing, not forbidden.
func (a *App) loadOwned(r *http.Request, userID string) (idea.Idea, error) {
	rec, err := a.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return idea.Idea{}, err
	}
	if rec.OwnerID != userID {
		return idea.Idea{}, ideastore.ErrNotFound
	}
	return rec, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
