package ideastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/ideaspark/ideaspark/internal/idea"
	"github.com/ideaspark/ideaspark/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ Store = (*Postgres)(nil)

// column maps Patch field names (JSON names) to table columns.
var column = map[string]string{
	"userId":         "owner_id",
	"title":          "title",
	"description":    "description",
	"status":         "status",
	"category":       "category",
	"importance":     "importance",
	"targetAudience": "target_audience",
	"platform":       "platform",
	"appUrl":         "app_url",
	"devPrompt":      "blueprint",
	"createdAt":      "created_at",
	"tags":           "tags",
	"imageUrl":       "image_url",
}

// ideaColumns is the SELECT list shared by every record query.
const ideaColumns = `id, owner_id, title, description, status, category,
	importance, target_audience, platform, app_url, blueprint, created_at,
	tags, image_url`

// Postgres is the pgx-backed [Store] implementation.
//
// Change notifications ride PostgreSQL LISTEN/NOTIFY: a row trigger
// publishes the owner identifier on every insert/update/delete, and each
// [Postgres.Watch] subscription holds a dedicated listening connection that
// requeries the owner's snapshot on matching events.
//
// When an embeddings provider is configured, records are embedded on create
// and re-embedded when text fields change; both are best-effort and never
// fail the write.
type Postgres struct {
	pool   *pgxpool.Pool
	embed  embeddings.Provider // nil disables semantic search
	logger *slog.Logger
}

// NewPostgres connects to the database at dsn, runs [Migrate], and returns
// the store. embed may be nil, which disables the embedding column and
// [Postgres.SearchSemantic].
func NewPostgres(ctx context.Context, dsn string, embed embeddings.Provider) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ideastore: parse dsn: %w", err)
	}

	if embed != nil {
		// Register pgvector types on every new connection so the embedding
		// column can be scanned into and inserted from pgvector.Vector values.
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ideastore: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ideastore: ping: %w", err)
	}

	dims := 0
	if embed != nil {
		dims = embed.Dimensions()
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ideastore: migrate: %w", err)
	}

	return &Postgres{pool: pool, embed: embed, logger: slog.Default()}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create implements [Store].
func (s *Postgres) Create(ctx context.Context, rec idea.Idea) (idea.Idea, error) {
	const q = `
		INSERT INTO ideas
		    (owner_id, title, description, status, category, importance,
		     target_audience, platform, app_url, blueprint, created_at,
		     tags, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}

	var createdAt any
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt
	}

	err := s.pool.QueryRow(ctx, q,
		rec.OwnerID,
		rec.Title,
		rec.Description,
		rec.Status,
		rec.Category,
		rec.Importance,
		rec.TargetAudience,
		rec.Platform,
		rec.AppURL,
		rec.Blueprint,
		createdAt,
		tags,
		rec.ImageURL,
	).Scan(&rec.ID)
	if err != nil {
		return idea.Idea{}, fmt.Errorf("ideastore: create: %w", err)
	}

	s.reembed(ctx, rec.ID, rec)
	return rec, nil
}

// Get implements [Store].
func (s *Postgres) Get(ctx context.Context, id string) (idea.Idea, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+ideaColumns+" FROM ideas WHERE id = $1", id)
	if err != nil {
		return idea.Idea{}, fmt.Errorf("ideastore: get: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanIdea)
	if errors.Is(err, pgx.ErrNoRows) {
		return idea.Idea{}, ErrNotFound
	}
	if err != nil {
		return idea.Idea{}, fmt.Errorf("ideastore: get: %w", err)
	}
	return rec, nil
}

// ListByOwner implements [Store].
func (s *Postgres) ListByOwner(ctx context.Context, ownerID string) ([]idea.Idea, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+ideaColumns+` FROM ideas
		 WHERE owner_id = $1
		 ORDER BY created_at DESC NULLS LAST, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ideastore: list by owner: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanIdea)
	if err != nil {
		return nil, fmt.Errorf("ideastore: list by owner: %w", err)
	}
	return recs, nil
}

// Update implements [Store].
func (s *Postgres) Update(ctx context.Context, id string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("ideastore: update: %w", err)
	}
	if len(patch) == 0 {
		return nil
	}

	set := make([]string, 0, len(patch))
	args := []any{id}
	embedStale := false
	for field, value := range patch {
		if field == "tags" {
			tags := toStringSlice(value)
			if tags == nil {
				tags = []string{}
			}
			value = tags
		}
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column[field], len(args)))
		switch field {
		case "title", "description", "tags":
			embedStale = true
		}
	}

	tag, err := s.pool.Exec(ctx,
		"UPDATE ideas SET "+strings.Join(set, ", ")+" WHERE id = $1", args...)
	if err != nil {
		return fmt.Errorf("ideastore: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if embedStale {
		if rec, err := s.Get(ctx, id); err == nil {
			s.reembed(ctx, id, rec)
		}
	}
	return nil
}

// Delete implements [Store].
func (s *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM ideas WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("ideastore: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Watch implements [Store]. Each subscription acquires one dedicated
// connection for LISTEN; consecutive notifications while a requery is
// running coalesce into a single refresh.
func (s *Postgres) Watch(ctx context.Context, ownerID string) (<-chan []idea.Idea, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ideastore: watch: acquire: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+channelName); err != nil {
		conn.Release()
		return nil, fmt.Errorf("ideastore: watch: listen: %w", err)
	}

	out := make(chan []idea.Idea, 1)

	push := func() {
		snapshot, err := s.ListByOwner(ctx, ownerID)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("watch snapshot query failed", "owner_id", ownerID, "err", err)
			}
			return
		}
		// Replace a pending snapshot rather than queueing behind it.
		select {
		case <-out:
		default:
		}
		select {
		case out <- snapshot:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(out)
		defer conn.Release()

		push() // initial snapshot

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("watch notification wait failed", "owner_id", ownerID, "err", err)
				}
				return
			}
			if n.Payload != ownerID {
				continue
			}
			push()
		}
	}()

	return out, nil
}

// SearchSemantic implements [Store].
func (s *Postgres) SearchSemantic(ctx context.Context, ownerID, query string, limit int) ([]SearchResult, error) {
	if s.embed == nil {
		return nil, errors.New("ideastore: semantic search disabled: no embeddings provider")
	}
	if limit <= 0 {
		limit = 10
	}

	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ideastore: search: embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT "+ideaColumns+`, 1 - (embedding <=> $2) AS score
		 FROM ideas
		 WHERE owner_id = $1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		ownerID, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("ideastore: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SearchResult, error) {
		var (
			r         SearchResult
			createdAt *time.Time
		)
		err := row.Scan(
			&r.Idea.ID, &r.Idea.OwnerID, &r.Idea.Title, &r.Idea.Description,
			&r.Idea.Status, &r.Idea.Category, &r.Idea.Importance,
			&r.Idea.TargetAudience, &r.Idea.Platform, &r.Idea.AppURL,
			&r.Idea.Blueprint, &createdAt, &r.Idea.Tags, &r.Idea.ImageURL,
			&r.Score,
		)
		if createdAt != nil {
			r.Idea.CreatedAt = *createdAt
		}
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("ideastore: search: %w", err)
	}
	return results, nil
}

// reembed recomputes and stores the record's embedding. Best-effort: any
// failure is logged and the write that triggered it stands.
func (s *Postgres) reembed(ctx context.Context, id string, rec idea.Idea) {
	if s.embed == nil {
		return
	}
	vec, err := s.embed.Embed(ctx, embeddingText(rec))
	if err != nil {
		s.logger.Warn("idea embedding failed", "id", id, "err", err)
		return
	}
	if _, err := s.pool.Exec(ctx,
		"UPDATE ideas SET embedding = $2 WHERE id = $1",
		id, pgvector.NewVector(vec)); err != nil {
		s.logger.Warn("idea embedding write failed", "id", id, "err", err)
	}
}

// embeddingText builds the text embedded for semantic search.
func embeddingText(rec idea.Idea) string {
	return rec.Title + "\n" + rec.Description + "\n" + strings.Join(rec.Tags, ", ")
}

// scanIdea scans one ideas row into an [idea.Idea].
func scanIdea(row pgx.CollectableRow) (idea.Idea, error) {
	var (
		rec       idea.Idea
		createdAt *time.Time
	)
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Title, &rec.Description, &rec.Status,
		&rec.Category, &rec.Importance, &rec.TargetAudience, &rec.Platform,
		&rec.AppURL, &rec.Blueprint, &createdAt, &rec.Tags, &rec.ImageURL,
	)
	if createdAt != nil {
		rec.CreatedAt = *createdAt
	}
	return rec, err
}
