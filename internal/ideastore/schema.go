package ideastore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// channelName is the LISTEN/NOTIFY channel carrying idea change events.
// The notification payload is the owner identifier of the changed record.
const channelName = "idea_changes"

// ddlIdeas creates the record table. created_at is nullable on purpose:
// records lacking a timestamp are legal and sort last in listings.
const ddlIdeas = `
CREATE TABLE IF NOT EXISTS ideas (
    id              UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    owner_id        TEXT         NOT NULL,
    title           TEXT         NOT NULL,
    description     TEXT         NOT NULL DEFAULT '',
    status          TEXT         NOT NULL DEFAULT 'Idea',
    category        TEXT         NOT NULL DEFAULT 'Other',
    importance      INT          NOT NULL DEFAULT 3,
    target_audience TEXT         NOT NULL DEFAULT '',
    platform        TEXT         NOT NULL DEFAULT 'Mobile',
    app_url         TEXT         NOT NULL DEFAULT '',
    blueprint       TEXT         NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ,
    tags            TEXT[]       NOT NULL DEFAULT '{}',
    image_url       TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_ideas_owner
    ON ideas (owner_id);

CREATE INDEX IF NOT EXISTS idx_ideas_owner_created
    ON ideas (owner_id, created_at DESC NULLS LAST);
`

// ddlEmbedding adds the semantic-search column and index. The dimension is
// bound to the embedding model; changing models requires a manual schema
// change plus re-embedding.
const ddlEmbedding = `
CREATE EXTENSION IF NOT EXISTS vector;

ALTER TABLE ideas ADD COLUMN IF NOT EXISTS embedding vector(%d);

CREATE INDEX IF NOT EXISTS idx_ideas_embedding
    ON ideas USING hnsw (embedding vector_cosine_ops);
`

// ddlNotify wires a row-level trigger that publishes the owner identifier
// of every changed record on the idea_changes channel. Watch subscriptions
// requery on each event, so the payload only needs to identify whose
// snapshot went stale.
const ddlNotify = `
CREATE OR REPLACE FUNCTION notify_idea_change() RETURNS trigger AS $$
BEGIN
    IF TG_OP = 'DELETE' THEN
        PERFORM pg_notify('idea_changes', OLD.owner_id);
        RETURN OLD;
    END IF;
    PERFORM pg_notify('idea_changes', NEW.owner_id);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_ideas_notify ON ideas;
CREATE TRIGGER trg_ideas_notify
    AFTER INSERT OR UPDATE OR DELETE ON ideas
    FOR EACH ROW EXECUTE FUNCTION notify_idea_change();
`

// Migrate ensures all required tables, extensions, and triggers exist.
// It is idempotent and safe to run on every startup.
//
// embeddingDimensions must match the output dimension of the configured
// embedding model (e.g., 1536 for OpenAI text-embedding-3-small). Pass 0
// to skip the embedding column entirely (semantic search disabled).
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlIdeas); err != nil {
		return fmt.Errorf("ideastore: migrate ideas table: %w", err)
	}
	if embeddingDimensions > 0 {
		if _, err := pool.Exec(ctx, fmt.Sprintf(ddlEmbedding, embeddingDimensions)); err != nil {
			return fmt.Errorf("ideastore: migrate embedding column: %w", err)
		}
	}
	if _, err := pool.Exec(ctx, ddlNotify); err != nil {
		return fmt.Errorf("ideastore: migrate notify trigger: %w", err)
	}
	return nil
}
