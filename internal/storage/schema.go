package storage

import (
	"context"
	"database/sql"
)

// Schema creates every table the pipeline needs. Statements are idempotent.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id           UUID PRIMARY KEY,
	project_id   UUID NOT NULL,
	path         TEXT NOT NULL,
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_project_hash_idx ON documents (project_id, content_hash);

CREATE TABLE IF NOT EXISTS modules (
	id               UUID PRIMARY KEY,
	document_id      UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
	project_id       UUID NOT NULL,
	module_key       TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	content          TEXT NOT NULL,
	content_hash     TEXT NOT NULL,
	start_line       INT NOT NULL,
	end_line         INT NOT NULL,
	heading_level    INT NOT NULL DEFAULT 0,
	module_type      TEXT NOT NULL,
	module_order     INT NOT NULL,
	estimated_tokens INT NOT NULL,
	depends_on       TEXT[] NOT NULL DEFAULT '{}',
	tags             TEXT[] NOT NULL DEFAULT '{}',
	is_grounded      BOOLEAN NOT NULL DEFAULT FALSE,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, module_key)
);
CREATE INDEX IF NOT EXISTS modules_project_idx ON modules (project_id);

CREATE TABLE IF NOT EXISTS embeddings (
	id          UUID PRIMARY KEY,
	owner_id    UUID NOT NULL,
	owner_type  TEXT NOT NULL,
	project_id  UUID NOT NULL,
	chunk_index INT NOT NULL,
	chunk_text  TEXT NOT NULL,
	embedding   vector NOT NULL,
	model       TEXT NOT NULL,
	dimensions  INT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS embeddings_project_idx ON embeddings (project_id);

CREATE TABLE IF NOT EXISTS conflicts (
	id                      UUID PRIMARY KEY,
	project_id              UUID NOT NULL,
	module_id               UUID NOT NULL,
	conflicting_module_id   UUID NOT NULL,
	conflicting_document_id UUID NOT NULL,
	pair_key                TEXT NOT NULL,
	conflict_type           TEXT NOT NULL,
	severity                TEXT NOT NULL,
	confidence              DOUBLE PRECISION NOT NULL,
	evidence                TEXT NOT NULL DEFAULT '',
	suggestions             TEXT[] NOT NULL DEFAULT '{}',
	status                  TEXT NOT NULL,
	detected_at             TIMESTAMPTZ NOT NULL,
	resolved_at             TIMESTAMPTZ,
	resolved_by             TEXT NOT NULL DEFAULT '',
	resolution_strategy     TEXT NOT NULL DEFAULT '',
	resolution_note         TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS conflicts_active_pair_idx
	ON conflicts (pair_key) WHERE status IN ('open', 'acknowledged');
CREATE INDEX IF NOT EXISTS conflicts_project_idx ON conflicts (project_id, status);

CREATE TABLE IF NOT EXISTS resolutions (
	id          UUID PRIMARY KEY,
	conflict_id UUID NOT NULL REFERENCES conflicts (id) ON DELETE CASCADE,
	strategy    TEXT NOT NULL,
	resolved_by TEXT NOT NULL DEFAULT '',
	changes     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
`

// Migrate applies Schema
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
