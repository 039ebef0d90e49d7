package batchstore

// Schema is the DDL of the batch store. Lists and rows are stored as JSON
// text; the template payload is kept so documents can be re-rendered.
const Schema = `
CREATE TABLE IF NOT EXISTS batches (
    id               TEXT PRIMARY KEY,
    template_id      TEXT NOT NULL DEFAULT '',
    template_name    TEXT NOT NULL,
    data_name        TEXT NOT NULL DEFAULT '',
    format           TEXT NOT NULL,
    state            TEXT NOT NULL,
    error            TEXT NOT NULL DEFAULT '',
    placeholders     TEXT NOT NULL DEFAULT '[]',
    headers          TEXT NOT NULL DEFAULT '[]',
    matched          TEXT NOT NULL DEFAULT '[]',
    unmatched        TEXT NOT NULL DEFAULT '[]',
    document_count   INTEGER NOT NULL DEFAULT 0,
    template_digest  TEXT NOT NULL DEFAULT '',
    template         BLOB,
    created_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
    id            TEXT PRIMARY KEY,
    batch_id      TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    idx           INTEGER NOT NULL,
    title         TEXT NOT NULL,
    data          TEXT NOT NULL DEFAULT '{}',
    content       BLOB,
    format        TEXT NOT NULL,
    placeholders  TEXT NOT NULL DEFAULT '[]',
    headers       TEXT NOT NULL DEFAULT '[]',
    updated_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_batch ON documents(batch_id, idx);
`
