// Package batchstore persists docmerge batches and their documents in SQLite.
//
// Usage:
//
//	db, err := dbopen.Open("data/docmerge.db", dbopen.WithMkdirAll(), dbopen.WithSchema(batchstore.Schema))
//	store := batchstore.New(db)
//	err = store.Save(ctx, batch)
package batchstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/docmerge/dbopen"
	"github.com/hazyhaar/docmerge/docmerge"
	"github.com/hazyhaar/docmerge/tabular"
)

// Store implements docmerge.Store on a SQLite database opened with Schema.
type Store struct {
	db *sql.DB
}

var _ docmerge.Store = (*Store)(nil)

// New wraps db. The schema must already be applied.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the database at path, applies Schema and returns a Store.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	opts = append(opts, dbopen.WithSchema(Schema))
	db, err := dbopen.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts or replaces a batch and all its documents in one transaction.
func (s *Store) Save(ctx context.Context, b *docmerge.Batch) error {
	cols, err := encodeLists(b.Placeholders, b.Headers, b.Reconciliation.Matched, b.Reconciliation.Unmatched)
	if err != nil {
		return err
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE batch_id = ?`, b.ID); err != nil {
			return fmt.Errorf("clear documents: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO batches (
				id, template_id, template_name, data_name, format, state, error,
				placeholders, headers, matched, unmatched,
				document_count, template_digest, template, created_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				template_id = excluded.template_id,
				template_name = excluded.template_name,
				data_name = excluded.data_name,
				format = excluded.format,
				state = excluded.state,
				error = excluded.error,
				placeholders = excluded.placeholders,
				headers = excluded.headers,
				matched = excluded.matched,
				unmatched = excluded.unmatched,
				document_count = excluded.document_count,
				template_digest = excluded.template_digest,
				template = excluded.template`,
			b.ID, b.TemplateID, b.TemplateName, b.DataName, string(b.Format), string(b.State), b.Error,
			cols[0], cols[1], cols[2], cols[3],
			b.DocumentCount, b.TemplateDigest, b.Template, b.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO documents (
				id, batch_id, idx, title, data, content, format, placeholders, headers, updated_at
			) VALUES (?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare documents: %w", err)
		}
		defer stmt.Close()

		for i := range b.Documents {
			d := &b.Documents[i]
			data, lists, err := encodeDocument(d)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				d.ID, b.ID, d.Index, d.Title, data, d.Content, string(d.Format),
				lists[0], lists[1], d.UpdatedAt.UnixMilli()); err != nil {
				return fmt.Errorf("insert document %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

const batchColumns = `id, template_id, template_name, data_name, format, state, error,
	placeholders, headers, matched, unmatched, document_count, template_digest, created_at`

// Load returns a batch with its template payload and documents ordered by row.
func (s *Store) Load(ctx context.Context, id string) (*docmerge.Batch, error) {
	b, err := scanBatch(s.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+`, template FROM batches WHERE id = ?`, id), true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", docmerge.ErrBatchNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idx, title, data, content, format, placeholders, headers, updated_at
		FROM documents WHERE batch_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d                    docmerge.Document
			data, format, ph, hd string
			updated              int64
		)
		if err := rows.Scan(&d.ID, &d.Index, &d.Title, &data, &d.Content, &format, &ph, &hd, &updated); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.BatchID = b.ID
		d.Format = docmerge.Format(format)
		d.UpdatedAt = time.UnixMilli(updated).UTC()
		if err := decode(
			jsonField{data, &d.Data},
			jsonField{ph, &d.Placeholders},
			jsonField{hd, &d.Headers},
		); err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		b.Documents = append(b.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// List returns batch summaries, newest first. A non-positive limit lists all.
func (s *Store) List(ctx context.Context, limit int) ([]docmerge.Batch, error) {
	q := `SELECT ` + batchColumns + ` FROM batches ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	out := []docmerge.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Delete removes a batch. Its documents cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM batches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", docmerge.ErrBatchNotFound, id)
	}
	return nil
}

// UpdateDocument persists the title, data and content of an edited document.
func (s *Store) UpdateDocument(ctx context.Context, d *docmerge.Document) error {
	data, _, err := encodeDocument(d)
	if err != nil {
		return err
	}
	res, err := dbopen.Exec(ctx, s.db, `
		UPDATE documents SET title = ?, data = ?, content = ?, updated_at = ?
		WHERE id = ? AND batch_id = ?`,
		d.Title, data, d.Content, d.UpdatedAt.UnixMilli(), d.ID, d.BatchID)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", docmerge.ErrDocumentNotFound, d.ID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(sc scanner, withTemplate bool) (*docmerge.Batch, error) {
	var (
		b                          docmerge.Batch
		format, state              string
		ph, hd, matched, unmatched string
		created                    int64
	)
	dest := []any{
		&b.ID, &b.TemplateID, &b.TemplateName, &b.DataName, &format, &state, &b.Error,
		&ph, &hd, &matched, &unmatched, &b.DocumentCount, &b.TemplateDigest, &created,
	}
	if withTemplate {
		dest = append(dest, &b.Template)
	}
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	b.Format = docmerge.Format(format)
	b.State = docmerge.State(state)
	b.CreatedAt = time.UnixMilli(created).UTC()
	if err := decode(
		jsonField{ph, &b.Placeholders},
		jsonField{hd, &b.Headers},
		jsonField{matched, &b.Reconciliation.Matched},
		jsonField{unmatched, &b.Reconciliation.Unmatched},
	); err != nil {
		return nil, fmt.Errorf("batch %s: %w", b.ID, err)
	}
	return &b, nil
}

// jsonField pairs a JSON column value with its destination.
type jsonField struct {
	raw string
	dst any
}

func decode(fields ...jsonField) error {
	for _, f := range fields {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return err
		}
	}
	return nil
}

func encodeLists(lists ...[]string) ([]string, error) {
	out := make([]string, len(lists))
	for i, l := range lists {
		if l == nil {
			l = []string{}
		}
		raw, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		out[i] = string(raw)
	}
	return out, nil
}

func encodeDocument(d *docmerge.Document) (string, []string, error) {
	row := d.Data
	if row == nil {
		row = tabular.Row{}
	}
	data, err := json.Marshal(row)
	if err != nil {
		return "", nil, fmt.Errorf("encode document data: %w", err)
	}
	lists, err := encodeLists(d.Placeholders, d.Headers)
	if err != nil {
		return "", nil, err
	}
	return string(data), lists, nil
}
