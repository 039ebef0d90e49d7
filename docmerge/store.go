package docmerge

import "context"

// Store persists batches and their documents. Implementations return
// ErrBatchNotFound or ErrDocumentNotFound for unknown ids.
type Store interface {
	// Save inserts or replaces a batch and all its documents.
	Save(ctx context.Context, b *Batch) error

	// Load returns a batch with its template payload and documents.
	Load(ctx context.Context, id string) (*Batch, error)

	// List returns batch summaries, newest first.
	List(ctx context.Context, limit int) ([]Batch, error)

	// Delete removes a batch and its documents.
	Delete(ctx context.Context, id string) error

	// UpdateDocument persists an edited document.
	UpdateDocument(ctx context.Context, doc *Document) error
}
