package memory

import "context"

// Index is the vector store contract the pipeline components build on.
// Store implements it with an embedded chromem-go database; the postgres
// subpackage implements it over pgvector for deployments that share one
// database server between processes.
type Index interface {
	// Insert stores or overwrites one record and returns its id.
	Insert(ctx context.Context, c Collection, rec Record) (string, error)
	// InsertBatch stores records best-effort with per-record statuses.
	InsertBatch(ctx context.Context, c Collection, records []Record) ([]BatchStatus, error)
	// Query returns up to k nearest records, highest similarity first.
	Query(ctx context.Context, c Collection, text string, k int, filter map[string]string) ([]Result, error)
	// List returns matching records in insertion order, oldest first.
	List(ctx context.Context, c Collection, filter map[string]string) ([]Record, error)
	// Clear removes every record in the collection.
	Clear(ctx context.Context, c Collection) error
	// Count returns the number of records in the collection.
	Count(ctx context.Context, c Collection) (int, error)
	// Stats returns record counts keyed by collection wire name.
	Stats(ctx context.Context) (map[string]int, error)
}

var _ Index = (*Store)(nil)
