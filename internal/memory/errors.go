package memory

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers branch on.
// Wrap with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrEmbedding indicates the embedding provider failed or timed out.
	ErrEmbedding = errors.New("embedding failed")
	// ErrStorage indicates the backing index rejected an operation.
	ErrStorage = errors.New("storage failed")
	// ErrNotFound indicates a record or resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIngestion indicates a document could not be read or chunked.
	ErrIngestion = errors.New("ingestion failed")
)

// FileError records a single file failure within a larger ingestion run.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// IngestReport summarizes an ingestion run. A run that ingests some files
// and fails on others is reported in full rather than aborted.
type IngestReport struct {
	FilesIngested int
	FilesSkipped  int
	ChunksAdded   int
	Failures      []FileError
}

// Err returns an ErrIngestion-wrapped summary when any file failed,
// nil otherwise.
func (r *IngestReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d files failed (first: %v)",
		ErrIngestion, len(r.Failures), r.FilesIngested+len(r.Failures), r.Failures[0].Err)
}
