package memory

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// insertBatchSize bounds how many chunks go to the index per batch call.
const insertBatchSize = 100

// IngestOptions controls a single-file or single-text ingestion.
type IngestOptions struct {
	// SourceName is the logical source label used to build chunk ids.
	// Re-ingesting with the same name overwrites instead of duplicating.
	// Defaults to the file's base name.
	SourceName string
	// ClearExisting empties the target collection before inserting.
	ClearExisting bool
}

// DirOptions controls a directory walk.
type DirOptions struct {
	// Extensions whitelists file suffixes such as ".md". Empty matches
	// every regular file.
	Extensions []string
	// Recursive descends into subdirectories.
	Recursive bool
	// ClearExisting empties the target collection before the walk.
	ClearExisting bool
}

// Ingester loads documents into a collection: read, chunk, embed, insert.
type Ingester struct {
	store  Index
	spec   ChunkSpec
	logger *slog.Logger
}

// NewIngester creates an ingester over the store. A zero spec selects
// DefaultChunkSpec.
func NewIngester(store Index, spec ChunkSpec, logger *slog.Logger) *Ingester {
	if spec == (ChunkSpec{}) {
		spec = DefaultChunkSpec
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{store: store, spec: spec, logger: logger}
}

// IngestText chunks and inserts one in-memory document under the given
// source name. Chunk ids are "source#index", so re-ingesting the same
// source overwrites previous chunks. Returns the number of chunks
// inserted.
func (g *Ingester) IngestText(ctx context.Context, c Collection, source, text string) (int, error) {
	return g.ingest(ctx, c, source, text, nil)
}

// IngestFile reads and ingests one file. Returns the number of chunks
// inserted.
func (g *Ingester) IngestFile(ctx context.Context, c Collection, path string, opts IngestOptions) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: reading %s: %v", ErrIngestion, path, err)
	}

	source := opts.SourceName
	if source == "" {
		source = filepath.Base(path)
	}
	if opts.ClearExisting {
		if err := g.store.Clear(ctx, c); err != nil {
			return 0, err
		}
	}

	extra := map[string]string{"file_path": path}
	return g.ingest(ctx, c, source, string(data), extra)
}

// IngestDirectory walks dir and ingests every matching file. A single
// file's failure is recorded in the report and the walk continues.
// Cancellation is honored between files, so records already inserted
// stay committed.
func (g *Ingester) IngestDirectory(ctx context.Context, c Collection, dir string, opts DirOptions) (*IngestReport, error) {
	if opts.ClearExisting {
		if err := g.store.Clear(ctx, c); err != nil {
			return nil, err
		}
	}

	report := &IngestReport{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%w: walking %s: %v", ErrIngestion, path, err)
		}
		if d.IsDir() {
			if !opts.Recursive && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !matchesExtension(path, opts.Extensions) {
			report.FilesSkipped++
			return nil
		}

		count, ferr := g.IngestFile(ctx, c, path, IngestOptions{})
		if ferr != nil {
			g.logger.Warn("file ingestion failed, skipping",
				"path", path, "error", ferr)
			report.Failures = append(report.Failures, FileError{Path: path, Err: ferr})
			return nil
		}
		report.FilesIngested++
		report.ChunksAdded += count
		return nil
	})
	if err != nil {
		return report, err
	}

	g.logger.Info("directory ingested",
		"dir", dir,
		"collection", c,
		"files", report.FilesIngested,
		"chunks", report.ChunksAdded,
		"failed", len(report.Failures))
	return report, nil
}

func (g *Ingester) ingest(ctx context.Context, c Collection, source, text string, extra map[string]string) (int, error) {
	if strings.TrimSpace(source) == "" {
		return 0, fmt.Errorf("%w: source name is empty", ErrIngestion)
	}

	chunks, err := Chunk(text, g.spec)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	ingestedAt := time.Now().UTC().Format(time.RFC3339)
	records := make([]Record, len(chunks))
	for i, chunk := range chunks {
		meta := map[string]string{
			"source":       source,
			"chunk_index":  strconv.Itoa(i),
			"total_chunks": strconv.Itoa(len(chunks)),
			"ingested_at":  ingestedAt,
		}
		for k, v := range extra {
			meta[k] = v
		}
		records[i] = Record{
			ID:       fmt.Sprintf("%s#%d", source, i),
			Text:     chunk,
			Metadata: meta,
		}
	}

	inserted := 0
	var firstErr error
	for start := 0; start < len(records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(records))
		statuses, err := g.store.InsertBatch(ctx, c, records[start:end])
		if err != nil {
			return inserted, err
		}
		for _, st := range statuses {
			if st.Err != nil {
				if firstErr == nil {
					firstErr = st.Err
				}
				continue
			}
			inserted++
		}
	}
	if firstErr != nil && inserted == 0 {
		return 0, firstErr
	}
	if firstErr != nil {
		g.logger.Warn("partial ingestion",
			"source", source, "inserted", inserted, "total", len(records), "error", firstErr)
	}

	g.logger.Debug("source ingested",
		"source", source, "collection", c, "chunks", inserted)
	return inserted, nil
}

// matchesExtension reports whether path's suffix is whitelisted.
func matchesExtension(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
