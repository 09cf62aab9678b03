// Package postgres implements the memory.Index contract over PostgreSQL
// with the pgvector extension. It suits deployments where several service
// processes share one database server instead of one local data
// directory.
package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/exocortex/exocortex/internal/embedder"
	"github.com/exocortex/exocortex/internal/memory"
)

// Options configures a Store.
type Options struct {
	// EmbedTimeout bounds each embedding call, defaults to
	// memory.DefaultEmbedTimeout.
	EmbedTimeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store keeps records in a single table keyed by (collection, id).
// Similarity search uses the pgvector cosine distance operator; the
// database serializes concurrent writers, so no extra locking is needed.
type Store struct {
	pool         *pgxpool.Pool
	embedder     embedder.Embedder
	logger       *slog.Logger
	embedTimeout time.Duration
}

var _ memory.Index = (*Store)(nil)

// New creates a store over an existing pool and ensures the schema
// exists. The table's vector width follows the embedder's dimensions.
func New(ctx context.Context, pool *pgxpool.Pool, emb embedder.Embedder, opts Options) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.EmbedTimeout
	if timeout <= 0 {
		timeout = memory.DefaultEmbedTimeout
	}

	s := &Store{pool: pool, embedder: emb, logger: logger, embedTimeout: timeout}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_records (
			collection  TEXT        NOT NULL,
			id          TEXT        NOT NULL,
			content     TEXT        NOT NULL,
			embedding   vector(%d)  NOT NULL,
			metadata    JSONB       NOT NULL DEFAULT '{}',
			seq         BIGINT      GENERATED ALWAYS AS IDENTITY,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)`, s.embedder.Dimensions()),
		`CREATE INDEX IF NOT EXISTS memory_records_collection_idx
			ON memory_records (collection)`,
		`CREATE INDEX IF NOT EXISTS memory_records_metadata_idx
			ON memory_records USING gin (metadata)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensuring schema: %v", memory.ErrStorage, err)
		}
	}
	return nil
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("%w: %v", memory.ErrEmbedding, err)
	}
	if len(vec) == 0 {
		return pgvector.Vector{}, fmt.Errorf("%w: provider returned empty vector", memory.ErrEmbedding)
	}
	return pgvector.NewVector(vec), nil
}

func validate(c memory.Collection) error {
	if !c.Valid() {
		return fmt.Errorf("%w: unknown collection %q", memory.ErrNotFound, c)
	}
	return nil
}

func metadataJSON(meta map[string]string) ([]byte, error) {
	if meta == nil {
		meta = map[string]string{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding metadata: %v", memory.ErrStorage, err)
	}
	return data, nil
}

// newID derives an id from the record text and the current nanotime, so
// two inserts of the same text still get distinct ids.
func newID(text string) string {
	sum := sha256.Sum256([]byte(text + strconv.FormatInt(time.Now().UnixNano(), 10)))
	return hex.EncodeToString(sum[:8])
}

// Insert stores or overwrites one record and returns its id.
func (s *Store) Insert(ctx context.Context, c memory.Collection, rec memory.Record) (string, error) {
	if err := validate(c); err != nil {
		return "", err
	}
	if strings.TrimSpace(rec.Text) == "" {
		return "", fmt.Errorf("%w: record text is empty", memory.ErrStorage)
	}
	if rec.ID == "" {
		rec.ID = newID(rec.Text)
	}

	vec, err := s.embed(ctx, rec.Text)
	if err != nil {
		return "", err
	}
	meta, err := metadataJSON(rec.Metadata)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO memory_records (collection, id, content, embedding, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (collection, id) DO UPDATE
		 SET content = EXCLUDED.content,
		     embedding = EXCLUDED.embedding,
		     metadata = EXCLUDED.metadata`,
		string(c), rec.ID, rec.Text, vec, meta)
	if err != nil {
		return "", fmt.Errorf("%w: inserting %q into %s: %v", memory.ErrStorage, rec.ID, c, err)
	}
	return rec.ID, nil
}

// InsertBatch stores records best-effort with per-record statuses.
func (s *Store) InsertBatch(ctx context.Context, c memory.Collection, records []memory.Record) ([]memory.BatchStatus, error) {
	if err := validate(c); err != nil {
		return nil, err
	}

	statuses := make([]memory.BatchStatus, 0, len(records))
	for _, rec := range records {
		id, err := s.Insert(ctx, c, rec)
		if err != nil {
			s.logger.Warn("batch insert record failed",
				"collection", c, "id", rec.ID, "error", err)
		}
		if id == "" {
			id = rec.ID
		}
		statuses = append(statuses, memory.BatchStatus{ID: id, Err: err})
	}
	return statuses, nil
}

// Query returns up to k records nearest to text, highest similarity
// first, ties broken by insertion order.
func (s *Store) Query(ctx context.Context, c memory.Collection, text string, k int, filter map[string]string) ([]memory.Result, error) {
	if err := validate(c); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	meta, err := metadataJSON(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM memory_records
		 WHERE collection = $2 AND metadata @> $3
		 ORDER BY similarity DESC, seq ASC
		 LIMIT $4`,
		vec, string(c), meta, k)
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %v", memory.ErrStorage, c, err)
	}
	defer rows.Close()

	var results []memory.Result
	for rows.Next() {
		var (
			rec        memory.Record
			metaRaw    []byte
			similarity float64
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &metaRaw, &similarity); err != nil {
			return nil, fmt.Errorf("%w: scanning result: %v", memory.ErrStorage, err)
		}
		if err := json.Unmarshal(metaRaw, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decoding metadata for %s: %v", memory.ErrStorage, rec.ID, err)
		}
		results = append(results, memory.Result{Record: rec, Score: float32(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading results: %v", memory.ErrStorage, err)
	}
	return results, nil
}

// List returns matching records in insertion order, oldest first.
func (s *Store) List(ctx context.Context, c memory.Collection, filter map[string]string) ([]memory.Record, error) {
	if err := validate(c); err != nil {
		return nil, err
	}
	meta, err := metadataJSON(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, content, metadata
		 FROM memory_records
		 WHERE collection = $1 AND metadata @> $2
		 ORDER BY seq ASC`,
		string(c), meta)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", memory.ErrStorage, c, err)
	}
	defer rows.Close()

	var records []memory.Record
	for rows.Next() {
		var (
			rec     memory.Record
			metaRaw []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &metaRaw); err != nil {
			return nil, fmt.Errorf("%w: scanning record: %v", memory.ErrStorage, err)
		}
		if err := json.Unmarshal(metaRaw, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decoding metadata for %s: %v", memory.ErrStorage, rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading records: %v", memory.ErrStorage, err)
	}
	return records, nil
}

// Clear removes every record in the collection.
func (s *Store) Clear(ctx context.Context, c memory.Collection) error {
	if err := validate(c); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM memory_records WHERE collection = $1`, string(c)); err != nil {
		return fmt.Errorf("%w: clearing %s: %v", memory.ErrStorage, c, err)
	}
	return nil
}

// Count returns the number of records in the collection.
func (s *Store) Count(ctx context.Context, c memory.Collection) (int, error) {
	if err := validate(c); err != nil {
		return 0, err
	}
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM memory_records WHERE collection = $1`, string(c)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: counting %s: %v", memory.ErrStorage, c, err)
	}
	return n, nil
}

// Stats returns record counts keyed by collection wire name.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int, len(memory.Collections))
	for _, c := range memory.Collections {
		stats[string(c)] = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT collection, count(*) FROM memory_records GROUP BY collection`)
	if err != nil {
		return nil, fmt.Errorf("%w: reading stats: %v", memory.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("%w: scanning stats: %v", memory.ErrStorage, err)
		}
		stats[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading stats: %v", memory.ErrStorage, err)
	}
	return stats, nil
}
