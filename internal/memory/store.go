package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	chromem "github.com/philippgille/chromem-go"

	"github.com/exocortex/exocortex/internal/embedder"
)

// DefaultEmbedTimeout bounds a single embedding provider call.
const DefaultEmbedTimeout = 30 * time.Second

// seqKey is the metadata key carrying the insertion sequence number used
// for deterministic tie-breaking between equally scored results.
const seqKey = "seq"

// Record is one stored memory entry.
type Record struct {
	// ID is unique within its collection. Empty means generate one.
	ID       string
	Text     string
	Metadata map[string]string
}

// Result pairs a retrieved record with its similarity score in [0, 1].
type Result struct {
	Record Record
	Score  float32
}

// BatchStatus reports the outcome of one record within a batch insert.
type BatchStatus struct {
	ID  string
	Err error
}

// Options configures a Store.
type Options struct {
	// DataDir is the persistence root. Empty selects a transient
	// in-memory index, used by tests.
	DataDir string
	// Compress gzips persisted records.
	Compress bool
	// EmbedTimeout bounds each embedding call, defaults to
	// DefaultEmbedTimeout.
	EmbedTimeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store is the vector index over the three fixed collections, backed by an
// embedded chromem-go database. All persistence goes through it; no other
// component touches the data directory.
//
// A Store is safe for concurrent use. When persistent, mutations take a
// file lock so multiple processes sharing one data directory cannot
// interleave writes.
type Store struct {
	db       *chromem.DB
	embedder embedder.Embedder
	logger   *slog.Logger

	mu   sync.RWMutex
	cols map[Collection]*chromem.Collection

	// seq is seeded with the wall clock at open so records written by a
	// later process sort after records from an earlier one.
	seq atomic.Int64

	fileLock     *flock.Flock
	embedTimeout time.Duration
}

// New opens (or creates) a store. The embedder is required.
func New(emb embedder.Embedder, opts Options) (*Store, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.EmbedTimeout
	if timeout <= 0 {
		timeout = DefaultEmbedTimeout
	}

	s := &Store{
		embedder:     emb,
		logger:       logger,
		cols:         make(map[Collection]*chromem.Collection, len(Collections)),
		embedTimeout: timeout,
	}
	s.seq.Store(time.Now().UnixNano())

	if opts.DataDir != "" {
		db, err := chromem.NewPersistentDB(opts.DataDir, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening index at %s: %v", ErrStorage, opts.DataDir, err)
		}
		s.db = db
		s.fileLock = flock.New(filepath.Join(opts.DataDir, ".write.lock"))
	} else {
		s.db = chromem.NewDB()
	}

	for _, c := range Collections {
		col, err := s.db.GetOrCreateCollection(string(c), nil, s.embeddingFunc())
		if err != nil {
			return nil, fmt.Errorf("%w: creating collection %s: %v", ErrStorage, c, err)
		}
		s.cols[c] = col
	}

	logger.Debug("memory store opened",
		"data_dir", opts.DataDir,
		"dimensions", emb.Dimensions())
	return s, nil
}

// embeddingFunc bridges the Embedder to chromem's callback contract.
func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embed(ctx, text)
	}
}

// embed runs one provider call under the configured timeout. Provider
// failures, including deadline expiry, surface as ErrEmbedding.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned empty vector", ErrEmbedding)
	}
	return vec, nil
}

func (s *Store) collection(c Collection) (*chromem.Collection, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrNotFound, c)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cols[c], nil
}

// lock serializes cross-process writes when the store is persistent.
func (s *Store) lock() (unlock func(), err error) {
	if s.fileLock == nil {
		return func() {}, nil
	}
	if err := s.fileLock.Lock(); err != nil {
		return nil, fmt.Errorf("%w: acquiring write lock: %v", ErrStorage, err)
	}
	return func() {
		if err := s.fileLock.Unlock(); err != nil {
			s.logger.Warn("releasing write lock failed", "error", err)
		}
	}, nil
}

// newID derives an id from the record text and the current nanotime, so
// two inserts of the same text still get distinct ids.
func newID(text string) string {
	sum := sha256.Sum256([]byte(text + strconv.FormatInt(time.Now().UnixNano(), 10)))
	return hex.EncodeToString(sum[:8])
}

// Insert stores or overwrites one record and returns its id. Writing the
// same id again replaces the previous record.
func (s *Store) Insert(ctx context.Context, c Collection, rec Record) (string, error) {
	col, err := s.collection(c)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(rec.Text) == "" {
		return "", fmt.Errorf("%w: record text is empty", ErrStorage)
	}
	if rec.ID == "" {
		rec.ID = newID(rec.Text)
	}

	vec, err := s.embed(ctx, rec.Text)
	if err != nil {
		return "", err
	}

	unlock, err := s.lock()
	if err != nil {
		return "", err
	}
	defer unlock()

	if err := col.AddDocument(ctx, s.document(rec, vec)); err != nil {
		return "", fmt.Errorf("%w: inserting %q into %s: %v", ErrStorage, rec.ID, c, err)
	}
	return rec.ID, nil
}

// InsertBatch stores records best-effort: a failed record does not roll
// back earlier ones. The returned statuses are positional with records.
func (s *Store) InsertBatch(ctx context.Context, c Collection, records []Record) ([]BatchStatus, error) {
	col, err := s.collection(c)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	statuses := make([]BatchStatus, 0, len(records))
	for i := range records {
		rec := records[i]
		status := BatchStatus{ID: rec.ID}
		switch {
		case strings.TrimSpace(rec.Text) == "":
			status.Err = fmt.Errorf("%w: record text is empty", ErrStorage)
		default:
			if rec.ID == "" {
				rec.ID = newID(rec.Text)
				status.ID = rec.ID
			}
			vec, err := s.embed(ctx, rec.Text)
			if err != nil {
				status.Err = err
			} else if err := col.AddDocument(ctx, s.document(rec, vec)); err != nil {
				status.Err = fmt.Errorf("%w: inserting %q into %s: %v", ErrStorage, rec.ID, c, err)
			}
		}
		if status.Err != nil {
			s.logger.Warn("batch insert record failed",
				"collection", c, "id", status.ID, "error", status.Err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (s *Store) document(rec Record, vec []float32) chromem.Document {
	meta := make(map[string]string, len(rec.Metadata)+1)
	for k, v := range rec.Metadata {
		meta[k] = v
	}
	meta[seqKey] = strconv.FormatInt(s.seq.Add(1), 10)
	return chromem.Document{
		ID:        rec.ID,
		Metadata:  meta,
		Embedding: vec,
		Content:   rec.Text,
	}
}

// Query returns up to k records nearest to text, highest similarity first.
// Ties are broken by insertion order, earlier record first. filter
// restricts results to records whose metadata matches every given pair.
// An empty collection yields an empty slice.
func (s *Store) Query(ctx context.Context, c Collection, text string, k int, filter map[string]string) ([]Result, error) {
	col, err := s.collection(c)
	if err != nil {
		return nil, err
	}
	if k <= 0 || col.Count() == 0 {
		return nil, nil
	}
	if k > col.Count() {
		k = col.Count()
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the candidate set, and a
	// metadata filter can shrink that set below Count(). Retry smaller
	// until the query fits.
	var raw []chromem.Result
	for k > 0 {
		raw, err = col.QueryEmbedding(ctx, vec, k, filter, nil)
		if err != nil {
			if strings.Contains(err.Error(), "nResults") {
				k--
				continue
			}
			return nil, fmt.Errorf("%w: querying %s: %v", ErrStorage, c, err)
		}
		break
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		meta := make(map[string]string, len(r.Metadata))
		for key, v := range r.Metadata {
			if key == seqKey {
				continue
			}
			meta[key] = v
		}
		results = append(results, Result{
			Record: Record{ID: r.ID, Text: r.Content, Metadata: meta},
			Score:  r.Similarity,
		})
	}

	seqs := make(map[string]int64, len(raw))
	for _, r := range raw {
		if n, err := strconv.ParseInt(r.Metadata[seqKey], 10, 64); err == nil {
			seqs[r.ID] = n
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return seqs[results[i].Record.ID] < seqs[results[j].Record.ID]
	})
	return results, nil
}

// List returns every record matching filter in insertion order, oldest
// first. The backing index only exposes similarity search, so this runs
// a full-size query under a fixed probe embedding and ignores the
// scores.
func (s *Store) List(ctx context.Context, c Collection, filter map[string]string) ([]Record, error) {
	col, err := s.collection(c)
	if err != nil {
		return nil, err
	}
	total := col.Count()
	if total == 0 {
		return nil, nil
	}

	vec, err := s.embed(ctx, "*")
	if err != nil {
		return nil, err
	}

	var raw []chromem.Result
	for k := total; k > 0; k-- {
		raw, err = col.QueryEmbedding(ctx, vec, k, filter, nil)
		if err != nil {
			if strings.Contains(err.Error(), "nResults") {
				continue
			}
			return nil, fmt.Errorf("%w: listing %s: %v", ErrStorage, c, err)
		}
		break
	}

	sort.Slice(raw, func(i, j int) bool {
		si, _ := strconv.ParseInt(raw[i].Metadata[seqKey], 10, 64)
		sj, _ := strconv.ParseInt(raw[j].Metadata[seqKey], 10, 64)
		return si < sj
	})

	records := make([]Record, 0, len(raw))
	for _, r := range raw {
		meta := make(map[string]string, len(r.Metadata))
		for key, v := range r.Metadata {
			if key == seqKey {
				continue
			}
			meta[key] = v
		}
		records = append(records, Record{ID: r.ID, Text: r.Content, Metadata: meta})
	}
	return records, nil
}

// Clear removes every record in the collection. Clearing an already empty
// collection is a no-op.
func (s *Store) Clear(ctx context.Context, c Collection) error {
	if !c.Valid() {
		return fmt.Errorf("%w: unknown collection %q", ErrNotFound, c)
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(string(c)); err != nil {
		return fmt.Errorf("%w: clearing %s: %v", ErrStorage, c, err)
	}
	col, err := s.db.GetOrCreateCollection(string(c), nil, s.embeddingFunc())
	if err != nil {
		return fmt.Errorf("%w: recreating %s: %v", ErrStorage, c, err)
	}
	s.cols[c] = col
	s.logger.Info("collection cleared", "collection", c)
	return nil
}

// Count returns the number of records in the collection.
func (s *Store) Count(_ context.Context, c Collection) (int, error) {
	col, err := s.collection(c)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Stats returns record counts keyed by collection wire name.
func (s *Store) Stats(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int, len(s.cols))
	for c, col := range s.cols {
		stats[string(c)] = col.Count()
	}
	return stats, nil
}
