package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/exocortex/exocortex/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// glog (transitive via ristretto) starts a flush daemon at package
		// init that cannot be stopped; it is not a leak from code under test.
		goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"),
	)
}

// ============================================================================
// Test Helpers
// ============================================================================

// stubEmbedder returns canned vectors for known texts and deterministic
// hash-derived vectors otherwise, so similarity outcomes are controllable
// per test.
type stubEmbedder struct {
	dims    int
	vectors map[string][]float32
	err     error
	errFor  string // substring that triggers err for matching texts only
	delay   time.Duration
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil && (s.errFor == "" || strings.Contains(text, s.errFor)) {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return hashVector(text, s.dims), nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }

// hashVector derives a stable pseudo-random vector from text.
func hashVector(text string, dims int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()
	vec := make([]float32, dims)
	for i := range vec {
		state = state*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(state>>33))/float32(1<<30) - 1
	}
	return vec
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{dims: 8, vectors: map[string][]float32{}}
}

func newTestStore(t *testing.T, emb *stubEmbedder) *Store {
	t.Helper()
	s, err := New(emb, Options{Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func mustStats(t *testing.T, s Index) map[string]int {
	t.Helper()
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	return stats
}

// ============================================================================
// Insert / Query
// ============================================================================

func TestStore_RoundTrip(t *testing.T) {
	emb := newStubEmbedder()
	s := newTestStore(t, emb)
	ctx := context.Background()

	texts := []string{
		"the capital of France is Paris",
		"sourdough needs a long cold proof",
		"goroutines are cheap but not free",
	}
	for i, text := range texts {
		if _, err := s.Insert(ctx, CollectionProjectContext, Record{
			ID:   string(rune('a' + i)),
			Text: text,
		}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	results, err := s.Query(ctx, CollectionProjectContext, texts[1], 3, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Query() returned no results")
	}
	if results[0].Record.Text != texts[1] {
		t.Errorf("top result = %q, want %q", results[0].Record.Text, texts[1])
	}
	for _, r := range results[1:] {
		if r.Score > results[0].Score {
			t.Errorf("top-1 score %v below later score %v", results[0].Score, r.Score)
		}
	}
}

func TestStore_AviationScenario(t *testing.T) {
	emb := newStubEmbedder()
	emb.vectors["I am a licensed pilot"] = []float32{0.95, 0.05, 0, 0, 0, 0, 0, 0}
	emb.vectors["I enjoy cooking italian food"] = []float32{0, 1, 0, 0, 0, 0, 0, 0}
	emb.vectors["My pilot license was renewed last year"] = []float32{0.9, 0.1, 0, 0, 0, 0, 0, 0}
	emb.vectors["aviation"] = []float32{1, 0, 0, 0, 0, 0, 0, 0}

	s := newTestStore(t, emb)
	ctx := context.Background()

	if err := s.Clear(ctx, CollectionIdentity); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	inserts := []struct{ id, text string }{
		{"a", "I am a licensed pilot"},
		{"b", "I enjoy cooking italian food"},
		{"c", "My pilot license was renewed last year"},
	}
	for _, in := range inserts {
		if _, err := s.Insert(ctx, CollectionIdentity, Record{ID: in.id, Text: in.text}); err != nil {
			t.Fatalf("Insert(%s) error = %v", in.id, err)
		}
	}

	results, err := s.Query(ctx, CollectionIdentity, "aviation", 2, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	got := []string{results[0].Record.ID, results[1].Record.ID}
	if got[0] != "a" || got[1] != "c" {
		t.Errorf("result ids = %v, want [a c]", got)
	}
}

func TestStore_TieBreakInsertionOrder(t *testing.T) {
	emb := newStubEmbedder()
	same := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	emb.vectors["first entry"] = same
	emb.vectors["second entry"] = same
	emb.vectors["probe"] = same

	s := newTestStore(t, emb)
	ctx := context.Background()

	if _, err := s.Insert(ctx, CollectionConversations, Record{ID: "first", Text: "first entry"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := s.Insert(ctx, CollectionConversations, Record{ID: "second", Text: "second entry"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	results, err := s.Query(ctx, CollectionConversations, "probe", 2, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Record.ID != "first" {
		t.Errorf("tied results order = [%s %s], want earlier insert first",
			results[0].Record.ID, results[1].Record.ID)
	}
}

func TestStore_OverwriteSameID(t *testing.T) {
	emb := newStubEmbedder()
	s := newTestStore(t, emb)
	ctx := context.Background()

	if _, err := s.Insert(ctx, CollectionIdentity, Record{ID: "fact", Text: "old version"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := s.Insert(ctx, CollectionIdentity, Record{ID: "fact", Text: "new version"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	n, err := s.Count(context.Background(), CollectionIdentity)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Count() = %d, want 1 after overwrite", n)
	}

	results, err := s.Query(ctx, CollectionIdentity, "new version", 1, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 || results[0].Record.Text != "new version" {
		t.Errorf("results = %+v, want single record with new text", results)
	}
}

func TestStore_QueryEmptyCollection(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())

	results, err := s.Query(context.Background(), CollectionIdentity, "anything", 5, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestStore_QueryUnknownCollection(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())

	_, err := s.Query(context.Background(), Collection("scratch"), "anything", 5, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Query() error = %v, want ErrNotFound", err)
	}
}

func TestStore_QueryMetadataFilter(t *testing.T) {
	emb := newStubEmbedder()
	s := newTestStore(t, emb)
	ctx := context.Background()

	records := []Record{
		{ID: "1", Text: "turn one", Metadata: map[string]string{"session_id": "s1"}},
		{ID: "2", Text: "turn two", Metadata: map[string]string{"session_id": "s2"}},
		{ID: "3", Text: "turn three", Metadata: map[string]string{"session_id": "s1"}},
	}
	for _, rec := range records {
		if _, err := s.Insert(ctx, CollectionConversations, rec); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	results, err := s.Query(ctx, CollectionConversations, "turn", 5,
		map[string]string{"session_id": "s1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Record.Metadata["session_id"] != "s1" {
			t.Errorf("record %s session_id = %q, want s1", r.Record.ID, r.Record.Metadata["session_id"])
		}
	}
}

func TestStore_EmbeddingTimeout(t *testing.T) {
	emb := newStubEmbedder()
	emb.delay = 200 * time.Millisecond

	s, err := New(emb, Options{EmbedTimeout: 10 * time.Millisecond, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = s.Query(context.Background(), CollectionIdentity, "slow", 1, nil)
	if err != nil {
		t.Fatalf("Query() on empty collection should short-circuit, got %v", err)
	}

	// Populate first so the query actually embeds.
	emb.delay = 0
	if _, err := s.Insert(context.Background(), CollectionIdentity, Record{ID: "x", Text: "fast insert"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	emb.delay = 200 * time.Millisecond

	_, err = s.Query(context.Background(), CollectionIdentity, "slow", 1, nil)
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("Query() error = %v, want ErrEmbedding", err)
	}

	n, err := s.Count(context.Background(), CollectionIdentity)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d after failed query, want 1 (state unchanged)", n)
	}
}

func TestStore_InsertValidation(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	ctx := context.Background()

	tests := []struct {
		name       string
		collection Collection
		record     Record
		wantErr    error
	}{
		{"empty text", CollectionIdentity, Record{ID: "x", Text: "   "}, ErrStorage},
		{"unknown collection", Collection("nope"), Record{ID: "x", Text: "hi"}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Insert(ctx, tt.collection, tt.record)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Insert() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_InsertGeneratesID(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())

	id, err := s.Insert(context.Background(), CollectionConversations, Record{Text: "anonymous record"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if id == "" {
		t.Error("Insert() returned empty id")
	}
}

// ============================================================================
// Batch / Clear / Stats
// ============================================================================

func TestStore_InsertBatchPartialFailure(t *testing.T) {
	emb := newStubEmbedder()
	emb.err = errors.New("provider refused")
	emb.errFor = "poison"

	s := newTestStore(t, emb)
	ctx := context.Background()

	records := []Record{
		{ID: "ok-1", Text: "clean record one"},
		{ID: "bad", Text: "poison record"},
		{ID: "ok-2", Text: "clean record two"},
	}
	statuses, err := s.InsertBatch(ctx, CollectionProjectContext, records)
	if err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("len(statuses) = %d, want 3", len(statuses))
	}
	if statuses[0].Err != nil || statuses[2].Err != nil {
		t.Errorf("clean records failed: %v, %v", statuses[0].Err, statuses[2].Err)
	}
	if !errors.Is(statuses[1].Err, ErrEmbedding) {
		t.Errorf("statuses[1].Err = %v, want ErrEmbedding", statuses[1].Err)
	}

	n, _ := s.Count(context.Background(), CollectionProjectContext)
	if n != 2 {
		t.Errorf("Count() = %d, want 2 (failure does not roll back siblings)", n)
	}
}

func TestStore_ClearIdempotent(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	ctx := context.Background()

	if _, err := s.Insert(ctx, CollectionIdentity, Record{ID: "x", Text: "something"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	for i := range 2 {
		if err := s.Clear(ctx, CollectionIdentity); err != nil {
			t.Fatalf("Clear() #%d error = %v", i+1, err)
		}
		n, err := s.Count(context.Background(), CollectionIdentity)
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n != 0 {
			t.Errorf("Count() = %d after clear, want 0", n)
		}
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	ctx := context.Background()

	if _, err := s.Insert(ctx, CollectionIdentity, Record{ID: "f1", Text: "a fact"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := s.Insert(ctx, CollectionConversations, Record{ID: "t1", Text: "a turn"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	stats := mustStats(t, s)
	want := map[string]int{"identity": 1, "project_context": 0, "conversations": 1}
	for name, count := range want {
		if stats[name] != count {
			t.Errorf("stats[%q] = %d, want %d", name, stats[name], count)
		}
	}
}

// ============================================================================
// Persistence
// ============================================================================

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	emb := newStubEmbedder()
	ctx := context.Background()

	s1, err := New(emb, Options{DataDir: dir, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s1.Insert(ctx, CollectionIdentity, Record{ID: "persisted", Text: "I persist across restarts"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	s2, err := New(emb, Options{DataDir: dir, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	n, err := s2.Count(context.Background(), CollectionIdentity)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Count() after reopen = %d, want 1", n)
	}

	results, err := s2.Query(ctx, CollectionIdentity, "I persist across restarts", 1, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 || results[0].Record.ID != "persisted" {
		t.Errorf("results = %+v, want the persisted record", results)
	}
}
