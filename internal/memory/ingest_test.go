package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/exocortex/exocortex/internal/log"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestIngester_IngestFile(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	ing := NewIngester(s, ChunkSpec{Size: 50, Overlap: 0}, log.NewNop())
	ctx := context.Background()

	content := "First paragraph about the design.\n\nSecond paragraph about the rollout.\n\nThird paragraph about testing."
	path := writeTestFile(t, t.TempDir(), "notes.md", content)

	count, err := ing.IngestFile(ctx, CollectionProjectContext, path, IngestOptions{})
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if count < 2 {
		t.Fatalf("count = %d, want multiple chunks", count)
	}

	stored, err := s.Count(context.Background(), CollectionProjectContext)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if stored != count {
		t.Errorf("stored = %d, want %d", stored, count)
	}

	records, err := s.List(ctx, CollectionProjectContext, nil)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, rec := range records {
		if !strings.HasPrefix(rec.ID, "notes.md#") {
			t.Errorf("record id = %q, want notes.md#<index>", rec.ID)
		}
		if rec.Metadata["source"] != "notes.md" {
			t.Errorf("source metadata = %q, want notes.md", rec.Metadata["source"])
		}
		if rec.Metadata["chunk_index"] == "" || rec.Metadata["total_chunks"] == "" {
			t.Errorf("record %s missing chunk metadata: %v", rec.ID, rec.Metadata)
		}
	}
}

func TestIngester_IdempotentReingestion(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	ing := NewIngester(s, ChunkSpec{Size: 50, Overlap: 0}, log.NewNop())
	ctx := context.Background()

	content := "A paragraph that will be chunked.\n\nAnother paragraph to fill a second chunk."
	path := writeTestFile(t, t.TempDir(), "doc.md", content)

	first, err := ing.IngestFile(ctx, CollectionProjectContext, path, IngestOptions{})
	if err != nil {
		t.Fatalf("IngestFile() #1 error = %v", err)
	}
	second, err := ing.IngestFile(ctx, CollectionProjectContext, path, IngestOptions{})
	if err != nil {
		t.Fatalf("IngestFile() #2 error = %v", err)
	}
	if first != second {
		t.Errorf("chunk counts differ across runs: %d vs %d", first, second)
	}

	stored, err := s.Count(context.Background(), CollectionProjectContext)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if stored != first {
		t.Errorf("stored = %d after re-ingestion, want %d (no duplicates)", stored, first)
	}
}

func TestIngester_IngestFileMissing(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	ing := NewIngester(s, ChunkSpec{}, log.NewNop())

	_, err := ing.IngestFile(context.Background(), CollectionProjectContext,
		filepath.Join(t.TempDir(), "absent.md"), IngestOptions{})
	if !errors.Is(err, ErrIngestion) {
		t.Errorf("IngestFile() error = %v, want ErrIngestion", err)
	}
}

func TestIngester_IngestDirectory(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	ing := NewIngester(s, ChunkSpec{Size: 200, Overlap: 0}, log.NewNop())
	ctx := context.Background()

	dir := t.TempDir()
	writeTestFile(t, dir, "a.md", "Documentation about module a.")
	writeTestFile(t, dir, "b.md", "Documentation about module b.")
	writeTestFile(t, dir, "c.txt", "Plain text that the extension filter skips.")

	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeTestFile(t, sub, "d.md", "Nested documentation, excluded without recursion.")

	report, err := ing.IngestDirectory(ctx, CollectionProjectContext, dir, DirOptions{
		Extensions: []string{".md"},
	})
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}
	if report.FilesIngested != 2 {
		t.Errorf("FilesIngested = %d, want 2", report.FilesIngested)
	}
	if report.FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", report.FilesSkipped)
	}
	if len(report.Failures) != 0 {
		t.Errorf("Failures = %v, want none", report.Failures)
	}
	if report.Err() != nil {
		t.Errorf("Err() = %v, want nil", report.Err())
	}

	recursive, err := ing.IngestDirectory(ctx, CollectionProjectContext, dir, DirOptions{
		Extensions: []string{".md"},
		Recursive:  true,
	})
	if err != nil {
		t.Fatalf("IngestDirectory() recursive error = %v", err)
	}
	if recursive.FilesIngested != 3 {
		t.Errorf("recursive FilesIngested = %d, want 3", recursive.FilesIngested)
	}
}

func TestIngester_DirectoryContinuesPastFailedFile(t *testing.T) {
	emb := newStubEmbedder()
	emb.err = errors.New("provider refused")
	emb.errFor = "POISON"

	s := newTestStore(t, emb)
	ing := NewIngester(s, ChunkSpec{Size: 200, Overlap: 0}, log.NewNop())

	dir := t.TempDir()
	writeTestFile(t, dir, "good.md", "A perfectly fine document.")
	writeTestFile(t, dir, "bad.md", "POISON content the provider rejects.")

	report, err := ing.IngestDirectory(context.Background(), CollectionProjectContext, dir, DirOptions{})
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}
	if report.FilesIngested != 1 {
		t.Errorf("FilesIngested = %d, want 1", report.FilesIngested)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(report.Failures))
	}
	if !strings.HasSuffix(report.Failures[0].Path, "bad.md") {
		t.Errorf("failed path = %q, want bad.md", report.Failures[0].Path)
	}
	if !errors.Is(report.Err(), ErrIngestion) {
		t.Errorf("Err() = %v, want ErrIngestion", report.Err())
	}
}

func TestIngester_DirectoryCancellation(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	ing := NewIngester(s, ChunkSpec{}, log.NewNop())

	dir := t.TempDir()
	writeTestFile(t, dir, "a.md", "Some content.")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ing.IngestDirectory(ctx, CollectionProjectContext, dir, DirOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("IngestDirectory() error = %v, want context.Canceled", err)
	}
}
