package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/exocortex/exocortex/internal/log"
)

func TestConversationLogger_SaveTurn(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	cl := NewConversationLogger(s, log.NewNop())
	ctx := context.Background()

	id, err := cl.SaveTurn(ctx, "What is a VOR?", "A ground-based radio navigation aid.", "s1")
	if err != nil {
		t.Fatalf("SaveTurn() error = %v", err)
	}
	if id == "" {
		t.Fatal("SaveTurn() returned empty id")
	}

	records, err := s.List(ctx, CollectionConversations, nil)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	rec := records[0]
	if !strings.HasPrefix(rec.Text, "User: What is a VOR?\nAssistant: ") {
		t.Errorf("record text = %q, want combined User/Assistant format", rec.Text)
	}
	if rec.Metadata["session_id"] != "s1" {
		t.Errorf("session_id = %q, want s1", rec.Metadata["session_id"])
	}
	if _, err := time.Parse(time.RFC3339Nano, rec.Metadata["timestamp"]); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", rec.Metadata["timestamp"], err)
	}
}

func TestConversationLogger_SaveTurnEmpty(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	cl := NewConversationLogger(s, log.NewNop())

	if _, err := cl.SaveTurn(context.Background(), "  ", "", "s1"); !errors.Is(err, ErrStorage) {
		t.Errorf("SaveTurn() error = %v, want ErrStorage", err)
	}
}

func TestConversationLogger_RecentOrdering(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	cl := NewConversationLogger(s, log.NewNop())
	ctx := context.Background()

	for i := range 5 {
		q := fmt.Sprintf("question %d", i)
		if _, err := cl.SaveTurn(ctx, q, "an answer", ""); err != nil {
			t.Fatalf("SaveTurn(%d) error = %v", i, err)
		}
	}

	turns, err := cl.Recent(ctx, 3, "")
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	for i, wantQ := range []string{"question 4", "question 3", "question 2"} {
		if turns[i].User != wantQ {
			t.Errorf("turns[%d].User = %q, want %q", i, turns[i].User, wantQ)
		}
	}
}

func TestConversationLogger_RecentSessionFilter(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	cl := NewConversationLogger(s, log.NewNop())
	ctx := context.Background()

	for i := range 4 {
		session := "s1"
		if i%2 == 1 {
			session = "s2"
		}
		if _, err := cl.SaveTurn(ctx, fmt.Sprintf("q%d", i), "a", session); err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}

	turns, err := cl.Recent(ctx, 10, "s1")
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	for _, turn := range turns {
		if turn.SessionID != "s1" {
			t.Errorf("turn %s session = %q, want s1", turn.ID, turn.SessionID)
		}
	}
}

func TestConversationLogger_RecentEmpty(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())
	cl := NewConversationLogger(s, log.NewNop())

	turns, err := cl.Recent(context.Background(), 5, "")
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("len(turns) = %d, want 0", len(turns))
	}
}
