package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Turn is one completed dialogue exchange. Turns are immutable once
// written, only appended and later retrieved.
type Turn struct {
	ID        string
	SessionID string
	User      string
	Assistant string
	Timestamp time.Time
}

// ConversationLogger appends completed exchanges to the conversations
// collection.
type ConversationLogger struct {
	store  Index
	logger *slog.Logger
	now    func() time.Time
}

// NewConversationLogger creates a logger over the store.
func NewConversationLogger(store Index, logger *slog.Logger) *ConversationLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationLogger{store: store, logger: logger, now: time.Now}
}

// SaveTurn records one user/assistant exchange and returns the record id.
// sessionID may be empty for sessionless callers.
func (l *ConversationLogger) SaveTurn(ctx context.Context, userMsg, assistantMsg, sessionID string) (string, error) {
	if strings.TrimSpace(userMsg) == "" && strings.TrimSpace(assistantMsg) == "" {
		return "", fmt.Errorf("%w: empty conversation turn", ErrStorage)
	}

	ts := l.now().UTC()
	rec := Record{
		ID:   uuid.NewString(),
		Text: fmt.Sprintf("User: %s\nAssistant: %s", userMsg, assistantMsg),
		Metadata: map[string]string{
			"kind":      "conversation_turn",
			"timestamp": ts.Format(time.RFC3339Nano),
		},
	}
	if sessionID != "" {
		rec.Metadata["session_id"] = sessionID
	}

	id, err := l.store.Insert(ctx, CollectionConversations, rec)
	if err != nil {
		return "", err
	}
	l.logger.Debug("conversation turn saved", "id", id, "session_id", sessionID)
	return id, nil
}

// Recent returns up to n turns, most recent first, optionally restricted
// to one session.
func (l *ConversationLogger) Recent(ctx context.Context, n int, sessionID string) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	var filter map[string]string
	if sessionID != "" {
		filter = map[string]string{"session_id": sessionID}
	}
	records, err := l.store.List(ctx, CollectionConversations, filter)
	if err != nil {
		return nil, err
	}

	// List is oldest first, walk backwards for recency.
	turns := make([]Turn, 0, n)
	for i := len(records) - 1; i >= 0 && len(turns) < n; i-- {
		turns = append(turns, recordToTurn(records[i]))
	}
	return turns, nil
}

func recordToTurn(rec Record) Turn {
	t := Turn{
		ID:        rec.ID,
		SessionID: rec.Metadata["session_id"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, rec.Metadata["timestamp"]); err == nil {
		t.Timestamp = ts
	}
	user, assistant, found := strings.Cut(rec.Text, "\nAssistant: ")
	if found {
		t.User = strings.TrimPrefix(user, "User: ")
		t.Assistant = assistant
	} else {
		t.User = rec.Text
	}
	return t
}
