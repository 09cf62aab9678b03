package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/exocortex/exocortex/internal/tokens"
)

const (
	// DefaultTopK is the per-collection retrieval depth.
	DefaultTopK = 5
	// DefaultContextBudget is the fallback token budget when the caller
	// passes a non-positive one.
	DefaultContextBudget = 2000
	// DefaultConversationBudget is the smaller fallback for
	// conversation-only assembly, which tends to be appended to other
	// context rather than standing alone.
	DefaultConversationBudget = 1000

	// recordSeparator sits between packed records.
	recordSeparator = "\n\n---\n\n"
)

// Assembler builds token-budgeted context strings out of the collections.
//
// Packing is priority-first: identity, then project context, then
// conversations. Within a collection, records are ordered by descending
// similarity. Identity facts are short and always relevant, so they are
// drained before verbose documentation or conversational noise can crowd
// them out, regardless of relative similarity scores. Scores are never
// compared across collections.
type Assembler struct {
	store   Index
	counter *tokens.Counter
	logger  *slog.Logger
	topK    int
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithTopK sets the per-collection retrieval depth, default DefaultTopK.
func WithTopK(k int) AssemblerOption {
	return func(a *Assembler) {
		if k > 0 {
			a.topK = k
		}
	}
}

// NewAssembler creates an assembler over the store.
func NewAssembler(store Index, counter *tokens.Counter, logger *slog.Logger, opts ...AssemblerOption) *Assembler {
	if counter == nil {
		counter = tokens.NewCounter()
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Assembler{store: store, counter: counter, logger: logger, topK: DefaultTopK}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FullContext assembles context from all three collections.
func (a *Assembler) FullContext(ctx context.Context, query string, maxTokens int) (string, error) {
	return a.assemble(ctx, query, maxTokens, Collections)
}

// RelevantContext assembles factual context only, skipping conversation
// history. Used for queries where past dialogue would just be noise.
func (a *Assembler) RelevantContext(ctx context.Context, query string, maxTokens int) (string, error) {
	return a.assemble(ctx, query, maxTokens,
		[]Collection{CollectionIdentity, CollectionProjectContext})
}

// ConversationContext assembles context from past conversations only.
func (a *Assembler) ConversationContext(ctx context.Context, query string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultConversationBudget
	}
	return a.assemble(ctx, query, maxTokens,
		[]Collection{CollectionConversations})
}

// assemble queries cols in the given priority order and greedily packs
// labeled results until the next record would exceed the budget. It
// returns an empty string, not an error, when nothing fits or nothing
// matches.
func (a *Assembler) assemble(ctx context.Context, query string, maxTokens int, cols []Collection) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultContextBudget
	}

	var (
		packed     string
		firstErr   error
		anyResults bool
	)
	seen := make(map[string]bool)
pack:
	for _, c := range cols {
		results, err := a.store.Query(ctx, c, query, a.topK, nil)
		if err != nil {
			a.logger.Warn("collection query failed during assembly",
				"collection", c, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(results) > 0 {
			anyResults = true
		}
		for _, r := range results {
			// The same text ingested into two collections shows up once.
			if seen[r.Record.Text] {
				continue
			}
			seen[r.Record.Text] = true
			block := fmt.Sprintf("[%s] %s", c, r.Record.Text)
			candidate := block
			if packed != "" {
				candidate = packed + recordSeparator + block
			}
			if a.counter.Count(candidate) > maxTokens {
				break pack
			}
			packed = candidate
		}
	}

	// A failure is surfaced only when it could not be compensated for:
	// nothing was packed and no collection yielded a single result.
	// Empty collections answer without embedding, so an outage with one
	// populated collection must still report, not pass as emptiness.
	if packed == "" && !anyResults && firstErr != nil {
		return "", firstErr
	}
	return packed, nil
}
