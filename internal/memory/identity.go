package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Facts maps a fact category (biographical, preferences, expertise,
// projects) to its fact strings. Every fact routes to the identity
// collection; no other collection accepts categorized facts.
type Facts map[string][]string

// LoadFacts reads a category-to-facts JSON file.
func LoadFacts(path string) (Facts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: identity facts file %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: reading identity facts: %v", ErrIngestion, err)
	}
	var facts Facts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("%w: parsing identity facts: %v", ErrIngestion, err)
	}
	return facts, nil
}

// IdentityLoader seeds the identity collection from a curated fact list.
type IdentityLoader struct {
	store  Index
	logger *slog.Logger
}

// NewIdentityLoader creates a loader over the store.
func NewIdentityLoader(store Index, logger *slog.Logger) *IdentityLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityLoader{store: store, logger: logger}
}

// IsPopulated reports whether the identity collection holds any records.
func (l *IdentityLoader) IsPopulated(ctx context.Context) (bool, error) {
	n, err := l.store.Count(ctx, CollectionIdentity)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Populate inserts one record per fact and returns how many were
// inserted. When the collection is already populated and force is false
// it does nothing and returns 0, which makes repeated bootstrap calls
// idempotent. force clears the collection and reloads everything.
//
// Record ids are "category#ordinal", so reloading the same fact list
// overwrites rather than duplicates.
func (l *IdentityLoader) Populate(ctx context.Context, facts Facts, force bool) (int, error) {
	if !force {
		populated, err := l.IsPopulated(ctx)
		if err != nil {
			return 0, err
		}
		if populated {
			l.logger.Info("identity collection already populated, skipping")
			return 0, nil
		}
	}
	if len(facts) == 0 {
		l.logger.Warn("no identity facts to load")
		return 0, nil
	}

	if force {
		if err := l.store.Clear(ctx, CollectionIdentity); err != nil {
			return 0, err
		}
	}

	categories := make([]string, 0, len(facts))
	for cat := range facts {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var records []Record
	for _, cat := range categories {
		for i, fact := range facts[cat] {
			records = append(records, Record{
				ID:   fmt.Sprintf("%s#%d", cat, i),
				Text: fact,
				Metadata: map[string]string{
					"category": cat,
					"ordinal":  strconv.Itoa(i),
					"source":   "identity_facts",
				},
			})
		}
	}

	inserted := 0
	statuses, err := l.store.InsertBatch(ctx, CollectionIdentity, records)
	if err != nil {
		return 0, err
	}
	var firstErr error
	for _, st := range statuses {
		if st.Err != nil {
			if firstErr == nil {
				firstErr = st.Err
			}
			continue
		}
		inserted++
	}
	if inserted == 0 && firstErr != nil {
		return 0, firstErr
	}

	l.logger.Info("identity facts loaded", "count", inserted)
	return inserted, nil
}

// PopulateFromFile is Populate fed by a JSON facts file. A missing file
// is reported as ErrNotFound.
func (l *IdentityLoader) PopulateFromFile(ctx context.Context, path string, force bool) (int, error) {
	facts, err := LoadFacts(filepath.Clean(path))
	if err != nil {
		return 0, err
	}
	return l.Populate(ctx, facts, force)
}
