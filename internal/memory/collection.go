package memory

import "fmt"

// Collection identifies one of the three fixed record namespaces.
type Collection string

const (
	// CollectionIdentity holds curated facts about the assistant itself.
	CollectionIdentity Collection = "identity"
	// CollectionProjectContext holds chunked project documentation.
	CollectionProjectContext Collection = "project_context"
	// CollectionConversations holds logged dialogue turns.
	CollectionConversations Collection = "conversations"
)

// Collections lists all collections in assembly priority order,
// highest priority first.
var Collections = []Collection{
	CollectionIdentity,
	CollectionProjectContext,
	CollectionConversations,
}

// ParseCollection validates a wire name and returns the Collection.
func ParseCollection(name string) (Collection, error) {
	switch Collection(name) {
	case CollectionIdentity, CollectionProjectContext, CollectionConversations:
		return Collection(name), nil
	default:
		return "", fmt.Errorf("%w: unknown collection %q", ErrNotFound, name)
	}
}

// Valid reports whether c is one of the fixed collections.
func (c Collection) Valid() bool {
	switch c {
	case CollectionIdentity, CollectionProjectContext, CollectionConversations:
		return true
	}
	return false
}

func (c Collection) String() string { return string(c) }
