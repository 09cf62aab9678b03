// Package memory is the persistent semantic memory core. It stores text
// records as embedding vectors in three fixed collections (identity,
// project context, conversations), ingests documents by chunking them,
// and assembles priority-ordered, token-budgeted context strings for
// retrieval-augmented prompts.
//
// The default backing index is an embedded chromem-go database persisted
// under a data directory. A PostgreSQL backend with the same operation
// surface lives in the postgres subpackage.
package memory
