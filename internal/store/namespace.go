package store

import "github.com/google/uuid"

// namespaceChunk and namespaceCodeExample are fixed namespaces used to derive
// stable backend IDs from natural keys (chunk content hash, URL) via
// uuid.NewSHA1. Adapter B (pgvector) needs real UUID primary keys; deriving
// them from the natural key means re-ingesting the same URL content always
// produces the same row instead of accumulating duplicates.
var (
	namespaceChunk       = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	namespaceCodeExample = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	namespaceSource      = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")
)

// chunkBackendID derives a deterministic UUID string for a chunk's natural
// key. The natural key itself is always retained alongside the row so
// lookups never depend on re-deriving this ID.
func chunkBackendID(naturalKey string) string {
	return uuid.NewSHA1(namespaceChunk, []byte(naturalKey)).String()
}

// codeExampleBackendID mirrors chunkBackendID for the code-example namespace.
func codeExampleBackendID(naturalKey string) string {
	return uuid.NewSHA1(namespaceCodeExample, []byte(naturalKey)).String()
}

// sourceBackendID mirrors chunkBackendID for the sources registry, used only
// by QdrantStore since PGStore and LocalStore key sources by natural_key
// directly in a SQL/sqlite table instead of a UUID-keyed point.
func sourceBackendID(naturalKey string) string {
	return uuid.NewSHA1(namespaceSource, []byte(naturalKey)).String()
}
