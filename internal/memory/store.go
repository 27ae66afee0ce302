package memory

import "context"

// Store defines the contract for memory persistence.
type Store interface {
	// InitSchema creates the tables the store needs if they don't exist.
	InitSchema(ctx context.Context) error

	// Save persists m. vector may be nil, in which case the memory is only
	// reachable through FindExact.
	Save(ctx context.Context, m Memory, vector []float32) error

	// SearchSimilar returns up to limit memories ordered by cosine similarity
	// to query, most similar first.
	SearchSimilar(ctx context.Context, query []float32, filter Filter, limit int) ([]VectorSearchResult, error)

	// FindExact returns up to limit memories whose content contains keyword
	// (case-insensitive, no wildcards), newest first.
	FindExact(ctx context.Context, filter Filter, keyword string, limit int) ([]Memory, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder generates text embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// escapeLike escapes LIKE wildcards so keyword matches literally with
// ESCAPE '\'.
func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\\' || r == '%' || r == '_' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
