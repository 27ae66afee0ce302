// Package memory provides the AI memory service: typed search results,
// storage backends with vector similarity search, and the service that
// stores and recalls memories for the studio assistant.
package memory

import "time"

// MemoryType classifies a memory.
type MemoryType string

const (
	// MemoryTypeSemantic holds facts and knowledge, e.g. "client prefers serif headings".
	MemoryTypeSemantic MemoryType = "semantic"
	// MemoryTypeEpisodic holds summaries of past sessions and events.
	MemoryTypeEpisodic MemoryType = "episodic"
	// MemoryTypeProcedural holds how-to steps.
	MemoryTypeProcedural MemoryType = "procedural"
	// MemoryTypePreference holds user or client preferences.
	MemoryTypePreference MemoryType = "preference"
	// MemoryTypeProject holds project facts such as deadlines and deliverables.
	MemoryTypeProject MemoryType = "project"
)

// Valid reports whether t is a known memory type. The empty type is valid
// and means unclassified.
func (t MemoryType) Valid() bool {
	switch t {
	case "", MemoryTypeSemantic, MemoryTypeEpisodic, MemoryTypeProcedural, MemoryTypePreference, MemoryTypeProject:
		return true
	}
	return false
}

// Memory is a stored memory record.
type Memory struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id,omitempty"`
	Content    string         `json:"content"`
	MemoryType MemoryType     `json:"memory_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	// Global memories are shared across users and carry no user id.
	Global    bool      `json:"global"`
	CreatedAt time.Time `json:"created_at"`
}

// VectorSearchResult is one ranked semantic-search hit.
//
// Similarity is the cosine similarity between the query and the stored
// embedding. It is normally within [0,1] for text embeddings but the range
// is not enforced.
type VectorSearchResult struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	MemoryType MemoryType     `json:"memory_type,omitempty"`
}

// EnhancedMemorySearchResult combines literal matches with semantic matches.
// SemanticMatches are ordered by Similarity, highest first.
type EnhancedMemorySearchResult struct {
	ExactMatches    []Memory             `json:"exact_matches"`
	SemanticMatches []VectorSearchResult `json:"semantic_matches"`
}

// StoreMemoryOptions controls the write path of Service.StoreMemory.
type StoreMemoryOptions struct {
	// AnonymizeForGlobal scrubs personal data and stores the memory as global.
	AnonymizeForGlobal bool `json:"anonymizeForGlobal"`
	// GenerateEmbedding embeds the content so it is reachable by semantic search.
	GenerateEmbedding bool `json:"generateEmbedding"`
}

// Filter scopes store queries.
type Filter struct {
	// UserID restricts results to one user's memories. Empty means all users.
	UserID string
	// MemoryType restricts results to one type. Empty means all types.
	MemoryType MemoryType
	// IncludeGlobal adds global memories when UserID is set.
	IncludeGlobal bool
}
