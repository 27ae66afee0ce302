package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/google/uuid"
	"github.com/samber/oops"
	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const (
	// DefaultSearchLimit caps each half of an enhanced search when the
	// request does not set a limit.
	DefaultSearchLimit = 5

	// storeMemoryToolName is the agent tool that writes memories explicitly.
	storeMemoryToolName = "store_memory"

	// minSessionResponseLen is the shortest agent reply worth remembering.
	minSessionResponseLen = 20
)

// ErrNoEmbedder is returned when an embedding is requested but the service
// has no embedder.
var ErrNoEmbedder = errors.New("memory: no embedder configured")

// StoreMemoryRequest describes a memory to write.
type StoreMemoryRequest struct {
	UserID     string
	Content    string
	MemoryType MemoryType
	Metadata   map[string]any
}

// SearchRequest describes an enhanced search.
type SearchRequest struct {
	UserID     string
	Query      string
	MemoryType MemoryType
	// Limit caps exact and semantic matches separately. Zero means DefaultSearchLimit.
	Limit int
	// MinSimilarity drops semantic matches scoring below it.
	MinSimilarity float64
	// ExcludeGlobal leaves out global memories when UserID is set.
	ExcludeGlobal bool
}

// Service stores and recalls memories. It also implements adk's
// memory.Service so an agent runtime can ingest and search sessions.
type Service struct {
	store    Store
	embedder Embedder // Optional; semantic features are disabled without it
	log      *bolt.Logger
	now      func() time.Time
	newID    func() string
}

// NewService creates a new memory service with the given store and embedder.
func NewService(store Store, embedder Embedder, log *bolt.Logger) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// StoreMemory validates req, applies opts and persists the memory.
func (s *Service) StoreMemory(ctx context.Context, req StoreMemoryRequest, opts StoreMemoryOptions) (Memory, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return Memory{}, oops.Code("invalid_argument").New("memory content is required")
	}
	if !req.MemoryType.Valid() {
		return Memory{}, oops.Code("invalid_argument").With("memory_type", string(req.MemoryType)).Errorf("unknown memory type %q", req.MemoryType)
	}

	m := Memory{
		ID:         s.newID(),
		UserID:     req.UserID,
		Content:    content,
		MemoryType: req.MemoryType,
		Metadata:   req.Metadata,
		CreatedAt:  s.now(),
	}

	if opts.AnonymizeForGlobal {
		m.Content = Anonymize(m.Content)
		m.Metadata = anonymizeMetadata(m.Metadata)
		m.UserID = ""
		m.Global = true
	}

	var vector []float32
	if opts.GenerateEmbedding {
		if s.embedder == nil {
			return Memory{}, ErrNoEmbedder
		}
		var err error
		vector, err = s.embedder.Embed(ctx, m.Content)
		if err != nil {
			return Memory{}, fmt.Errorf("failed to generate embedding: %w", err)
		}
	}

	if err := s.store.Save(ctx, m, vector); err != nil {
		return Memory{}, fmt.Errorf("failed to store memory: %w", err)
	}

	s.log.Debug().Str("id", m.ID).Str("memory_type", string(m.MemoryType)).Bool("global", m.Global).Bool("embedded", vector != nil).Msg("memory stored")
	return m, nil
}

// EnhancedSearch combines literal matches on the query with semantic
// matches. Semantic matches are returned highest similarity first; they are
// empty when the service has no embedder.
func (s *Service) EnhancedSearch(ctx context.Context, req SearchRequest) (*EnhancedMemorySearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, oops.Code("invalid_argument").New("search query is required")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	filter := Filter{
		UserID:        req.UserID,
		MemoryType:    req.MemoryType,
		IncludeGlobal: !req.ExcludeGlobal,
	}

	exact, err := s.store.FindExact(ctx, filter, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find exact matches: %w", err)
	}

	result := &EnhancedMemorySearchResult{
		ExactMatches:    append([]Memory{}, exact...),
		SemanticMatches: []VectorSearchResult{},
	}

	if s.embedder == nil {
		return result, nil
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	similar, err := s.store.SearchSimilar(ctx, queryVector, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar memories: %w", err)
	}

	for _, r := range similar {
		if r.Similarity >= req.MinSimilarity {
			result.SemanticMatches = append(result.SemanticMatches, r)
		}
	}
	sort.SliceStable(result.SemanticMatches, func(i, j int) bool {
		return result.SemanticMatches[i].Similarity > result.SemanticMatches[j].Similarity
	})

	return result, nil
}

// AddSession implements memory.Service interface.
// It stores the last question and answer of the session as an episodic memory,
// unless the agent already wrote a memory explicitly during the session.
func (s *Service) AddSession(ctx context.Context, sess session.Session) error {
	if s.embedder == nil {
		// Without embedder the memory could never be recalled by Search
		return nil
	}

	var userQuery, agentResponse string
	hasExplicitSave := false

	for event := range sess.Events().All() {
		if event.LLMResponse.Content == nil {
			continue
		}

		text := strings.Join(extractTextFromContent([]*genai.Content{event.LLMResponse.Content}), " ")
		if event.Author == "user" {
			if text != "" {
				userQuery = text
			}
		} else if text != "" {
			agentResponse = text
		}

		for _, part := range event.LLMResponse.Content.Parts {
			if part.FunctionCall != nil && part.FunctionCall.Name == storeMemoryToolName {
				hasExplicitSave = true
			}
		}
	}

	if hasExplicitSave {
		return nil
	}

	if userQuery == "" || len(agentResponse) <= minSessionResponseLen {
		return nil
	}

	_, err := s.StoreMemory(ctx, StoreMemoryRequest{
		UserID:     sess.UserID(),
		Content:    "Q: " + userQuery + "\nA: " + agentResponse,
		MemoryType: MemoryTypeEpisodic,
		Metadata: map[string]any{
			"session_id": sess.ID(),
			"app_name":   sess.AppName(),
		},
	}, StoreMemoryOptions{GenerateEmbedding: true})
	if err != nil {
		return fmt.Errorf("failed to save session to memory: %w", err)
	}

	return nil
}

// Search implements memory.Service interface.
// It performs a vector similarity search for the query, scoped to the
// requesting user's memories plus global ones, and returns memory entries.
func (s *Service) Search(ctx context.Context, req *adkmemory.SearchRequest) (*adkmemory.SearchResponse, error) {
	if s.embedder == nil {
		return &adkmemory.SearchResponse{Memories: []adkmemory.Entry{}}, nil
	}

	queryVector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	results, err := s.store.SearchSimilar(ctx, queryVector, Filter{UserID: req.UserID, IncludeGlobal: true}, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar memories: %w", err)
	}

	memories := make([]adkmemory.Entry, 0, len(results))
	for _, r := range results {
		if r.Content == "" {
			continue
		}
		contentParts := genai.Text(r.Content)
		if len(contentParts) == 0 {
			continue
		}
		memories = append(memories, adkmemory.Entry{
			Content: contentParts[0],
			Author:  "memory",
		})
	}

	return &adkmemory.SearchResponse{Memories: memories}, nil
}

// extractTextFromContent extracts text from genai.Content parts
func extractTextFromContent(content []*genai.Content) []string {
	var texts []string
	for _, c := range content {
		for _, part := range c.Parts {
			if text := part.Text; text != "" {
				texts = append(texts, text)
			}
		}
	}
	return texts
}

// Ensure Service implements adk's memory.Service
var _ adkmemory.Service = (*Service)(nil)
