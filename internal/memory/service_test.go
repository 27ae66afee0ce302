package memory

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

// mockStore is a mock implementation of Store for testing
type mockStore struct {
	saved         []savedMemory
	similar       []VectorSearchResult
	exact         []Memory
	lastFilter    Filter
	lastKeyword   string
	lastLimit     int
	searchError   error
	saveError     error
	findExactErr  error
	searchInvoked int
}

type savedMemory struct {
	memory Memory
	vector []float32
}

func (m *mockStore) InitSchema(ctx context.Context) error { return nil }

func (m *mockStore) Save(ctx context.Context, mem Memory, vector []float32) error {
	if m.saveError != nil {
		return m.saveError
	}
	m.saved = append(m.saved, savedMemory{memory: mem, vector: vector})
	return nil
}

func (m *mockStore) SearchSimilar(ctx context.Context, query []float32, filter Filter, limit int) ([]VectorSearchResult, error) {
	m.searchInvoked++
	m.lastFilter = filter
	m.lastLimit = limit
	if m.searchError != nil {
		return nil, m.searchError
	}
	return m.similar, nil
}

func (m *mockStore) FindExact(ctx context.Context, filter Filter, keyword string, limit int) ([]Memory, error) {
	m.lastFilter = filter
	m.lastKeyword = keyword
	m.lastLimit = limit
	if m.findExactErr != nil {
		return nil, m.findExactErr
	}
	return m.exact, nil
}

func (m *mockStore) Close() error { return nil }

// mockEmbedder is a mock implementation of Embedder for testing
type mockEmbedder struct {
	embedError error
	embedValue []float32
	texts      []string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.texts = append(m.texts, text)
	if m.embedError != nil {
		return nil, m.embedError
	}
	if m.embedValue != nil {
		return m.embedValue, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func newTestService(store Store, embedder Embedder) *Service {
	svc := NewService(store, embedder, bolt.New(bolt.NewJSONHandler(&bytes.Buffer{})))
	svc.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	svc.newID = func() string { return "mem-1" }
	return svc
}

// mockSession is a mock implementation of session.Session for testing
type mockSession struct {
	id       string
	appName  string
	userID   string
	events   []*session.Event
	lastTime time.Time
}

func (m *mockSession) ID() string                { return m.id }
func (m *mockSession) AppName() string           { return m.appName }
func (m *mockSession) UserID() string            { return m.userID }
func (m *mockSession) State() session.State      { return &mockState{} }
func (m *mockSession) Events() session.Events    { return &mockEvents{events: m.events} }
func (m *mockSession) LastUpdateTime() time.Time { return m.lastTime }

// mockState is a simple implementation of session.State for testing
type mockState struct{}

func (m *mockState) Get(key string) (any, error) {
	return nil, errors.New("key not found")
}

func (m *mockState) Set(key string, value any) error {
	return nil
}

func (m *mockState) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {}
}

// mockEvents is a mock implementation of session.Events
type mockEvents struct {
	events []*session.Event
}

func (m *mockEvents) All() iter.Seq[*session.Event] {
	return func(yield func(*session.Event) bool) {
		for _, e := range m.events {
			if !yield(e) {
				return
			}
		}
	}
}

func (m *mockEvents) Len() int { return len(m.events) }

func (m *mockEvents) At(i int) *session.Event {
	if i < 0 || i >= len(m.events) {
		return nil
	}
	return m.events[i]
}

func textEvent(author, text string) *session.Event {
	return &session.Event{
		Author: author,
		LLMResponse: model.LLMResponse{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		},
	}
}

func TestService_StoreMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("stores user memory with embedding", func(t *testing.T) {
		store := &mockStore{}
		embedder := &mockEmbedder{embedValue: []float32{1, 0}}
		svc := newTestService(store, embedder)

		m, err := svc.StoreMemory(ctx, StoreMemoryRequest{
			UserID:     "user-1",
			Content:    "  Client prefers muted palettes  ",
			MemoryType: MemoryTypePreference,
			Metadata:   map[string]any{"project": "rebrand"},
		}, StoreMemoryOptions{GenerateEmbedding: true})
		require.NoError(t, err)

		assert.Equal(t, "mem-1", m.ID)
		assert.Equal(t, "user-1", m.UserID)
		assert.Equal(t, "Client prefers muted palettes", m.Content)
		assert.False(t, m.Global)
		require.Len(t, store.saved, 1)
		assert.Equal(t, []float32{1, 0}, store.saved[0].vector)
		assert.Equal(t, []string{"Client prefers muted palettes"}, embedder.texts)
	})

	t.Run("skips embedding when not requested", func(t *testing.T) {
		store := &mockStore{}
		embedder := &mockEmbedder{}
		svc := newTestService(store, embedder)

		_, err := svc.StoreMemory(ctx, StoreMemoryRequest{Content: "Deadline is Friday"}, StoreMemoryOptions{})
		require.NoError(t, err)

		require.Len(t, store.saved, 1)
		assert.Nil(t, store.saved[0].vector)
		assert.Empty(t, embedder.texts)
	})

	t.Run("anonymizes for global", func(t *testing.T) {
		store := &mockStore{}
		embedder := &mockEmbedder{}
		svc := newTestService(store, embedder)

		m, err := svc.StoreMemory(ctx, StoreMemoryRequest{
			UserID:   "user-1",
			Content:  "Send proofs to jane@studio.io before review",
			Metadata: map[string]any{"email": "jane@studio.io", "topic": "proofs"},
		}, StoreMemoryOptions{AnonymizeForGlobal: true, GenerateEmbedding: true})
		require.NoError(t, err)

		assert.True(t, m.Global)
		assert.Empty(t, m.UserID)
		assert.Equal(t, "Send proofs to [email] before review", m.Content)
		assert.Equal(t, map[string]any{"topic": "proofs"}, m.Metadata)
		assert.Equal(t, []string{"Send proofs to [email] before review"}, embedder.texts, "embedding must use the anonymized text")
	})

	t.Run("embedding requested without embedder", func(t *testing.T) {
		store := &mockStore{}
		svc := newTestService(store, nil)

		_, err := svc.StoreMemory(ctx, StoreMemoryRequest{Content: "x"}, StoreMemoryOptions{GenerateEmbedding: true})
		assert.ErrorIs(t, err, ErrNoEmbedder)
		assert.Empty(t, store.saved)
	})

	t.Run("embedder failure", func(t *testing.T) {
		store := &mockStore{}
		svc := newTestService(store, &mockEmbedder{embedError: errors.New("quota")})

		_, err := svc.StoreMemory(ctx, StoreMemoryRequest{Content: "x"}, StoreMemoryOptions{GenerateEmbedding: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota")
		assert.Empty(t, store.saved)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		dbErr := errors.New("disk full")
		svc := newTestService(&mockStore{saveError: dbErr}, nil)

		_, err := svc.StoreMemory(ctx, StoreMemoryRequest{Content: "x"}, StoreMemoryOptions{})
		assert.ErrorIs(t, err, dbErr)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc := newTestService(&mockStore{}, nil)

		_, err := svc.StoreMemory(ctx, StoreMemoryRequest{Content: "   "}, StoreMemoryOptions{})
		oopsErr, ok := oops.AsOops(err)
		require.True(t, ok)
		assert.Equal(t, "invalid_argument", oopsErr.Code())

		_, err = svc.StoreMemory(ctx, StoreMemoryRequest{Content: "x", MemoryType: "gossip"}, StoreMemoryOptions{})
		assert.Error(t, err)
	})
}

func TestService_EnhancedSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("orders semantic matches by similarity", func(t *testing.T) {
		store := &mockStore{
			exact: []Memory{{ID: "e1", Content: "logo files in drive"}},
			similar: []VectorSearchResult{
				{ID: "a", Content: "a", Similarity: 0.42},
				{ID: "b", Content: "b", Similarity: 0.91},
				{ID: "c", Content: "c", Similarity: 0.10},
				{ID: "d", Content: "d", Similarity: 0.91},
			},
		}
		svc := newTestService(store, &mockEmbedder{})

		res, err := svc.EnhancedSearch(ctx, SearchRequest{UserID: "user-1", Query: "logo", MinSimilarity: 0.2})
		require.NoError(t, err)

		require.Len(t, res.ExactMatches, 1)
		assert.Equal(t, "e1", res.ExactMatches[0].ID)

		var ids []string
		for _, r := range res.SemanticMatches {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"b", "d", "a"}, ids)

		assert.Equal(t, "logo", store.lastKeyword)
		assert.Equal(t, DefaultSearchLimit, store.lastLimit)
		assert.Equal(t, Filter{UserID: "user-1", IncludeGlobal: true}, store.lastFilter)
	})

	t.Run("exact only without embedder", func(t *testing.T) {
		store := &mockStore{exact: []Memory{{ID: "e1"}}}
		svc := newTestService(store, nil)

		res, err := svc.EnhancedSearch(ctx, SearchRequest{Query: "logo", Limit: 2, ExcludeGlobal: true})
		require.NoError(t, err)

		assert.Len(t, res.ExactMatches, 1)
		assert.NotNil(t, res.SemanticMatches)
		assert.Empty(t, res.SemanticMatches)
		assert.Zero(t, store.searchInvoked)
		assert.Equal(t, 2, store.lastLimit)
	})

	t.Run("empty results are non-nil", func(t *testing.T) {
		svc := newTestService(&mockStore{}, &mockEmbedder{})

		res, err := svc.EnhancedSearch(ctx, SearchRequest{Query: "nothing"})
		require.NoError(t, err)
		assert.NotNil(t, res.ExactMatches)
		assert.NotNil(t, res.SemanticMatches)
	})

	t.Run("blank query", func(t *testing.T) {
		svc := newTestService(&mockStore{}, nil)
		_, err := svc.EnhancedSearch(ctx, SearchRequest{Query: " "})
		assert.Error(t, err)
	})

	t.Run("store errors propagate", func(t *testing.T) {
		dbErr := errors.New("connection reset")

		svc := newTestService(&mockStore{findExactErr: dbErr}, &mockEmbedder{})
		_, err := svc.EnhancedSearch(ctx, SearchRequest{Query: "logo"})
		assert.ErrorIs(t, err, dbErr)

		svc = newTestService(&mockStore{searchError: dbErr}, &mockEmbedder{})
		_, err = svc.EnhancedSearch(ctx, SearchRequest{Query: "logo"})
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestService_AddSession(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		events    []*session.Event
		embedder  Embedder
		wantSaved bool
	}{
		{
			name: "saves question and answer",
			events: []*session.Event{
				textEvent("user", "What typeface did we pick for Acme?"),
				textEvent("assistant", "You picked Inter for body text and Fraunces for headings."),
			},
			embedder:  &mockEmbedder{},
			wantSaved: true,
		},
		{
			name: "skips when store_memory tool was called",
			events: []*session.Event{
				textEvent("user", "Remember the Acme palette"),
				{
					Author: "assistant",
					LLMResponse: model.LLMResponse{
						Content: &genai.Content{Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: "store_memory"}}}},
					},
				},
				textEvent("assistant", "Saved the palette for future sessions."),
			},
			embedder: &mockEmbedder{},
		},
		{
			name: "skips short answers",
			events: []*session.Event{
				textEvent("user", "Hi"),
				textEvent("assistant", "Hello!"),
			},
			embedder: &mockEmbedder{},
		},
		{
			name: "skips without embedder",
			events: []*session.Event{
				textEvent("user", "What typeface did we pick for Acme?"),
				textEvent("assistant", "You picked Inter for body text and Fraunces for headings."),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			svc := newTestService(store, tt.embedder)
			sess := &mockSession{id: "s-1", appName: "studio", userID: "user-1", events: tt.events}

			require.NoError(t, svc.AddSession(ctx, sess))

			if !tt.wantSaved {
				assert.Empty(t, store.saved)
				return
			}
			require.Len(t, store.saved, 1)
			saved := store.saved[0]
			assert.Equal(t, MemoryTypeEpisodic, saved.memory.MemoryType)
			assert.Equal(t, "user-1", saved.memory.UserID)
			assert.Equal(t, "Q: What typeface did we pick for Acme?\nA: You picked Inter for body text and Fraunces for headings.", saved.memory.Content)
			assert.Equal(t, "s-1", saved.memory.Metadata["session_id"])
			assert.NotNil(t, saved.vector)
		})
	}
}

func TestService_AddSession_EmbedError(t *testing.T) {
	svc := newTestService(&mockStore{}, &mockEmbedder{embedError: errors.New("embed down")})
	sess := &mockSession{events: []*session.Event{
		textEvent("user", "What typeface did we pick for Acme?"),
		textEvent("assistant", "You picked Inter for body text and Fraunces for headings."),
	}}

	err := svc.AddSession(context.Background(), sess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed down")
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("converts results to entries", func(t *testing.T) {
		store := &mockStore{similar: []VectorSearchResult{
			{ID: "a", Content: "Acme uses Inter", Similarity: 0.9},
			{ID: "b", Content: "", Similarity: 0.5},
		}}
		svc := newTestService(store, &mockEmbedder{})

		resp, err := svc.Search(ctx, &adkmemory.SearchRequest{Query: "acme fonts"})
		require.NoError(t, err)

		require.Len(t, resp.Memories, 1)
		assert.Equal(t, "memory", resp.Memories[0].Author)
		assert.Equal(t, "Acme uses Inter", resp.Memories[0].Content.Parts[0].Text)
		assert.Equal(t, 10, store.lastLimit)
	})

	t.Run("scoped to requesting user and globals", func(t *testing.T) {
		store := &mockStore{}
		svc := newTestService(store, &mockEmbedder{})

		_, err := svc.Search(ctx, &adkmemory.SearchRequest{Query: "acme", UserID: "alice", AppName: "studio"})
		require.NoError(t, err)
		assert.Equal(t, Filter{UserID: "alice", IncludeGlobal: true}, store.lastFilter)
	})

	t.Run("empty without embedder", func(t *testing.T) {
		svc := newTestService(&mockStore{}, nil)
		resp, err := svc.Search(ctx, &adkmemory.SearchRequest{Query: "x"})
		require.NoError(t, err)
		assert.Empty(t, resp.Memories)
	})

	t.Run("embedder error", func(t *testing.T) {
		svc := newTestService(&mockStore{}, &mockEmbedder{embedError: errors.New("boom")})
		_, err := svc.Search(ctx, &adkmemory.SearchRequest{Query: "x"})
		assert.Error(t, err)
	})
}
