package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
// Vector similarity search is performed in application memory using cosine similarity,
// which suits single-user installs with up to a few thousand memories.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore for the database file at dbPath.
// It opens the database connection and verifies connectivity with a ping.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	// Enable WAL mode and foreign keys for better performance and data integrity
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// InitSchema creates the necessary tables if they don't exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			memory_type TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			is_global INTEGER NOT NULL DEFAULT 0,
			embedding BLOB,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Save inserts m with an optional embedding.
func (s *SQLiteStore) Save(ctx context.Context, m Memory, vector []float32) error {
	meta, err := encodeMetadata(m.Metadata)
	if err != nil {
		return err
	}

	var embedding any
	if len(vector) > 0 {
		embedding = encodeVector(vector)
	}

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO memories (id, user_id, content, memory_type, metadata, is_global, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		m.ID, m.UserID, m.Content, string(m.MemoryType), meta, m.Global,
		embedding, createdAt.UTC().Format(sqliteTimeFormat))
	if err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}

	return nil
}

// SearchSimilar finds memories similar to the query vector using cosine similarity.
// Unlike PostgreSQL with pgvector, this implementation loads all candidate embeddings
// and scores them in the application layer. Stored vectors whose dimension differs
// from the query are skipped.
func (s *SQLiteStore) SearchSimilar(ctx context.Context, query []float32, filter Filter, limit int) ([]VectorSearchResult, error) {
	var args []any
	where := append([]string{"embedding IS NOT NULL"}, filterClauses(filter, &args, sqlitePlaceholder)...)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, memory_type, metadata, embedding
		FROM memories
		WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var results []VectorSearchResult
	for rows.Next() {
		var (
			r             VectorSearchResult
			memType, meta string
			embeddingBlob []byte
		)
		if err := rows.Scan(&r.ID, &r.Content, &memType, &meta, &embeddingBlob); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}

		storedVector := decodeVector(embeddingBlob)
		if len(storedVector) == 0 || len(storedVector) != len(query) {
			continue
		}

		r.MemoryType = MemoryType(memType)
		if r.Metadata, err = decodeMetadata([]byte(meta)); err != nil {
			return nil, err
		}
		r.Similarity = float64(cosineSimilarity(query, storedVector))
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}

	// Sort by similarity score (highest first)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// FindExact returns memories whose content contains keyword.
func (s *SQLiteStore) FindExact(ctx context.Context, filter Filter, keyword string, limit int) ([]Memory, error) {
	var args []any
	where := filterClauses(filter, &args, sqlitePlaceholder)
	if keyword != "" {
		args = append(args, escapeLike(keyword))
		where = append(where, `content LIKE '%' || ? || '%' ESCAPE '\'`)
	}
	if len(where) == 0 {
		where = []string{"1 = 1"}
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, memory_type, metadata, is_global, created_at
		FROM memories
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, id
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		var (
			m                        Memory
			memType, meta, createdAt string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &memType, &meta, &m.Global, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		m.MemoryType = MemoryType(memType)
		m.CreatedAt, _ = parseTimestamp(createdAt)
		if m.Metadata, err = decodeMetadata([]byte(meta)); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}

	return memories, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteTimeFormat is fixed-width so created_at sorts lexically.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

func sqlitePlaceholder(int) string { return "?" }

// encodeVector converts a float32 slice to a byte slice for storage.
// Each float32 is encoded as 4 bytes in little-endian format.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector converts a byte slice back to a float32 slice.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineSimilarity calculates the cosine similarity between two vectors.
// The result is in range [-1, 1]; zero-length or zero-norm input yields 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// parseTimestamp parses a SQLite timestamp string to time.Time.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
