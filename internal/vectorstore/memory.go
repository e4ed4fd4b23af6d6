package vectorstore

import (
	"context"
	"sync"

	"docrag-go/internal/model"
)

// MemoryStore keeps chunks in process and scores them by brute force.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks []model.Chunk
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Insert appends a copy of chunk.
func (s *MemoryStore) Insert(_ context.Context, chunk model.Chunk) error {
	c := chunk
	c.Embedding = append([]float32(nil), chunk.Embedding...)
	s.mu.Lock()
	s.chunks = append(s.chunks, c)
	s.mu.Unlock()
	return nil
}

// Match scores every visible chunk against the query.
func (s *MemoryStore) Match(_ context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []model.SearchResult
	for _, c := range s.chunks {
		if q.UserID != "" && c.Metadata.UserID != q.UserID {
			continue
		}
		results = append(results, model.SearchResult{
			ID:         c.ID,
			Content:    c.Content,
			Metadata:   c.Metadata,
			Similarity: CosineSimilarity(q.Embedding, c.Embedding),
		})
	}
	return finalize(results, q), nil
}

// Scan returns up to limit rows in insertion order.
func (s *MemoryStore) Scan(_ context.Context, userID string, limit int) ([]model.StoredRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []model.StoredRow
	for _, c := range s.chunks {
		if limit > 0 && len(rows) >= limit {
			break
		}
		if userID != "" && c.Metadata.UserID != userID {
			continue
		}
		rows = append(rows, model.StoredRow{ID: c.ID, Content: c.Content, Metadata: c.Metadata, Embedding: c.Embedding})
	}
	return rows, nil
}

// ListByUser returns the metadata of userID's chunks.
func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]model.ChunkMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ChunkMetadata
	for _, c := range s.chunks {
		if c.Metadata.UserID == userID {
			out = append(out, c.Metadata)
		}
	}
	return out, nil
}

// DeleteByFile removes the rows of (fileName, userID).
func (s *MemoryStore) DeleteByFile(_ context.Context, fileName, userID string) (int64, error) {
	return s.remove(func(m model.ChunkMetadata) bool {
		return m.FileName == fileName && m.UserID == userID
	}), nil
}

// DeleteByDocument removes the rows of one ingestion run.
func (s *MemoryStore) DeleteByDocument(_ context.Context, documentID string) (int64, error) {
	return s.remove(func(m model.ChunkMetadata) bool { return m.DocumentID == documentID }), nil
}

// Len reports how many chunks are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *MemoryStore) remove(match func(model.ChunkMetadata) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	var n int64
	for _, c := range s.chunks {
		if match(c.Metadata) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	return n
}
