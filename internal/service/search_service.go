package service

import (
	"context"
	"fmt"
	"strings"

	"docrag-go/internal/model"
	"docrag-go/pkg/log"
)

// QueryEmbedder embeds a search query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// ChunkSearcher ranks stored chunks against a query embedding.
type ChunkSearcher interface {
	Search(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error)
}

// SearchRequest is one semantic query. Nil Threshold and zero Count use the
// service defaults.
type SearchRequest struct {
	Query     string
	Threshold *float64
	Count     int
	UserID    string
}

// SearchService answers semantic queries.
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) ([]model.SearchResult, error)
	Context(ctx context.Context, req SearchRequest) (string, error)
}

type searchService struct {
	embedder  QueryEmbedder
	searcher  ChunkSearcher
	threshold float64
	count     int
}

// NewSearchService creates a SearchService with default threshold and count.
func NewSearchService(embedder QueryEmbedder, searcher ChunkSearcher, threshold float64, count int) SearchService {
	if count <= 0 {
		count = 5
	}
	return &searchService{embedder: embedder, searcher: searcher, threshold: threshold, count: count}
}

func (s *searchService) Search(ctx context.Context, req SearchRequest) ([]model.SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", model.ErrValidationFailed)
	}
	q := model.SearchQuery{Threshold: s.threshold, Count: s.count, UserID: req.UserID}
	if req.Threshold != nil {
		q.Threshold = *req.Threshold
	}
	if req.Count > 0 {
		q.Count = req.Count
	}
	log.Infof("[SearchService] query=%q threshold=%.2f count=%d user=%s", query, q.Threshold, q.Count, q.UserID)

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q.Embedding = vec

	results, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	log.Infof("[SearchService] %d results for %q", len(results), query)
	return results, nil
}

func (s *searchService) Context(ctx context.Context, req SearchRequest) (string, error) {
	results, err := s.Search(ctx, req)
	if err != nil {
		return "", err
	}
	return FormatContext(results), nil
}

// FormatContext renders results as numbered source blocks for an answer
// generator:
//
//	[1] (report.pdf#3, 0.87) chunk text
func FormatContext(results []model.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s#%d, %.2f) %s", i+1, r.Metadata.FileName, r.Metadata.ChunkIndex, r.Similarity, r.Content)
	}
	return b.String()
}
