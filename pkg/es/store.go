package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"docrag-go/internal/model"
	"docrag-go/pkg/log"
)

// maxWindow is the default index.max_result_window.
const maxWindow = 10000

// document is the indexed form of a chunk. Owner and ordering fields are
// copied out of the metadata so they can be filtered and sorted on.
type document struct {
	ChunkID    string              `json:"chunk_id"`
	DocumentID string              `json:"document_id"`
	FileName   string              `json:"file_name"`
	UserID     string              `json:"user_id"`
	ChunkIndex int                 `json:"chunk_index"`
	Content    string              `json:"content"`
	Metadata   model.ChunkMetadata `json:"metadata"`
	Vector     []float32           `json:"vector,omitempty"`
	UploadedAt time.Time           `json:"uploaded_at"`
}

// Store is a chunk backend on one Elasticsearch index.
type Store struct {
	client *elasticsearch.Client
	index  string
}

// NewStore creates a Store on index.
func NewStore(client *elasticsearch.Client, index string) *Store {
	return &Store{client: client, index: index}
}

func mapping() string {
	return fmt.Sprintf(`{
	"mappings": {
		"properties": {
			"chunk_id": { "type": "keyword" },
			"document_id": { "type": "keyword" },
			"file_name": { "type": "keyword" },
			"user_id": { "type": "keyword" },
			"chunk_index": { "type": "integer" },
			"content": { "type": "text" },
			"metadata": { "type": "object", "enabled": false },
			"vector": {
				"type": "dense_vector",
				"dims": %d,
				"index": true,
				"similarity": "cosine"
			},
			"uploaded_at": { "type": "date" }
		}
	}
}`, model.EmbeddingDimensions)
}

// EnsureIndex creates the index if it does not exist.
func (s *Store) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("[ES] index '%s' already exists", s.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index %s: unexpected status %d", s.index, res.StatusCode)
	}

	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping())),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", s.index, res.String())
	}
	log.Infof("[ES] index '%s' created", s.index)
	return nil
}

// Insert indexes one chunk under its ID.
func (s *Store) Insert(ctx context.Context, chunk model.Chunk) error {
	doc := document{
		ChunkID:    chunk.ID,
		DocumentID: chunk.Metadata.DocumentID,
		FileName:   chunk.Metadata.FileName,
		UserID:     chunk.Metadata.UserID,
		ChunkIndex: chunk.Metadata.ChunkIndex,
		Content:    chunk.Content,
		Metadata:   chunk.Metadata,
		Vector:     chunk.Embedding,
		UploadedAt: chunk.Metadata.UploadedAt,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: chunk.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index chunk %s: %s", chunk.ID, res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Score  float64  `json:"_score"`
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Match runs an approximate kNN query. Elasticsearch reports cosine hits as
// (1 + cos) / 2, which is mapped back to cos here.
func (s *Store) Match(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	count := q.Count
	if count <= 0 {
		count = 10
	}
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   q.Embedding,
		"k":              count,
		"num_candidates": numCandidates(count),
	}
	if q.Threshold > 0 {
		knn["similarity"] = q.Threshold
	}
	if q.UserID != "" {
		knn["filter"] = term("user_id", q.UserID)
	}
	body := map[string]interface{}{
		"knn":     knn,
		"size":    count,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}

	resp, err := s.search(ctx, body)
	if err != nil {
		return nil, err
	}
	out := make([]model.SearchResult, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		out = append(out, model.SearchResult{
			ID:         hit.ID,
			Content:    hit.Source.Content,
			Metadata:   hit.Source.Metadata,
			Similarity: 2*hit.Score - 1,
		})
	}
	return out, nil
}

func numCandidates(k int) int {
	n := k * 10
	if n < 100 {
		n = 100
	}
	if n > maxWindow {
		n = maxWindow
	}
	return n
}

// Scan returns up to limit chunks with their vectors.
func (s *Store) Scan(ctx context.Context, userID string, limit int) ([]model.StoredRow, error) {
	if limit <= 0 || limit > maxWindow {
		limit = maxWindow
	}
	body := map[string]interface{}{
		"query": ownerQuery(userID),
		"size":  limit,
	}
	resp, err := s.search(ctx, body)
	if err != nil {
		return nil, err
	}
	out := make([]model.StoredRow, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		out = append(out, model.StoredRow{
			ID:        hit.ID,
			Content:   hit.Source.Content,
			Metadata:  hit.Source.Metadata,
			Embedding: hit.Source.Vector,
		})
	}
	return out, nil
}

// ListByUser returns the metadata of userID's chunks, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.ChunkMetadata, error) {
	body := map[string]interface{}{
		"query":   ownerQuery(userID),
		"size":    maxWindow,
		"sort":    []interface{}{map[string]string{"uploaded_at": "desc"}, map[string]string{"chunk_index": "asc"}},
		"_source": []string{"metadata"},
	}
	resp, err := s.search(ctx, body)
	if err != nil {
		return nil, err
	}
	out := make([]model.ChunkMetadata, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		out = append(out, hit.Source.Metadata)
	}
	return out, nil
}

// DeleteByFile removes every chunk of (fileName, userID).
func (s *Store) DeleteByFile(ctx context.Context, fileName, userID string) (int64, error) {
	return s.deleteByQuery(ctx, map[string]interface{}{
		"bool": map[string]interface{}{
			"filter": []interface{}{
				term("file_name", fileName),
				term("user_id", userID),
			},
		},
	})
}

// DeleteByDocument removes every chunk of one ingestion run.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	return s.deleteByQuery(ctx, term("document_id", documentID))
}

func term(field, value string) map[string]interface{} {
	return map[string]interface{}{"term": map[string]interface{}{field: value}}
}

func ownerQuery(userID string) map[string]interface{} {
	if userID == "" {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return term("user_id", userID)
}

func (s *Store) search(ctx context.Context, body map[string]interface{}) (*searchResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  &buf,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", s.index, res.String())
	}
	var resp searchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &resp, nil
}

func (s *Store) deleteByQuery(ctx context.Context, query map[string]interface{}) (int64, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]interface{}{"query": query}); err != nil {
		return 0, err
	}
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:     []string{s.index},
		Body:      &buf,
		Refresh:   &refresh,
		Conflicts: "proceed",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("delete_by_query %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("delete_by_query %s: %s", s.index, res.String())
	}
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode delete_by_query response: %w", err)
	}
	return out.Deleted, nil
}
