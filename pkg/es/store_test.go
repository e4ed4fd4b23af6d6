package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag-go/internal/config"
	"docrag-go/internal/model"
)

type recorded struct {
	method string
	path   string
	body   map[string]interface{}
}

func newTestStore(t *testing.T, reply func(path string) string) (*Store, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recorded{method: r.Method, path: r.URL.Path}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		calls = append(calls, rec)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply(r.URL.Path))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(config.ElasticsearchConfig{Addresses: srv.URL})
	require.NoError(t, err)
	return NewStore(client, "chunks"), &calls
}

func TestMatch_ConvertsScoreAndFiltersOwner(t *testing.T) {
	store, calls := newTestStore(t, func(string) string {
		return `{"hits":{"hits":[
			{"_id":"c1","_score":0.95,"_source":{"content":"alpha","metadata":{"fileName":"a.txt","chunkIndex":0}}},
			{"_id":"c2","_score":0.75,"_source":{"content":"beta","metadata":{"fileName":"a.txt","chunkIndex":1}}}
		]}}`
	})

	results, err := store.Match(context.Background(), model.SearchQuery{
		Embedding: []float32{1, 0}, Threshold: 0.5, Count: 5, UserID: "u1",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ID)
	assert.InDelta(t, 0.9, results[0].Similarity, 1e-9)
	assert.InDelta(t, 0.5, results[1].Similarity, 1e-9)
	assert.Equal(t, "a.txt", results[0].Metadata.FileName)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/chunks/_search", call.path)
	knn := call.body["knn"].(map[string]interface{})
	assert.Equal(t, "vector", knn["field"])
	assert.Equal(t, float64(5), knn["k"])
	assert.Equal(t, float64(100), knn["num_candidates"])
	assert.Equal(t, 0.5, knn["similarity"])
	filter := knn["filter"].(map[string]interface{})["term"].(map[string]interface{})
	assert.Equal(t, "u1", filter["user_id"])
}

func TestDeleteByFile_ScopesToOwner(t *testing.T) {
	store, calls := newTestStore(t, func(string) string { return `{"deleted":4}` })

	n, err := store.DeleteByFile(context.Background(), "report.pdf", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/chunks/_delete_by_query", call.path)
	raw, _ := json.Marshal(call.body)
	assert.Contains(t, string(raw), `{"term":{"file_name":"report.pdf"}}`)
	assert.Contains(t, string(raw), `{"term":{"user_id":"u1"}}`)
}

func TestScan_ReturnsVectors(t *testing.T) {
	store, calls := newTestStore(t, func(string) string {
		return `{"hits":{"hits":[{"_id":"c1","_score":1,"_source":{"content":"x","vector":[0.5,-1]}}]}}`
	})

	rows, err := store.Scan(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []float32{0.5, -1}, rows[0].Embedding)
	assert.Equal(t, float64(maxWindow), (*calls)[0].body["size"])
	_, ok := (*calls)[0].body["query"].(map[string]interface{})["match_all"]
	assert.True(t, ok)
}

func TestMapping(t *testing.T) {
	m := mapping()
	assert.True(t, json.Valid([]byte(m)))
	assert.True(t, strings.Contains(m, `"dims": 1536`))
	assert.True(t, strings.Contains(m, `"enabled": false`))
}
