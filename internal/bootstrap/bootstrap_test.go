package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag-go/internal/config"
	"docrag-go/internal/pipeline"
	"docrag-go/internal/service"
	"docrag-go/internal/textclean"
)

// embeddingServer answers every input with the same unit vector.
func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		for i := range req.Input {
			v := make([]float32, req.Dimensions)
			v[0] = 1
			resp.Data = append(resp.Data, item{Index: i, Embedding: v})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.VectorStore.Backend = "memory"
	cfg.Embedding.Provider = "compatible"
	cfg.Embedding.BaseURL = embeddingServer(t).URL
	cfg.Embedding.BatchDelay = 0
	return cfg
}

func TestNew_MemoryBackendEndToEnd(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer app.Close()
	assert.Nil(t, app.Consumer)

	res, err := app.Uploads.Paste(ctx, pipeline.TextInput{
		Title:   "handbook",
		Content: "Employees accrue vacation days monthly and may carry them over once.",
		UserID:  "u1",
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	results, err := app.Search.Search(ctx, service.SearchRequest{Query: "vacation policy", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Equal(t, "handbook", results[0].Metadata.FileName)

	others, err := app.Search.Search(ctx, service.SearchRequest{Query: "vacation policy", UserID: "u2"})
	require.NoError(t, err)
	assert.Empty(t, others)

	docs, err := app.Documents.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	deleted, err := app.Documents.Delete(ctx, "handbook", "u1")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestNew_RejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.VectorStore.Backend = "cassandra"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_KafkaNeedsObjectStorage(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Kafka.Enabled = true
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewExtractor_WithoutTika(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Tika.ServerURL = ""
	res, err := NewExtractor(cfg, textclean.NewValidator()).Extract(context.Background(), []byte("plain words here"), "a.txt", "txt")
	require.NoError(t, err)
	assert.Equal(t, "plain words here", res.Text)
}
