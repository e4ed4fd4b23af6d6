package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag-go/internal/textclean"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 200, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, 50, cfg.Pipeline.MinChunkLength)
	assert.Equal(t, 50, cfg.Pipeline.MaxPDFPages)
	assert.Equal(t, 20, cfg.Embedding.BatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Embedding.BatchDelay)
	assert.Equal(t, 3, cfg.VectorStore.InsertAttempts)
	assert.Equal(t, time.Second, cfg.VectorStore.InsertBackoff)
	assert.Equal(t, 10000, cfg.VectorStore.FallbackScanLimit)
	assert.Equal(t, 0.5, cfg.Search.Threshold)
	assert.Equal(t, 5, cfg.Search.Count)
	assert.Equal(t, 3, cfg.Kafka.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Kafka.RetryDelay)
	assert.Equal(t, textclean.StorageThresholds, cfg.Pipeline.Validation.Storage)
	assert.Equal(t, textclean.EmbeddingThresholds, cfg.Pipeline.Validation.Embedding)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
vector_store:
  backend: mysql
  fallback_scan_limit: 500
embedding:
  batch_delay: 1s
pipeline:
  validation:
    storage:
      min_words: 4
search:
  threshold: 0.7
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("DOCRAG_SEARCH_COUNT", "9")
	t.Setenv("DOCRAG_EMBEDDING_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.VectorStore.Backend)
	assert.Equal(t, 500, cfg.VectorStore.FallbackScanLimit)
	assert.Equal(t, time.Second, cfg.Embedding.BatchDelay)
	assert.Equal(t, 4, cfg.Pipeline.Validation.Storage.MinWords)
	assert.Equal(t, textclean.StorageThresholds.MinPrintableRatio, cfg.Pipeline.Validation.Storage.MinPrintableRatio)
	assert.Equal(t, 0.7, cfg.Search.Threshold)
	assert.Equal(t, 9, cfg.Search.Count)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.VectorStore.Backend)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
