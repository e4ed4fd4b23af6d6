package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"docrag-go/internal/model"
	"docrag-go/pkg/log"
)

// unit returns a 1536-dim vector with cos=c against axis(0).
func unit(c float64) []float32 {
	v := make([]float32, model.EmbeddingDimensions)
	v[0] = float32(c)
	v[1] = float32(math.Sqrt(1 - c*c))
	return v
}

func axis() []float32 { return unit(1) }

func chunk(id, file, user, doc string, idx int, emb []float32) model.Chunk {
	return model.Chunk{
		ID:      id,
		Content: "content of " + id,
		Metadata: model.ChunkMetadata{
			Source: "upload", FileName: file, UserID: user, DocumentID: doc,
			ChunkIndex: idx, TotalChunks: 3, FileType: model.FileTypeTXT,
		},
		Embedding: emb,
	}
}

// fakeStore wraps MemoryStore with injectable failures.
type fakeStore struct {
	*MemoryStore
	matchErr   error
	scanRows   []model.StoredRow
	failChunk  int
	failTimes  int
	mu         sync.Mutex
	attempts   map[int]int
	scanLimits []int
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: NewMemoryStore(), failChunk: -1, attempts: map[int]int{}}
}

func (f *fakeStore) Insert(ctx context.Context, c model.Chunk) error {
	f.mu.Lock()
	f.attempts[c.Metadata.ChunkIndex]++
	n := f.attempts[c.Metadata.ChunkIndex]
	f.mu.Unlock()
	if c.Metadata.ChunkIndex == f.failChunk && n <= f.failTimes {
		return errors.New("connection reset")
	}
	return f.MemoryStore.Insert(ctx, c)
}

func (f *fakeStore) Match(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return f.MemoryStore.Match(ctx, q)
}

func (f *fakeStore) Scan(ctx context.Context, userID string, limit int) ([]model.StoredRow, error) {
	f.scanLimits = append(f.scanLimits, limit)
	if f.scanRows != nil {
		return f.scanRows, nil
	}
	return f.MemoryStore.Scan(ctx, userID, limit)
}

func TestCosineSimilarity(t *testing.T) {
	v := []float32{1, 2, 3}
	neg := []float32{-1, -2, -3}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity(v, neg), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity(v, []float32{0, 0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(v, []float32{1, 2}))
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestParseEmbedding(t *testing.T) {
	want := []float32{0.5, -1, 2}
	tests := []struct {
		name string
		in   interface{}
	}{
		{"float32", []float32{0.5, -1, 2}},
		{"float64", []float64{0.5, -1, 2}},
		{"generic", []interface{}{0.5, -1.0, 2.0}},
		{"pgvector", pgvector.NewVector([]float32{0.5, -1, 2})},
		{"json string", "[0.5,-1,2]"},
		{"bracket string", "[0.5, -1, 2, ]"},
		{"brace string", "{0.5,-1,2}"},
		{"bytes", []byte("[0.5,-1,2]")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseEmbedding(tc.in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	for _, bad := range []interface{}{nil, "", "[a,b]", 42, []interface{}{"x"}} {
		_, err := ParseEmbedding(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestInsertDocument_RetriesTransientFailure(t *testing.T) {
	store := newFakeStore()
	store.failChunk, store.failTimes = 1, 2
	a := NewAdapter(store, WithInsertRetry(3, 0))

	chunks := []model.Chunk{
		chunk("a", "f.txt", "u1", "d1", 0, axis()),
		chunk("b", "f.txt", "u1", "d1", 1, axis()),
		chunk("c", "f.txt", "u1", "d1", 2, axis()),
	}
	require.NoError(t, a.InsertDocument(context.Background(), chunks))
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 3, store.attempts[1])
}

func TestInsertDocument_CompensatesOnPermanentFailure(t *testing.T) {
	store := newFakeStore()
	other := chunk("x", "other.txt", "u1", "d0", 0, axis())
	require.NoError(t, store.MemoryStore.Insert(context.Background(), other))

	store.failChunk, store.failTimes = 2, 99
	a := NewAdapter(store, WithInsertRetry(3, 0))

	chunks := []model.Chunk{
		chunk("a", "f.txt", "u1", "d1", 0, axis()),
		chunk("b", "f.txt", "u1", "d1", 1, axis()),
		chunk("c", "f.txt", "u1", "d1", 2, axis()),
	}
	err := a.InsertDocument(context.Background(), chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStorageInsert)
	assert.Equal(t, 3, store.attempts[2])
	assert.Equal(t, 1, store.Len(), "only the unrelated document should remain")
}

func TestInsertDocument_RejectsWrongDimensions(t *testing.T) {
	a := NewAdapter(newFakeStore())
	err := a.InsertDocument(context.Background(), []model.Chunk{chunk("a", "f", "u", "d", 0, []float32{1, 2})})
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)
}

func seeded(t *testing.T) *fakeStore {
	t.Helper()
	store := newFakeStore()
	ctx := context.Background()
	for i, c := range []float64{0.2, 0.95, 0.6, -0.5, 0.8} {
		require.NoError(t, store.MemoryStore.Insert(ctx, chunk(fmt.Sprintf("c%d", i), "f.txt", "u1", "d1", i, unit(c))))
	}
	require.NoError(t, store.MemoryStore.Insert(ctx, chunk("other", "g.txt", "u2", "d2", 0, unit(0.99))))
	return store
}

func assertRanked(t *testing.T, results []model.SearchResult, threshold float64) {
	t.Helper()
	for i, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, threshold)
		assert.GreaterOrEqual(t, r.Similarity, 0.0)
		assert.LessOrEqual(t, r.Similarity, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Similarity, r.Similarity)
		}
	}
}

func TestSearch_PrimaryPath(t *testing.T) {
	a := NewAdapter(seeded(t))
	results, err := a.Search(context.Background(), model.SearchQuery{Embedding: axis(), Threshold: 0.5, Count: 3, UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assertRanked(t, results, 0.5)
	assert.Equal(t, []string{"c1", "c4", "c2"}, []string{results[0].ID, results[1].ID, results[2].ID})
}

func TestSearch_FallbackMatchesPrimary(t *testing.T) {
	store := seeded(t)
	a := NewAdapter(store)
	q := model.SearchQuery{Embedding: axis(), Threshold: 0.1, Count: 10, UserID: "u1"}

	primary, err := a.Search(context.Background(), q)
	require.NoError(t, err)

	store.matchErr = errors.New("function match_documents does not exist")
	fallback, err := a.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, len(primary), len(fallback))
	for i := range primary {
		assert.Equal(t, primary[i].ID, fallback[i].ID)
		assert.InDelta(t, primary[i].Similarity, fallback[i].Similarity, 1e-6)
	}
	assertRanked(t, fallback, 0.1)
	assert.Equal(t, []int{DefaultFallbackScanLimit}, store.scanLimits)
}

func observeWarnings(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	log.SetLogger(zap.New(core))
	t.Cleanup(func() { log.SetLogger(zap.NewNop()) })
	return logs
}

func TestSearch_FallbackIsLogged(t *testing.T) {
	logs := observeWarnings(t)
	store := seeded(t)
	store.matchErr = errors.New("function match_documents does not exist")
	a := NewAdapter(store, WithFallbackScanLimit(2))

	_, err := a.Search(context.Background(), model.SearchQuery{Embedding: axis(), Threshold: 0.1, Count: 10, UserID: "u1"})
	require.NoError(t, err)

	failed := logs.FilterMessage("[VectorStore] native match failed, falling back to scan").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "function match_documents does not exist", fields["error"])
	assert.Equal(t, "u1", fields["userId"])

	limited := logs.FilterMessage("[VectorStore] fallback scan hit the row limit, results may be incomplete").All()
	require.Len(t, limited, 1)
	assert.EqualValues(t, 2, limited[0].ContextMap()["limit"])
}

func TestSearch_FallbackParsesEncodedEmbeddings(t *testing.T) {
	store := newFakeStore()
	store.matchErr = model.ErrMatchUnavailable
	jsonVec := unit(0.9)
	store.scanRows = []model.StoredRow{
		{ID: "json", Embedding: mustJSON(jsonVec)},
		{ID: "native", Embedding: unit(0.7)},
		{ID: "short", Embedding: "[1,0]"},
		{ID: "garbage", Embedding: "not a vector"},
		{ID: "negative", Embedding: unit(-0.9)},
	}
	a := NewAdapter(store, WithFallbackScanLimit(5))

	results, err := a.Search(context.Background(), model.SearchQuery{Embedding: axis(), Threshold: 0, Count: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "json", results[0].ID)
	assert.Equal(t, "native", results[1].ID)
	assert.Equal(t, []int{5}, store.scanLimits)
}

func TestSearch_ZeroNativeRowsDoesNotFallBack(t *testing.T) {
	store := seeded(t)
	a := NewAdapter(store)
	results, err := a.Search(context.Background(), model.SearchQuery{Embedding: axis(), Threshold: 0.9, Count: 5, UserID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, store.scanLimits)
}

func TestSearch_ThresholdAboveBestReturnsNothing(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.MemoryStore.Insert(context.Background(), chunk("only", "f.txt", "u1", "d1", 0, unit(0.5))))
	a := NewAdapter(store)

	results, err := a.Search(context.Background(), model.SearchQuery{Embedding: axis(), Threshold: 0.9, Count: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_DeleteIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Insert(ctx, chunk("a", "X", "A", "d1", 0, axis())))
	require.NoError(t, s.Insert(ctx, chunk("b", "X", "B", "d2", 0, axis())))

	n, err := s.DeleteByFile(ctx, "X", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := s.ListByUser(ctx, "B")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "X", left[0].FileName)
}

func mustJSON(v []float32) string {
	var b []byte
	b = append(b, '[')
	for i, x := range v {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, []byte(fmt.Sprintf("%g", x))...)
	}
	return string(append(b, ']'))
}
