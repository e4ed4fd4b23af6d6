package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag-go/internal/model"
	"docrag-go/internal/pipeline"
	"docrag-go/internal/vectorstore"
	"docrag-go/pkg/tasks"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, name string, data []byte, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	return nil
}

func (m *memBlobs) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *memBlobs) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

func (m *memBlobs) PresignedURL(_ context.Context, name string, _ time.Duration) (string, error) {
	return "https://blobs.example/" + name + "?sig=x", nil
}

func meta(file, user, doc, path string, idx, total int, at time.Time) model.ChunkMetadata {
	return model.ChunkMetadata{
		Source: "upload", FileName: file, UserID: user, DocumentID: doc, StoragePath: path,
		ChunkIndex: idx, TotalChunks: total, FileType: model.FileTypeTXT, UploadedAt: at,
	}
}

func seedStore(t *testing.T, metas ...model.ChunkMetadata) *vectorstore.MemoryStore {
	t.Helper()
	s := vectorstore.NewMemoryStore()
	for i, m := range metas {
		require.NoError(t, s.Insert(context.Background(), model.Chunk{
			ID: fmt.Sprintf("c%d", i), Content: "text", Metadata: m, Embedding: []float32{1},
		}))
	}
	return s
}

func TestDocumentService_ListGroupsNewestFirst(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := seedStore(t,
		meta("old.txt", "u1", "d1", "", 0, 2, t0),
		meta("old.txt", "u1", "d1", "", 1, 2, t0),
		meta("new.pdf", "u1", "d2", "uploads/u1/d2/new.pdf", 0, 1, t0.Add(time.Hour)),
		meta("theirs.txt", "u2", "d3", "", 0, 1, t0.Add(2*time.Hour)),
	)
	svc := NewDocumentService(store, nil)

	docs, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new.pdf", docs[0].FileName)
	assert.Equal(t, "uploads/u1/d2/new.pdf", docs[0].StoragePath)
	assert.Equal(t, "old.txt", docs[1].FileName)
	assert.Equal(t, 2, docs[1].TotalChunks)
}

func TestDocumentService_ListKeepsLatestReupload(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := seedStore(t,
		meta("a.txt", "u1", "first", "", 0, 1, t0),
		meta("a.txt", "u1", "second", "", 0, 3, t0.Add(time.Minute)),
	)
	docs, err := NewDocumentService(store, nil).List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "second", docs[0].DocumentID)
	assert.Equal(t, 3, docs[0].TotalChunks)
}

func TestDocumentService_DeleteIsolation(t *testing.T) {
	now := time.Now()
	store := seedStore(t,
		meta("X", "A", "d1", "uploads/A/d1/X", 0, 1, now),
		meta("X", "B", "d2", "uploads/B/d2/X", 0, 1, now),
	)
	blobs := newMemBlobs()
	blobs.objects["uploads/A/d1/X"] = []byte("a")
	blobs.objects["uploads/B/d2/X"] = []byte("b")
	svc := NewDocumentService(store, blobs)

	deleted, err := svc.Delete(context.Background(), "X", "A")
	require.NoError(t, err)
	assert.True(t, deleted)

	left, err := svc.List(context.Background(), "B")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "X", left[0].FileName)

	assert.NotContains(t, blobs.objects, "uploads/A/d1/X")
	assert.Contains(t, blobs.objects, "uploads/B/d2/X")

	deleted, err = svc.Delete(context.Background(), "X", "A")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDocumentService_DeleteRequiresOwner(t *testing.T) {
	_, err := NewDocumentService(vectorstore.NewMemoryStore(), nil).Delete(context.Background(), "X", "")
	assert.ErrorIs(t, err, model.ErrValidationFailed)
}

func TestDocumentService_DownloadURL(t *testing.T) {
	store := seedStore(t, meta("r.pdf", "u1", "d1", "uploads/u1/d1/r.pdf", 0, 1, time.Now()))

	info, err := NewDocumentService(store, newMemBlobs()).DownloadURL(context.Background(), "r.pdf", "u1")
	require.NoError(t, err)
	assert.Contains(t, info.DownloadURL, "uploads/u1/d1/r.pdf")

	_, err = NewDocumentService(store, newMemBlobs()).DownloadURL(context.Background(), "missing.pdf", "u1")
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)

	_, err = NewDocumentService(store, nil).DownloadURL(context.Background(), "r.pdf", "u1")
	assert.Error(t, err)
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) { return s.vec, s.err }

type recordingSearcher struct {
	got     model.SearchQuery
	results []model.SearchResult
}

func (r *recordingSearcher) Search(_ context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	r.got = q
	return r.results, nil
}

func TestSearchService_AppliesDefaultsAndOverrides(t *testing.T) {
	searcher := &recordingSearcher{}
	svc := NewSearchService(stubEmbedder{vec: []float32{1, 0}}, searcher, 0.5, 5)

	_, err := svc.Search(context.Background(), SearchRequest{Query: "budget", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 0.5, searcher.got.Threshold)
	assert.Equal(t, 5, searcher.got.Count)
	assert.Equal(t, "u1", searcher.got.UserID)
	assert.Equal(t, []float32{1, 0}, searcher.got.Embedding)

	zero := 0.0
	_, err = svc.Search(context.Background(), SearchRequest{Query: "budget", Threshold: &zero, Count: 9})
	require.NoError(t, err)
	assert.Equal(t, 0.0, searcher.got.Threshold)
	assert.Equal(t, 9, searcher.got.Count)
}

func TestSearchService_RejectsEmptyQuery(t *testing.T) {
	_, err := NewSearchService(stubEmbedder{}, &recordingSearcher{}, 0.5, 5).Search(context.Background(), SearchRequest{Query: "  "})
	assert.ErrorIs(t, err, model.ErrValidationFailed)
}

func TestSearchService_PropagatesEmbeddingError(t *testing.T) {
	svc := NewSearchService(stubEmbedder{err: model.ErrEmbeddingAuth}, &recordingSearcher{}, 0.5, 5)
	_, err := svc.Search(context.Background(), SearchRequest{Query: "q"})
	assert.ErrorIs(t, err, model.ErrEmbeddingAuth)
}

func TestFormatContext(t *testing.T) {
	results := []model.SearchResult{
		{Content: "Revenue grew.", Similarity: 0.873, Metadata: model.ChunkMetadata{FileName: "report.pdf", ChunkIndex: 3}},
		{Content: "Costs fell.", Similarity: 0.5, Metadata: model.ChunkMetadata{FileName: "notes.md", ChunkIndex: 0}},
	}
	assert.Equal(t, "[1] (report.pdf#3, 0.87) Revenue grew.\n\n[2] (notes.md#0, 0.50) Costs fell.", FormatContext(results))
	assert.Equal(t, "", FormatContext(nil))
}

type fakeIngester struct {
	files  []pipeline.FileInput
	result model.IngestResult
	err    error
}

func (f *fakeIngester) IngestFile(_ context.Context, in pipeline.FileInput) (model.IngestResult, error) {
	f.files = append(f.files, in)
	res := f.result
	res.DocumentID = in.DocumentID
	return res, f.err
}

func (f *fakeIngester) IngestText(_ context.Context, in pipeline.TextInput) (model.IngestResult, error) {
	return model.IngestResult{Success: true, ChunksProcessed: 1}, nil
}

type recordingPublisher struct {
	tasks []tasks.IngestTask
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, task tasks.IngestTask) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func TestUploadService_SyncStoresBlobAndIngests(t *testing.T) {
	ing := &fakeIngester{result: model.IngestResult{Success: true, ChunksProcessed: 2}}
	blobs := newMemBlobs()
	svc := NewUploadService(ing, blobs, nil)

	res, err := svc.Upload(context.Background(), UploadRequest{
		Data: []byte("hello world"), FileName: `C:\docs\notes.txt`, UserID: "u1",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, ing.files, 1)

	in := ing.files[0]
	assert.Equal(t, "notes.txt", in.FileName)
	assert.Equal(t, model.FileTypeTXT, in.FileType)
	assert.Equal(t, ObjectName("u1", in.DocumentID, "notes.txt"), in.StoragePath)
	assert.Equal(t, []byte("hello world"), blobs.objects[in.StoragePath])
}

func TestUploadService_FailedIngestRemovesBlob(t *testing.T) {
	ing := &fakeIngester{result: model.IngestResult{Error: "extraction failed", Stage: model.StageReceived}}
	blobs := newMemBlobs()
	svc := NewUploadService(ing, blobs, nil)

	res, err := svc.Upload(context.Background(), UploadRequest{Data: []byte("%PDF"), FileName: "x.pdf", UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, blobs.objects)
}

func TestUploadService_RejectsUnsupportedType(t *testing.T) {
	ing := &fakeIngester{}
	res, err := NewUploadService(ing, nil, nil).Upload(context.Background(), UploadRequest{Data: []byte("x"), FileName: "a.xlsx"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unsupported file type")
	assert.Empty(t, ing.files)
}

func TestUploadService_AsyncQueuesTask(t *testing.T) {
	ing := &fakeIngester{}
	blobs := newMemBlobs()
	pub := &recordingPublisher{}
	svc := NewUploadService(ing, blobs, pub)

	before := time.Now().UTC()
	res, err := svc.Upload(context.Background(), UploadRequest{
		Data: []byte("text"), FileName: "a.md", UserID: "u1", Section: "intro", Category: "guides", Async: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Queued)
	assert.Empty(t, ing.files)
	require.Len(t, pub.tasks, 1)
	task := pub.tasks[0]
	assert.Equal(t, res.DocumentID, task.DocumentID)
	assert.Equal(t, "md", task.FileType)
	assert.Equal(t, "intro", task.Section)
	assert.Equal(t, "guides", task.Category)
	assert.False(t, task.UploadedAt.Before(before))
	assert.Contains(t, blobs.objects, task.StoragePath)
}

func TestUploadService_AsyncWithoutBrokerIsRejected(t *testing.T) {
	res, err := NewUploadService(&fakeIngester{}, newMemBlobs(), nil).Upload(context.Background(),
		UploadRequest{Data: []byte("text"), FileName: "a.md", Async: true})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestUploadService_ProcessTask(t *testing.T) {
	blobs := newMemBlobs()
	blobs.objects["uploads/u1/d1/a.txt"] = []byte("hello")
	uploadedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	task := tasks.IngestTask{
		DocumentID: "d1", FileName: "a.txt", FileType: "txt", UserID: "u1", StoragePath: "uploads/u1/d1/a.txt",
		Section: "intro", Category: "guides", UploadedAt: uploadedAt,
	}

	ok := &fakeIngester{result: model.IngestResult{Success: true, ChunksProcessed: 1}}
	require.NoError(t, NewUploadService(ok, blobs, nil).ProcessTask(context.Background(), task))
	require.Len(t, ok.files, 1)
	assert.Equal(t, "d1", ok.files[0].DocumentID)
	assert.Equal(t, []byte("hello"), ok.files[0].Data)
	assert.Equal(t, "intro", ok.files[0].Section)
	assert.Equal(t, "guides", ok.files[0].Category)
	assert.Equal(t, uploadedAt, ok.files[0].UploadedAt)

	transient := &fakeIngester{err: model.ErrEmbeddingTransient}
	err := NewUploadService(transient, blobs, nil).ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, model.ErrEmbeddingTransient)
	assert.Contains(t, blobs.objects, task.StoragePath)

	unreadable := &fakeIngester{result: model.IngestResult{Error: "extraction failed"}}
	require.NoError(t, NewUploadService(unreadable, blobs, nil).ProcessTask(context.Background(), task))
	assert.NotContains(t, blobs.objects, task.StoragePath)
}
