// Package vectorstore persists embedded chunks and answers similarity queries,
// preferring the backend's native match and falling back to a client-side scan.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docrag-go/internal/model"
	"docrag-go/pkg/log"
	"docrag-go/pkg/retry"
)

// DefaultFallbackScanLimit bounds the rows read by the fallback path.
const DefaultFallbackScanLimit = 10000

// Store is a chunk backend.
type Store interface {
	// Insert writes one chunk row.
	Insert(ctx context.Context, chunk model.Chunk) error
	// Match runs the backend's native similarity search. Backends without one
	// return model.ErrMatchUnavailable.
	Match(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error)
	// Scan reads up to limit rows, restricted to userID when it is non-empty.
	Scan(ctx context.Context, userID string, limit int) ([]model.StoredRow, error)
	// ListByUser returns the metadata of every chunk owned by userID.
	ListByUser(ctx context.Context, userID string) ([]model.ChunkMetadata, error)
	// DeleteByFile removes every row with the given (fileName, userID).
	DeleteByFile(ctx context.Context, fileName, userID string) (int64, error)
	// DeleteByDocument removes every row stamped with documentID.
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
}

// Adapter wraps a Store with retried fan-out inserts and two-path search.
type Adapter struct {
	store     Store
	insert    retry.Options
	scanLimit int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithInsertRetry sets the per-chunk insert attempts and fixed backoff.
func WithInsertRetry(attempts int, backoff time.Duration) Option {
	return func(a *Adapter) {
		if attempts > 0 {
			a.insert.Attempts = attempts
		}
		if backoff >= 0 {
			a.insert.Delay = backoff
		}
	}
}

// WithFallbackScanLimit bounds the fallback scan.
func WithFallbackScanLimit(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.scanLimit = n
		}
	}
}

// NewAdapter creates an Adapter over store.
func NewAdapter(store Store, opts ...Option) *Adapter {
	a := &Adapter{
		store:     store,
		insert:    retry.Default,
		scanLimit: DefaultFallbackScanLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns the wrapped backend.
func (a *Adapter) Store() Store { return a.store }

// InsertDocument writes all chunks of one document concurrently. Each insert
// is retried on its own. If any chunk still fails, the rows already written
// for the document are deleted and an error wrapping model.ErrStorageInsert
// is returned.
func (a *Adapter) InsertDocument(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if len(c.Embedding) != model.EmbeddingDimensions {
			return fmt.Errorf("%w: chunk %d has %d dimensions", model.ErrDimensionMismatch, c.Metadata.ChunkIndex, len(c.Embedding))
		}
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, c := range chunks {
		c := c
		g.Go(func() error {
			err := retry.Do(ctx, a.insert, func(ctx context.Context) error {
				return a.store.Insert(ctx, c)
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("chunk %d: %w", c.Metadata.ChunkIndex, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == 0 {
		return nil
	}
	insertErr := fmt.Errorf("%w: %d of %d chunks: %w", model.ErrStorageInsert, len(errs), len(chunks), errors.Join(errs...))

	meta := chunks[0].Metadata
	log.Errorf("[VectorStore] insert failed for %s, removing partial rows: %v", meta.FileName, insertErr)
	if cleanupErr := a.compensate(meta); cleanupErr != nil {
		log.Errorf("[VectorStore] compensating delete failed for %s: %v", meta.FileName, cleanupErr)
		return errors.Join(insertErr, cleanupErr)
	}
	return insertErr
}

// compensate removes the rows of a failed ingestion. It runs on a fresh
// context so a cancelled request still cleans up.
func (a *Adapter) compensate(meta model.ChunkMetadata) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		n   int64
		err error
	)
	if meta.DocumentID != "" {
		n, err = a.store.DeleteByDocument(ctx, meta.DocumentID)
	} else {
		n, err = a.store.DeleteByFile(ctx, meta.FileName, meta.UserID)
	}
	if err != nil {
		return fmt.Errorf("compensating delete: %w", err)
	}
	log.Infof("[VectorStore] compensating delete removed %d rows for %s", n, meta.FileName)
	return nil
}

// Search returns chunks whose similarity to q.Embedding is at least
// q.Threshold, best first, at most q.Count of them. A failing native match
// falls back to scanning rows and scoring them in process; an empty native
// result does not.
func (a *Adapter) Search(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	if len(q.Embedding) == 0 {
		return nil, errors.New("search: empty query embedding")
	}

	results, err := a.store.Match(ctx, q)
	if err == nil {
		return finalize(results, q), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, model.ErrMatchUnavailable) {
		log.Infof("[VectorStore] native match unavailable, scanning")
	} else {
		log.Warnw("[VectorStore] native match failed, falling back to scan", "error", err, "userId", q.UserID)
	}
	return a.scanSearch(ctx, q)
}

func (a *Adapter) scanSearch(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	rows, err := a.store.Scan(ctx, q.UserID, a.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("fallback scan: %w", err)
	}
	if len(rows) >= a.scanLimit {
		log.Warnw("[VectorStore] fallback scan hit the row limit, results may be incomplete", "limit", a.scanLimit)
	}

	results := make([]model.SearchResult, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		vec, err := ParseEmbedding(row.Embedding)
		if err != nil || len(vec) != len(q.Embedding) {
			skipped++
			continue
		}
		results = append(results, model.SearchResult{
			ID:         row.ID,
			Content:    row.Content,
			Metadata:   row.Metadata,
			Similarity: CosineSimilarity(q.Embedding, vec),
		})
	}
	if skipped > 0 {
		log.Warnf("[VectorStore] fallback scan skipped %d rows with unreadable or mismatched embeddings", skipped)
	}
	return finalize(results, q), nil
}
