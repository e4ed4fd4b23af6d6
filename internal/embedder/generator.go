// Package embedder turns chunk texts into fixed-size vectors in paced batches.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docrag-go/internal/model"
	"docrag-go/internal/textclean"
	"docrag-go/pkg/log"
)

const (
	// DefaultBatchSize is how many texts go into one provider request.
	DefaultBatchSize = 20
	// DefaultBatchDelay is the pause between consecutive batches.
	DefaultBatchDelay = 200 * time.Millisecond
)

// Provider is the external embedding service.
type Provider interface {
	CreateEmbeddings(ctx context.Context, texts []string, dimensions int) ([][]float32, error)
}

// Embedding pairs a vector with the position of its text in the caller's input.
type Embedding struct {
	Index  int
	Vector []float32
}

// Generator batches texts to a Provider.
type Generator struct {
	provider   Provider
	validator  textclean.Validator
	batchSize  int
	batchDelay time.Duration
	dimensions int
}

// Option configures a Generator.
type Option func(*Generator)

// WithBatchSize sets the batch size.
func WithBatchSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithBatchDelay sets the pause between batches.
func WithBatchDelay(d time.Duration) Option {
	return func(g *Generator) {
		if d >= 0 {
			g.batchDelay = d
		}
	}
}

// WithValidator replaces the embedding predicate.
func WithValidator(v textclean.Validator) Option {
	return func(g *Generator) { g.validator = v }
}

// NewGenerator creates a Generator for provider.
func NewGenerator(provider Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:   provider,
		validator:  textclean.NewValidator(),
		batchSize:  DefaultBatchSize,
		batchDelay: DefaultBatchDelay,
		dimensions: model.EmbeddingDimensions,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Embed returns one Embedding per text that passes the embedding predicate,
// in input order. Texts that fail the predicate are skipped; if none pass it
// returns model.ErrNoValidText. Batches run sequentially and the first
// provider error aborts the loop.
func (g *Generator) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	var (
		valid   []string
		indexes []int
	)
	for i, t := range texts {
		if g.validator.ValidForEmbedding(t) {
			valid = append(valid, t)
			indexes = append(indexes, i)
		}
	}
	if len(valid) == 0 {
		return nil, model.ErrNoValidText
	}
	if skipped := len(texts) - len(valid); skipped > 0 {
		log.Warnf("[Embedder] skipped %d of %d chunks that failed the embedding predicate", skipped, len(texts))
	}

	out := make([]Embedding, 0, len(valid))
	for start := 0; start < len(valid); start += g.batchSize {
		if start > 0 && g.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.batchDelay):
			}
		}
		end := start + g.batchSize
		if end > len(valid) {
			end = len(valid)
		}

		vectors, err := g.embedBatch(ctx, valid[start:end])
		if err != nil {
			if errors.Is(err, model.ErrEmbeddingAuth) {
				log.Errorf("[Embedder] provider rejected credentials or quota: %v", err)
			}
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		for i, v := range vectors {
			out = append(out, Embedding{Index: indexes[start+i], Vector: v})
		}
		log.Infof("[Embedder] embedded batch %d-%d of %d", start, end, len(valid))
	}
	return out, nil
}

// EmbedQuery embeds a single search query. Queries skip the chunk predicate
// so short questions still work.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", model.ErrNoValidText)
	}
	vectors, err := g.embedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Generator) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := g.provider.CreateEmbeddings(ctx, texts, g.dimensions)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", model.ErrDimensionMismatch, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != g.dimensions {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", model.ErrDimensionMismatch, i, len(v), g.dimensions)
		}
	}
	return vectors, nil
}
