package extractor

import (
	"context"
	"errors"
	"fmt"

	"docrag-go/pkg/log"
)

// Try is one named attempt in an ordered chain.
type Try[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// FirstSuccess runs tries in order and returns the first result that accept
// approves, together with the name of the try that produced it. When every
// try fails, the returned error joins all of their errors.
func FirstSuccess[T any](ctx context.Context, accept func(T) bool, tries ...Try[T]) (T, string, error) {
	var (
		zero T
		errs []error
	)
	for _, t := range tries {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		v, err := t.Run(ctx)
		if err != nil {
			log.Infof("[Extractor] strategy %s failed: %v", t.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		if accept != nil && !accept(v) {
			log.Infof("[Extractor] strategy %s produced unusable text", t.Name)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, errUnusable))
			continue
		}
		return v, t.Name, nil
	}
	if len(errs) == 0 {
		return zero, "", errNoStrategies
	}
	return zero, "", errors.Join(errs...)
}

var (
	errUnusable     = errors.New("output rejected by acceptance test")
	errNoStrategies = errors.New("no strategies configured")
)

// Strategy turns raw document bytes into text.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, data []byte) (string, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc struct {
	Label string
	Fn    func(ctx context.Context, data []byte) (string, error)
}

// Name returns the label.
func (s StrategyFunc) Name() string { return s.Label }

// Extract calls Fn.
func (s StrategyFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return s.Fn(ctx, data)
}

func tries(strategies []Strategy, data []byte, clean func(string) string) []Try[string] {
	out := make([]Try[string], 0, len(strategies))
	for _, s := range strategies {
		s := s
		out = append(out, Try[string]{
			Name: s.Name(),
			Run: func(ctx context.Context) (string, error) {
				text, err := s.Extract(ctx, data)
				if err != nil {
					return "", err
				}
				return clean(text), nil
			},
		})
	}
	return out
}
