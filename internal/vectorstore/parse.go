package vectorstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseEmbedding decodes a stored embedding. Backends return native float
// slices, generic JSON arrays, vector types exposing Slice(), JSON strings
// or the "[v1,v2,...]" text form.
func ParseEmbedding(v interface{}) ([]float32, error) {
	switch e := v.(type) {
	case nil:
		return nil, fmt.Errorf("embedding is null")
	case []float32:
		return e, nil
	case []float64:
		out := make([]float32, len(e))
		for i, x := range e {
			out[i] = float32(x)
		}
		return out, nil
	case []interface{}:
		out := make([]float32, len(e))
		for i, x := range e {
			f, ok := toFloat(x)
			if !ok {
				return nil, fmt.Errorf("embedding element %d has type %T", i, x)
			}
			out[i] = float32(f)
		}
		return out, nil
	case interface{ Slice() []float32 }:
		return e.Slice(), nil
	case []byte:
		return parseEmbeddingString(string(e))
	case string:
		return parseEmbeddingString(e)
	default:
		return nil, fmt.Errorf("unsupported embedding type %T", v)
	}
}

func toFloat(x interface{}) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func parseEmbeddingString(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("embedding is empty")
	}
	var out []float32
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out, nil
	}

	// Bracket form with separators JSON rejects, such as "{1,2}" or "[1, 2, ]".
	s = strings.Trim(s, "[]{}() ")
	if s == "" {
		return nil, fmt.Errorf("embedding is empty")
	}
	parts := strings.Split(s, ",")
	out = make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("parse embedding element %q: %w", p, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}
