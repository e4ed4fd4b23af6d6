// Package embedding provides clients for OpenAI-compatible embedding APIs.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"docrag-go/internal/config"
	"docrag-go/internal/model"
	"docrag-go/pkg/log"
)

// Client embeds a batch of texts, returning one vector per input in order.
// Authorization and quota failures wrap model.ErrEmbeddingAuth, everything
// else wraps model.ErrEmbeddingTransient.
type Client interface {
	CreateEmbeddings(ctx context.Context, texts []string, dimensions int) ([][]float32, error)
}

// NewClient picks the client implementation named by cfg.Provider.
func NewClient(cfg config.EmbeddingConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewSDKClient(cfg), nil
	case "compatible", "http":
		return NewHTTPClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// HTTPClient calls POST {base_url}/embeddings directly.
type HTTPClient struct {
	cfg     config.EmbeddingConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a plain HTTP embedding client.
func NewHTTPClient(cfg config.EmbeddingConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: newLimiter(cfg.RequestsPerSecond),
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// CreateEmbeddings sends texts in a single request.
func (c *HTTPClient) CreateEmbeddings(ctx context.Context, texts []string, dimensions int) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingTransient, err)
	}
	log.Infof("[EmbeddingClient] calling embedding API, model: %s, inputs: %d", c.cfg.Model, len(texts))

	reqBytes, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Input: texts, Dimensions: dimensions})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] embedding API call failed: %v", err)
		return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiErrorBody
		_ = json.Unmarshal(body, &apiErr)
		log.Errorf("[EmbeddingClient] embedding API returned %s", resp.Status)
		return nil, classify(resp.StatusCode, fmt.Sprint(apiErr.Error.Code), apiErr.Error.Type, apiErr.Error.Message)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", model.ErrEmbeddingTransient, err)
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })

	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// classify maps a non-200 provider response to a sentinel.
func classify(status int, code, typ, message string) error {
	quota := strings.Contains(code, "insufficient_quota") || strings.Contains(typ, "insufficient_quota")
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", model.ErrEmbeddingAuth, status, message)
	case status == http.StatusTooManyRequests && quota:
		return fmt.Errorf("%w: quota exhausted: %s", model.ErrEmbeddingAuth, message)
	default:
		return fmt.Errorf("%w: status %d: %s", model.ErrEmbeddingTransient, status, message)
	}
}
