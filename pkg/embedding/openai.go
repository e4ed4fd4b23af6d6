package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"docrag-go/internal/config"
	"docrag-go/internal/model"
	"docrag-go/pkg/log"
)

// SDKClient embeds through the go-openai SDK.
type SDKClient struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewSDKClient creates an SDK-backed client. A non-empty BaseURL points the
// SDK at an OpenAI-compatible server.
func NewSDKClient(cfg config.EmbeddingConfig) *SDKClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return &SDKClient{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		limiter: newLimiter(cfg.RequestsPerSecond),
	}
}

// CreateEmbeddings sends texts in a single request.
func (c *SDKClient) CreateEmbeddings(ctx context.Context, texts []string, dimensions int) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingTransient, err)
	}
	log.Infof("[EmbeddingClient] calling OpenAI embeddings, model: %s, inputs: %d", c.model, len(texts))

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.model),
		Input:      texts,
		Dimensions: dimensions,
	})
	if err != nil {
		log.Errorf("[EmbeddingClient] OpenAI embeddings failed: %v", err)
		return nil, classifySDKError(err)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i := range data {
		v := make([]float32, len(data[i].Embedding))
		copy(v, data[i].Embedding)
		vectors[i] = v
	}
	return vectors, nil
}

func classifySDKError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classify(apiErr.HTTPStatusCode, fmt.Sprint(apiErr.Code), apiErr.Type, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classify(reqErr.HTTPStatusCode, "", "", reqErr.Error())
	}
	return fmt.Errorf("%w: %v", model.ErrEmbeddingTransient, err)
}
