package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag-go/internal/config"
	"docrag-go/internal/model"
)

func embeddingServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okBody = `{"object":"list","data":[
	{"object":"embedding","index":1,"embedding":[0.3,0.4]},
	{"object":"embedding","index":0,"embedding":[0.1,0.2]}
],"model":"m","usage":{"prompt_tokens":2,"total_tokens":2}}`

func clients(baseURL string) map[string]Client {
	cfg := config.EmbeddingConfig{APIKey: "sk-test", BaseURL: baseURL, Model: "text-embedding-3-small"}
	return map[string]Client{
		"http": NewHTTPClient(cfg),
		"sdk":  NewSDKClient(cfg),
	}
}

func TestCreateEmbeddings_OrdersByIndex(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	for name, c := range clients(srv.URL) {
		t.Run(name, func(t *testing.T) {
			vectors, err := c.CreateEmbeddings(context.Background(), []string{"a", "b"}, 2)
			require.NoError(t, err)
			require.Len(t, vectors, 2)
			assert.InDelta(t, 0.1, vectors[0][0], 1e-6)
			assert.InDelta(t, 0.4, vectors[1][1], 1e-6)
			assert.Equal(t, 2, got.Dimensions)
			assert.Equal(t, []string{"a", "b"}, got.Input)
		})
	}
}

func TestCreateEmbeddings_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			want:   model.ErrEmbeddingAuth,
		},
		{
			name:   "quota",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`,
			want:   model.ErrEmbeddingAuth,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`,
			want:   model.ErrEmbeddingTransient,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"oops","type":"server_error","code":null}}`,
			want:   model.ErrEmbeddingTransient,
		},
	}

	for _, tc := range tests {
		srv := embeddingServer(t, tc.status, tc.body)
		for name, c := range clients(srv.URL) {
			t.Run(tc.name+"/"+name, func(t *testing.T) {
				_, err := c.CreateEmbeddings(context.Background(), []string{"x"}, 1536)
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.want)
			})
		}
	}
}

func TestCreateEmbeddings_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(config.EmbeddingConfig{BaseURL: url}).CreateEmbeddings(context.Background(), []string{"x"}, 1536)
	assert.ErrorIs(t, err, model.ErrEmbeddingTransient)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(config.EmbeddingConfig{Provider: "compatible"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, c)

	c, err = NewClient(config.EmbeddingConfig{Provider: "openai"})
	require.NoError(t, err)
	assert.IsType(t, &SDKClient{}, c)

	_, err = NewClient(config.EmbeddingConfig{Provider: "bogus"})
	assert.Error(t, err)
}
