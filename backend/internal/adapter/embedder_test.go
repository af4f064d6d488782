package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "hybrid-memory/backend/pkg/errors"
)

func embeddingServer(t *testing.T, status int, vector []float32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  body["model"],
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": vector},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestModelDimensions(t *testing.T) {
	dims, err := ModelDimensions("text-embedding-3-small", 0)
	require.NoError(t, err)
	assert.Equal(t, 1536, dims)

	dims, err = ModelDimensions("openai/text-embedding-3-large", 0)
	require.NoError(t, err)
	assert.Equal(t, 3072, dims)

	dims, err = ModelDimensions("custom-model", 64)
	require.NoError(t, err)
	assert.Equal(t, 64, dims)

	_, err = ModelDimensions("custom-model", 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv := embeddingServer(t, http.StatusOK, []float32{0.1, 0.2, 0.3})

	embedder, err := NewOpenAIEmbedder(srv.URL+"/v1", "", "custom-model", 3, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, embedder.Dimensions())

	vec, err := embedder.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOpenAIEmbedder_DimensionMismatchIsEmbeddingError(t *testing.T) {
	srv := embeddingServer(t, http.StatusOK, []float32{0.1, 0.2})

	embedder, err := NewOpenAIEmbedder(srv.URL+"/v1", "", "custom-model", 3, zap.NewNop())
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeEmbedding))
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	srv := embeddingServer(t, http.StatusInternalServerError, nil)

	embedder, err := NewOpenAIEmbedder(srv.URL+"/v1", "key", "custom-model", 3, zap.NewNop())
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "hello")
	require.Error(t, err)
	var embedErr *apperrors.ErrEmbeddingFailed
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, "custom-model", embedErr.Model)
	assert.True(t, apperrors.IsRetryable(err))
}
