package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hybrid-memory/backend/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.Env = "test"
	cfg.Port = "0"
	cfg.MemoryFilePath = filepath.Join(t.TempDir(), "memory.json")
	cfg.SimilarityBackend = "memory"
	cfg.EmbeddingBackend = "hash"
	cfg.EmbeddingDimensions = 32
	return cfg
}

func TestNewServer_ServesAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	di := newInjector(context.Background(), testConfig(t), zap.NewNop())
	defer di.Shutdown()

	srv, err := newServer(di)
	require.NoError(t, err)
	assert.Equal(t, ":0", srv.Addr)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "ok", response["status"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/entities", bytes.NewBuffer([]byte(`{"entities":[{"name":"x","entityType":"note"}]}`)))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestNewServer_InvalidRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	di := newInjector(context.Background(), testConfig(t), zap.NewNop())
	defer di.Shutdown()

	srv, err := newServer(di)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/search", bytes.NewBuffer([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNewServer_BackendFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.EmbeddingBackend = "openai"
	cfg.EmbeddingModel = "unknown-model"
	cfg.EmbeddingDimensions = 0

	di := newInjector(context.Background(), cfg, zap.NewNop())
	defer di.Shutdown()

	_, err := newServer(di)
	assert.Error(t, err)
}
