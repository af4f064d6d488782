package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hybrid-memory/backend/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.StoreBackend)
	assert.Equal(t, "memory.json", cfg.MemoryFilePath)
	assert.Equal(t, "qdrant", cfg.SimilarityBackend)
	assert.Equal(t, 6334, cfg.QdrantPort)
	assert.True(t, cfg.RecreateOnDimensionMismatch)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_BACKEND", "BADGER")
	t.Setenv("BADGER_PATH", "/tmp/graph")
	t.Setenv("SIMILARITY_BACKEND", "memory")
	t.Setenv("INIT_BACKOFF", "2s")
	t.Setenv("RECREATE_ON_DIMENSION_MISMATCH", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.StoreBackend)
	assert.Equal(t, "/tmp/graph", cfg.BadgerPath)
	assert.Equal(t, "memory", cfg.SimilarityBackend)
	assert.Equal(t, 2*time.Second, cfg.InitBackoff)
	assert.False(t, cfg.RecreateOnDimensionMismatch)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9090\"\ncollection_name: notes\nreindex_concurrency: 8\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("COLLECTION_NAME", "principles")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 8, cfg.ReindexConcurrency)
	assert.Equal(t, "principles", cfg.CollectionName)
}

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	cfg := Defaults()
	cfg.StoreBackend = "postgres"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
}

func TestValidate_RequiresNeo4jCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.StoreBackend = "neo4j"
	cfg.Neo4jPassword = ""

	err := cfg.Validate()
	require.Error(t, err)
	var missing *apperrors.ErrConfigMissingRequired
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Neo4jPassword", missing.Field)
}
