package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hybrid-memory/backend/internal/adapter"
	"hybrid-memory/backend/internal/graph"
	"hybrid-memory/backend/internal/memory"
	"hybrid-memory/backend/pkg/config"
)

func offlineConfig(t *testing.T, storeBackend string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.StoreBackend = storeBackend
	cfg.MemoryFilePath = filepath.Join(t.TempDir(), "memory.json")
	cfg.BadgerPath = filepath.Join(t.TempDir(), "badger")
	cfg.SimilarityBackend = "memory"
	cfg.EmbeddingBackend = "hash"
	cfg.EmbeddingDimensions = 48
	cfg.InitRetries = 1
	return cfg
}

func newInjector(t *testing.T, cfg *config.Config) *do.Injector {
	t.Helper()
	di := do.New()
	do.ProvideValue(di, context.Background())
	do.ProvideValue(di, cfg)
	do.ProvideValue(di, zap.NewNop())
	Register(di)
	t.Cleanup(func() { _ = di.Shutdown() })
	return di
}

func TestRegister_FileStoreWithMemoryIndex(t *testing.T) {
	di := newInjector(t, offlineConfig(t, "file"))

	embedder := do.MustInvoke[adapter.Embedder](di)
	assert.Equal(t, adapter.HashModel, embedder.Model())
	assert.Equal(t, 48, embedder.Dimensions())

	backends := do.MustInvoke[*Backends](di)
	assert.IsType(t, &graph.FileStore{}, backends.Store)
	assert.True(t, backends.InitReport.Created)
	assert.Equal(t, 48, backends.InitReport.Dimension)

	coord := do.MustInvoke[*memory.Coordinator](di)
	ctx := context.Background()
	_, err := coord.CreateEntities(ctx, []graph.Entity{{Name: "wired", EntityType: graph.Single("test")}})
	require.NoError(t, err)

	matches, err := coord.SearchSimilar(ctx, "wired", 5, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "wired", matches[0].Entity.Name)
}

func TestRegister_BadgerStore(t *testing.T) {
	di := newInjector(t, offlineConfig(t, "badger"))

	backends := do.MustInvoke[*Backends](di)
	assert.IsType(t, &graph.BadgerStore{}, backends.Store)

	coord := do.MustInvoke[*memory.Coordinator](di)
	g, err := coord.ReadGraph(context.Background())
	require.NoError(t, err)
	assert.Empty(t, g.Entities)
}

func TestRegister_UnknownEmbeddingModelFails(t *testing.T) {
	cfg := offlineConfig(t, "file")
	cfg.EmbeddingBackend = "openai"
	cfg.EmbeddingModel = "mystery-model"
	cfg.EmbeddingDimensions = 0
	di := newInjector(t, cfg)

	_, err := do.Invoke[*memory.Coordinator](di)
	assert.Error(t, err)
}
