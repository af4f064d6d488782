package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/do"
	"go.uber.org/zap"

	"hybrid-memory/backend/internal/adapter"
	"hybrid-memory/backend/internal/graph"
	"hybrid-memory/backend/internal/memory"
	"hybrid-memory/backend/internal/similarity"
	"hybrid-memory/backend/internal/utils"
	"hybrid-memory/backend/pkg/config"
)

// Register wires the memory engine into the injector. The caller must have
// provided a context.Context, a *config.Config and a *zap.Logger.
func Register(di *do.Injector) {
	do.Provide(di, NewEmbedder)
	do.Provide(di, NewBackends)
	do.Provide(di, NewCoordinator)
}

var _ do.Shutdownable = (*Backends)(nil)

// Backends holds the initialized canonical store and similarity index
type Backends struct {
	Store      graph.Store
	Index      *similarity.Index
	InitReport similarity.InitReport
	logger     *zap.Logger
}

// Shutdown closes both backends
func (b *Backends) Shutdown() error {
	var errs []error
	if err := b.Index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close similarity index: %w", err))
	}
	if err := b.Store.Close(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("failed to close record store: %w", err))
	}
	b.logger.Info("Backends closed")
	return errors.Join(errs...)
}

// NewEmbedder builds the configured embedding backend
func NewEmbedder(di *do.Injector) (adapter.Embedder, error) {
	cfg := do.MustInvoke[*config.Config](di)
	log := do.MustInvoke[*zap.Logger](di)

	switch cfg.EmbeddingBackend {
	case "hash":
		return adapter.NewHashEmbedder(cfg.EmbeddingDimensions), nil
	default:
		embedder, err := adapter.NewOpenAIEmbedder(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions, log.Named("embedder"))
		if err != nil {
			return nil, err
		}
		return embedder, nil
	}
}

// NewBackends opens and initializes the record store and similarity index
func NewBackends(di *do.Injector) (*Backends, error) {
	ctx := do.MustInvoke[context.Context](di)
	cfg := do.MustInvoke[*config.Config](di)
	log := do.MustInvoke[*zap.Logger](di)
	embedder := do.MustInvoke[adapter.Embedder](di)

	retry := utils.RetryPolicy{Attempts: cfg.InitRetries, Backoff: cfg.InitBackoff}

	store, err := newStore(cfg, retry, log)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	log.Info("Record store initialized", zap.String("backend", cfg.StoreBackend))

	points, err := newPointIndex(cfg)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	index := similarity.NewIndex(points, embedder, similarity.Options{
		Collection:                  cfg.CollectionName,
		RecreateOnDimensionMismatch: cfg.RecreateOnDimensionMismatch,
		Retry:                       retry,
	}, log.Named("similarity"))

	report, err := index.Initialize(ctx)
	if err != nil {
		_ = index.Close()
		_ = store.Close(ctx)
		return nil, err
	}
	log.Info("Similarity index initialized",
		zap.String("backend", cfg.SimilarityBackend),
		zap.String("collection", cfg.CollectionName),
		zap.String("embedding_model", embedder.Model()),
		zap.Int("dimension", report.Dimension),
		zap.Bool("created", report.Created),
		zap.Bool("recreated", report.Recreated),
	)

	return &Backends{Store: store, Index: index, InitReport: report, logger: log}, nil
}

// NewCoordinator builds the hybrid coordinator over the initialized backends
func NewCoordinator(di *do.Injector) (*memory.Coordinator, error) {
	cfg := do.MustInvoke[*config.Config](di)
	log := do.MustInvoke[*zap.Logger](di)
	backends, err := do.Invoke[*Backends](di)
	if err != nil {
		return nil, err
	}
	return memory.NewCoordinator(backends.Store, backends.Index, log.Named("memory"),
		memory.WithReindexConcurrency(cfg.ReindexConcurrency),
	), nil
}

func newStore(cfg *config.Config, retry utils.RetryPolicy, log *zap.Logger) (graph.Store, error) {
	switch cfg.StoreBackend {
	case "neo4j":
		driver, err := graph.NewDriver(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		return graph.NewRepository(driver, cfg.Neo4jDatabase, retry, log.Named("neo4j")), nil
	case "badger":
		return graph.NewBadgerStore(graph.BadgerOptions{Path: cfg.BadgerPath, SyncWrites: true}, log.Named("badger")), nil
	default:
		return graph.NewFileStore(cfg.MemoryFilePath, log.Named("file_store")), nil
	}
}

func newPointIndex(cfg *config.Config) (similarity.PointIndex, error) {
	switch cfg.SimilarityBackend {
	case "memory":
		return similarity.NewMemoryIndex(), nil
	default:
		index, err := similarity.NewQdrantIndex(similarity.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.CollectionName,
		})
		if err != nil {
			return nil, err
		}
		return index, nil
	}
}
