package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/samber/do"
	"go.uber.org/zap"

	"hybrid-memory/backend/internal/app"
	"hybrid-memory/backend/internal/graph"
	"hybrid-memory/backend/internal/memory"
	"hybrid-memory/backend/internal/metalearning"
	"hybrid-memory/backend/pkg/config"
	apperrors "hybrid-memory/backend/pkg/errors"
	"hybrid-memory/backend/pkg/logger"
)

func main() {
	reset := flag.Bool("reset", false, "Delete every entity before seeding")
	skipConfirm := flag.Bool("y", false, "Skip confirmation prompt")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting memory seeding...", zap.String("store", cfg.StoreBackend))

	if *reset && !*skipConfirm {
		log.Warn("This will DELETE ALL ENTITIES from the record store and index")
		fmt.Print("Are you sure you want to continue? (yes/no): ")
		var response string
		fmt.Scanln(&response)
		if response != "yes" && response != "y" {
			log.Info("Aborted.")
			os.Exit(0)
		}
	}

	ctx := context.Background()
	di := do.New()
	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)
	do.ProvideValue(di, log)
	app.Register(di)
	defer di.Shutdown()

	coord, err := do.Invoke[*memory.Coordinator](di)
	if err != nil {
		log.Fatal("Failed to initialize memory engine", zap.Error(err))
	}

	if *reset {
		log.Info("Step 1: Deleting all entities...")
		if err := deleteAll(ctx, coord); err != nil {
			log.Fatal("Failed to delete entities", zap.Error(err))
		}
		if _, err := coord.Reindex(ctx, true); err != nil {
			log.Fatal("Failed to recreate index", zap.Error(err))
		}
	}

	log.Info("Step 2: Creating entities...")
	created, err := coord.CreateEntities(ctx, seedEntities())
	if err != nil {
		log.Fatal("Failed to create entities", zap.Error(err))
	}
	log.Info("Entities created", zap.Int("count", len(created)))

	log.Info("Step 3: Creating relations...")
	saved, err := coord.CreateRelations(ctx, seedRelations())
	if err != nil {
		log.Fatal("Failed to create relations", zap.Error(err))
	}
	log.Info("Relations created", zap.Int("count", len(saved)))

	log.Info("Step 4: Storing principles...")
	for _, p := range seedPrinciples() {
		res, err := coord.StorePrinciple(ctx, p)
		if apperrors.IsValidation(err) {
			log.Info("Principle already stored", zap.String("principle", p.Principle))
			continue
		}
		if err != nil {
			log.Fatal("Failed to store principle", zap.Error(err))
		}
		log.Info("Principle stored", zap.String("name", res.Entity.Name), zap.Int("links", len(res.Relations)))
	}

	log.Info("Seeding completed successfully!")
}

func deleteAll(ctx context.Context, coord *memory.Coordinator) error {
	g, err := coord.ReadGraph(ctx)
	if err != nil {
		return err
	}
	if len(g.Entities) == 0 {
		return nil
	}
	names := make([]string, 0, len(g.Entities))
	for _, e := range g.Entities {
		names = append(names, e.Name)
	}
	return coord.DeleteEntities(ctx, names)
}

func seedEntities() []graph.Entity {
	return []graph.Entity{
		{
			Name:         "Hybrid Memory",
			EntityType:   graph.Multiple("project", "system"),
			Observations: []string{"Knowledge graph with a vector similarity mirror", "Record store is the source of truth"},
		},
		{
			Name:         "Qdrant",
			EntityType:   graph.Single("technology"),
			Observations: []string{"Vector database used as the similarity index"},
		},
		{
			Name:         "Neo4j",
			EntityType:   graph.Single("technology"),
			Observations: []string{"Graph database usable as the record store"},
		},
		{
			Name:         "Badger",
			EntityType:   graph.Single("technology"),
			Observations: []string{"Embedded key-value store usable as the record store"},
		},
	}
}

func seedRelations() []graph.Relation {
	strong := 0.9
	return []graph.Relation{
		{From: "Hybrid Memory", To: "Qdrant", RelationType: "uses", Metadata: &graph.RelationMetadata{Strength: &strong}},
		{From: "Hybrid Memory", To: "Neo4j", RelationType: "supports"},
		{From: "Hybrid Memory", To: "Badger", RelationType: "supports"},
	}
}

func seedPrinciples() []metalearning.PrincipleInput {
	return []metalearning.PrincipleInput{
		{
			Principle:           "Write the canonical store before mirroring to the index",
			LearningType:        "pattern",
			TriggerSituation:    "Any mutation of entities or relations",
			RecommendedBehavior: "Treat index failures as recoverable through reindex",
			Domain:              "storage",
			Tags:                []string{"consistency", "indexing"},
			RelatedEntities:     []string{"Hybrid Memory"},
		},
		{
			Principle:           "Recreate the collection when the embedding model changes",
			LearningType:        "failure",
			ObservedBehavior:    "Searches failed after switching to a larger embedding model",
			RecommendedBehavior: "Enable recreate on dimension mismatch and reindex",
			Domain:              "storage",
			RelatedEntities:     []string{"Qdrant"},
		},
	}
}
