package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do"
	"go.uber.org/zap"

	"hybrid-memory/backend/internal/app"
	"hybrid-memory/backend/internal/memory"
	"hybrid-memory/backend/pkg/config"
	"hybrid-memory/backend/pkg/logger"
)

func main() {
	recreate := flag.Bool("recreate", false, "Drop and recreate the collection before reindexing")
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
	log.Info("Starting reindex...", zap.Bool("recreate", *recreate))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	di := do.New()
	do.ProvideValue(di, context.Context(ctx))
	do.ProvideValue(di, cfg)
	do.ProvideValue(di, log)
	app.Register(di)
	defer func() {
		if err := di.Shutdown(); err != nil {
			log.Error("Failed to close backends", zap.Error(err))
		}
	}()

	report, err := run(ctx, di, *recreate)
	if err != nil {
		_ = di.Shutdown()
		log.Fatal("Reindex failed", zap.Error(err))
	}

	for _, f := range report.Failures {
		log.Warn("Record not mirrored",
			zap.String("kind", f.Kind),
			zap.String("key", f.Key),
			zap.String("error", f.Error),
		)
	}

	log.Info("Reindex completed",
		zap.Bool("recreated", report.Recreated),
		zap.Int("entities", report.Entities),
		zap.Int("relations", report.Relations),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("duration", report.Duration),
	)
}

func run(ctx context.Context, di *do.Injector, recreate bool) (*memory.ReindexReport, error) {
	coord, err := do.Invoke[*memory.Coordinator](di)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory engine: %w", err)
	}
	return coord.Reindex(ctx, recreate)
}
