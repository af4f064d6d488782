package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do"
	"go.uber.org/zap"

	"hybrid-memory/backend/internal/api"
	"hybrid-memory/backend/internal/app"
	"hybrid-memory/backend/internal/memory"
	"hybrid-memory/backend/pkg/config"
	"hybrid-memory/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting hybrid memory server...",
		zap.String("store", cfg.StoreBackend),
		zap.String("similarity", cfg.SimilarityBackend),
	)

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	di := newInjector(appCtx, cfg, log)

	srv, err := newServer(di)
	if err != nil {
		log.Fatal("Failed to initialize memory engine", zap.Error(err))
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()

	if err := di.Shutdown(); err != nil {
		log.Error("Failed to close backends", zap.Error(err))
	}

	log.Info("Server exited")
}

func newInjector(ctx context.Context, cfg *config.Config, log *zap.Logger) *do.Injector {
	di := do.New()
	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)
	do.ProvideValue(di, log)
	app.Register(di)
	return di
}

// newServer resolves the coordinator, which initializes both backends, and
// mounts the API on an http.Server for the configured port
func newServer(di *do.Injector) (*http.Server, error) {
	cfg := do.MustInvoke[*config.Config](di)
	log := do.MustInvoke[*zap.Logger](di)

	coord, err := do.Invoke[*memory.Coordinator](di)
	if err != nil {
		return nil, err
	}

	router := api.NewRouter(api.NewHandler(coord, log.Named("api")), cfg.IsProduction())
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}
