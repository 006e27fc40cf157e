package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"customcolors/internal/app"
	"customcolors/internal/infra"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	// Config & logger
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}

	server := infra.NewHTTPServer(cfg, container.Handler(), &logger)
	container.Reaper.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", server.Addr()).
			Str("storage", cfg.StorageBackend).
			Dur("retention", cfg.ArtifactRetention).
			Dur("token_ttl", cfg.DownloadTokenTTL).
			Msg("API listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server")
		}
		select {
		case <-container.Reaper.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("reaper sweep still running at shutdown")
		}
		container.Tokens.Flush()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("http server failed")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
