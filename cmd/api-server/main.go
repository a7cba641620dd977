package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/hospital-capacity-scheduling/internal/api"
	"github.com/hackgods/hospital-capacity-scheduling/internal/app"
	"github.com/hackgods/hospital-capacity-scheduling/internal/config"
	"github.com/hackgods/hospital-capacity-scheduling/internal/observability"
	"github.com/hackgods/hospital-capacity-scheduling/internal/seed"
)

const serviceName = "api-server"

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	observability.InitLogger(serviceName, cfg.Env, cfg.LogLevel)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("storage", cfg.Storage).
		Str("notifier", cfg.Notifier).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancelBoot := context.WithTimeout(rootCtx, 30*time.Second)
	a, err := app.Build(bootCtx, cfg, serviceName)
	cancelBoot()
	if err != nil {
		log.Fatal().Err(err).Msg("startup error")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		a.Close(ctx)
	}()

	// Demo data so an in-memory server is usable straight away.
	if cfg.Storage == config.StorageMemory && os.Getenv("SEED_DEMO") == "true" {
		opts := seed.DefaultOptions()
		opts.Location = cfg.Location()
		if _, err := seed.Run(log.Logger.WithContext(rootCtx), a.Registry, a.BedRepo, a.Consultations, opts); err != nil {
			log.Fatal().Err(err).Msg("seed demo data")
		}
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Consultations: a.Consultations,
			Beds:          a.Beds,
			PgPool:        a.Pool,
			Redis:         a.Redis,
			Env:           cfg.Env,
			Version:       version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}

	log.Info().Msg("api-server stopped")
}
