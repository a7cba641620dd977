package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/hospital-capacity-scheduling/internal/app"
	"github.com/hackgods/hospital-capacity-scheduling/internal/config"
	"github.com/hackgods/hospital-capacity-scheduling/internal/consultation"
	"github.com/hackgods/hospital-capacity-scheduling/internal/observability"
)

const serviceName = "refresh-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	observability.InitLogger(serviceName, cfg.Env, cfg.LogLevel)
	log.Info().
		Dur("interval", cfg.WorkerInterval).
		Dur("notify_window", cfg.NotifyWindow).
		Msg("refresh worker starting up")

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

	// Run once at startup
	runOnce(rootCtx, a.Consultations, cfg.LockTTL)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping refresh worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, a.Consultations, cfg.LockTTL)
		}
	}
}

// runOnce bounds a tick by the lock TTL so a slow tick cannot outlive its lock.
func runOnce(ctx context.Context, svc *consultation.Service, budget time.Duration) {
	runCtx, cancel := context.WithTimeout(log.Logger.WithContext(ctx), budget)
	defer cancel()

	start := time.Now()
	res, err := svc.RefreshSchedules(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("refresh run error")
		return
	}
	if res.Skipped {
		log.Debug().Msg("refresh tick held by another instance")
		return
	}
	log.Info().
		Int("notified", res.Notified).
		Int("elapsed", res.Elapsed).
		Int("materialized", res.Materialized).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("refresh run complete")
}
