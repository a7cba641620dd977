// Package app assembles the stores, collaborators and services selected by
// config so every binary wires them the same way.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/hospital-capacity-scheduling/internal/audit"
	"github.com/hackgods/hospital-capacity-scheduling/internal/bedbank"
	"github.com/hackgods/hospital-capacity-scheduling/internal/config"
	"github.com/hackgods/hospital-capacity-scheduling/internal/consultation"
	"github.com/hackgods/hospital-capacity-scheduling/internal/db"
	"github.com/hackgods/hospital-capacity-scheduling/internal/notify"
	"github.com/hackgods/hospital-capacity-scheduling/internal/observability"
	"github.com/hackgods/hospital-capacity-scheduling/internal/oracle"
	redisclient "github.com/hackgods/hospital-capacity-scheduling/internal/redis"
	"github.com/hackgods/hospital-capacity-scheduling/internal/registry"
	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

type App struct {
	Pool  *pgxpool.Pool // nil in memory mode
	Redis *redis.Client // nil when redis is unavailable in memory mode

	Directory        registry.Directory
	Registry         registry.Writer
	ConsultationRepo consultation.Repository
	BedRepo          bedbank.Repository

	Consultations *consultation.Service
	Beds          *bedbank.Allocator
	Metrics       *observability.Metrics

	closers []func(context.Context) error
}

// Build connects the configured backends. Postgres mode applies pending
// migrations and requires redis for the refresh lock; memory mode runs
// single-instance and treats redis as optional unless it carries notifications.
func Build(ctx context.Context, cfg config.Config, service string) (*App, error) {
	a := &App{}

	shutdownMetrics, err := observability.SetupMetrics(ctx, service, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownMetrics)

	a.Metrics, err = observability.InitMetrics()
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	if err := a.openStorage(ctx, cfg); err != nil {
		a.Close(ctx)
		return nil, err
	}

	if err := a.openRedis(ctx, cfg); err != nil {
		a.Close(ctx)
		return nil, err
	}

	notifier, err := a.notifier(cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	var events audit.Recorder
	if a.Pool != nil {
		events = audit.NewPgRecorder(a.Pool)
	} else {
		events = audit.NewMemoryRecorder()
	}

	var locker redisclient.Locker
	if a.Redis != nil {
		locker = redisclient.NewRedisLocker(a.Redis, cfg.LockTTL)
	}

	scorer := oracle.NewHTTPClient(cfg.OracleURL, cfg.OracleTimeout, a.Metrics)
	rc := retry.WithAttempts(cfg.MaxConflictRetries)

	a.Consultations = consultation.NewService(a.ConsultationRepo, a.Directory, consultation.Options{
		Oracle:       scorer,
		Notifier:     notifier,
		Locker:       locker,
		Events:       events,
		Metrics:      a.Metrics,
		Location:     cfg.Location(),
		NotifyWindow: cfg.NotifyWindow,
		Retry:        rc,
	})
	a.Beds = bedbank.NewAllocator(a.BedRepo, a.Directory, bedbank.Options{
		Oracle:   scorer,
		Notifier: notifier,
		Events:   events,
		Metrics:  a.Metrics,
		Retry:    rc,
	})

	return a, nil
}

func (a *App) openStorage(ctx context.Context, cfg config.Config) error {
	if cfg.Storage == config.StorageMemory {
		dir := registry.NewMemoryDirectory()
		a.Directory = dir
		a.Registry = dir
		a.ConsultationRepo = consultation.NewMemoryRepository()
		a.BedRepo = bedbank.NewMemoryRepository()
		log.Warn().Msg("using in-memory storage, state is lost on exit")
		return nil
	}

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	a.Pool = pool
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	dir := registry.NewPgDirectory(pool)
	a.Directory = dir
	a.Registry = dir
	a.ConsultationRepo = consultation.NewPgRepository(pool)
	a.BedRepo = bedbank.NewPgRepository(pool)
	return nil
}

func (a *App) openRedis(ctx context.Context, cfg config.Config) error {
	if cfg.RedisAddr == "" {
		if cfg.Storage == config.StoragePostgres || cfg.Notifier == config.NotifierRedis {
			return errors.New("redis address is required")
		}
		return nil
	}

	client, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		if cfg.Storage == config.StorageMemory && cfg.Notifier != config.NotifierRedis {
			log.Warn().Err(err).Msg("redis unavailable, refresh ticks run without the cluster lock")
			return nil
		}
		return fmt.Errorf("connect redis: %w", err)
	}

	a.Redis = client
	a.closers = append(a.closers, func(context.Context) error {
		return client.Close()
	})
	return nil
}

func (a *App) notifier(cfg config.Config) (notify.Notifier, error) {
	switch cfg.Notifier {
	case config.NotifierRedis:
		if a.Redis == nil {
			return nil, errors.New("redis notifier needs a redis connection")
		}
		return notify.NewRedisNotifier(a.Redis), nil
	case config.NotifierKafka:
		k := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, func(context.Context) error {
			return k.Close()
		})
		return k, nil
	default:
		return notify.LogNotifier{}, nil
	}
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}
	a.closers = nil
}
