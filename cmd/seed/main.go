package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/hospital-capacity-scheduling/internal/app"
	"github.com/hackgods/hospital-capacity-scheduling/internal/config"
	"github.com/hackgods/hospital-capacity-scheduling/internal/observability"
	"github.com/hackgods/hospital-capacity-scheduling/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	observability.InitLogger("seed", cfg.Env, cfg.LogLevel)

	if cfg.Storage != config.StoragePostgres {
		log.Fatal().Msg("seed writes to postgres; set STORAGE=postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = log.Logger.WithContext(ctx)

	a, err := app.Build(ctx, cfg, "seed")
	if err != nil {
		log.Fatal().Err(err).Msg("startup error")
	}
	defer a.Close(context.Background())

	opts := seed.DefaultOptions()
	opts.Location = cfg.Location()
	opts.Hospitals = envInt("SEED_HOSPITALS", opts.Hospitals)
	opts.DepartmentsPerHospital = envInt("SEED_DEPARTMENTS", opts.DepartmentsPerHospital)
	opts.DoctorsPerDepartment = envInt("SEED_DOCTORS", opts.DoctorsPerDepartment)
	opts.BedsPerDepartment = envInt("SEED_BEDS", opts.BedsPerDepartment)
	opts.Patients = envInt("SEED_PATIENTS", opts.Patients)
	opts.ConsultationDays = envInt("SEED_DAYS", opts.ConsultationDays)

	log.Info().
		Int("hospitals", opts.Hospitals).
		Int("patients", opts.Patients).
		Msg("seed starting")

	res, err := seed.Run(ctx, a.Registry, a.BedRepo, a.Consultations, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}

	log.Info().
		Int("departments", len(res.Departments)).
		Int("doctors", len(res.Doctors)).
		Int("consultations", len(res.Consultations)).
		Msg("seed complete")
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer, using default")
	}
	return def
}
