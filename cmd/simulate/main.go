package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/hospital-capacity-scheduling/internal/config"
	"github.com/hackgods/hospital-capacity-scheduling/internal/db"
	"github.com/hackgods/hospital-capacity-scheduling/internal/observability"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	AllocateRatio float64
	ReleaseRatio  float64
	ReadRatio     float64
	OnlineRatio   float64
	PatientLimit  int
	ScheduleLimit int
	PostgresDSN   string
	FixedPriority bool // send explicit priorities instead of calling the oracle
}

type consultationRef struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
	Slots    int
}

type departmentRef struct {
	ID   uuid.UUID
	Beds int
}

type DataPool struct {
	Patients      []uuid.UUID
	Consultations []consultationRef
	Departments   []departmentRef
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking     OperationMetrics
	Allocate    OperationMetrics
	Release     OperationMetrics
	Waitlisted  int64
	ReadQueue   OperationMetrics
	ReadPatient OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("allocate", cfg.AllocateRatio).
		Float64("release", cfg.ReleaseRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}

	log.Info().
		Int("patients", len(dataPool.Patients)).
		Int("consultations", len(dataPool.Consultations)).
		Int("departments", len(dataPool.Departments)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load base config")
	}
	observability.InitLogger("simulate", baseCfg.Env, baseCfg.LogLevel)

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.4),
		AllocateRatio: getFloat("SIM_ALLOCATE_RATIO", 0.2),
		ReleaseRatio:  getFloat("SIM_RELEASE_RATIO", 0.1),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		OnlineRatio:   getFloat("SIM_ONLINE_RATIO", 0.3),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 4000),
		ScheduleLimit: getInt("SIM_SCHEDULE_LIMIT", 500),
		PostgresDSN:   baseCfg.PostgresDSN,
		FixedPriority: getEnv("SIM_FIXED_PRIORITY", "true") == "true",
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.AllocateRatio + cfg.ReleaseRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.AllocateRatio /= total
		cfg.ReleaseRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	// Consultations that still have a slot ahead of now.
	rows, err = pool.Query(ctx, `
		SELECT c.id, c.doctor_id, count(s.slot_index)
		FROM consultations c
		JOIN consultation_slots s ON s.consultation_id = c.id
		WHERE c.end_time > now()
		GROUP BY c.id, c.doctor_id
		LIMIT $1
	`, cfg.ScheduleLimit)
	if err != nil {
		return nil, fmt.Errorf("load consultations: %w", err)
	}
	for rows.Next() {
		var ref consultationRef
		if err := rows.Scan(&ref.ID, &ref.DoctorID, &ref.Slots); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Consultations = append(dataPool.Consultations, ref)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `
		SELECT id, cardinality(beds) FROM departments WHERE cardinality(beds) > 0 LIMIT $1
	`, cfg.ScheduleLimit)
	if err != nil {
		return nil, fmt.Errorf("load departments: %w", err)
	}
	for rows.Next() {
		var ref departmentRef
		if err := rows.Scan(&ref.ID, &ref.Beds); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Departments = append(dataPool.Departments, ref)
	}
	rows.Close()

	if len(dataPool.Patients) == 0 {
		return nil, errors.New("no patients loaded")
	}
	if len(dataPool.Consultations) == 0 && len(dataPool.Departments) == 0 {
		return nil, errors.New("no consultations or departments loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Info().Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.AllocateRatio:
				s.doAllocate(ctx, rng)
			case r < s.config.BookingRatio+s.config.AllocateRatio+s.config.ReleaseRatio:
				s.doRelease(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doReadQueue(ctx, rng)
				} else {
					s.doReadPatient(ctx, rng)
				}
			}
		}
	}
}

// send issues one JSON request and returns the status, or 0 on a transport error.
func (s *Simulator) send(ctx context.Context, method, path string, body any, out any) (int, time.Duration) {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()

	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency
}

func (s *Simulator) randomPatient(rng *rand.Rand) uuid.UUID {
	return s.pool.Patients[rng.Intn(len(s.pool.Patients))]
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Consultations) == 0 {
		return
	}
	c := s.pool.Consultations[rng.Intn(len(s.pool.Consultations))]

	body := map[string]any{
		"patient_id":       s.randomPatient(rng).String(),
		"symptom_keywords": []string{"fever", "cough"},
		"possible_ailment": "flu",
		"illness_severity": rng.Float64() * 10,
		"transmittable":    rng.Intn(4) == 0,
		"online":           rng.Float64() < s.config.OnlineRatio,
	}

	status, latency := s.send(ctx, http.MethodPost,
		fmt.Sprintf("/consultations/%s/slots/%d/bookings", c.ID, rng.Intn(c.Slots)), body, nil)
	if ctx.Err() != nil {
		return
	}

	s.metrics.Booking.Record(latency, status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doAllocate(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Departments) == 0 {
		return
	}
	d := s.pool.Departments[rng.Intn(len(s.pool.Departments))]

	body := map[string]any{
		"patient_id":       s.randomPatient(rng).String(),
		"illness_severity": rng.Float64() * 10,
		"transmittable":    rng.Intn(4) == 0,
		"doctor_offset":    rng.Float64(),
		"waiting_period":   float64(rng.Intn(72)),
	}
	if s.config.FixedPriority {
		body["priority"] = rng.Float64() * 100
	}

	status, latency := s.send(ctx, http.MethodPost, fmt.Sprintf("/departments/%s/beds/allocate", d.ID), body, nil)
	if ctx.Err() != nil {
		return
	}
	if status == http.StatusAccepted {
		atomic.AddInt64(&s.metrics.Waitlisted, 1)
	}

	ok := status == http.StatusCreated || status == http.StatusAccepted
	s.metrics.Allocate.Record(latency, ok, status == http.StatusConflict)
}

func (s *Simulator) doRelease(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Departments) == 0 {
		return
	}
	d := s.pool.Departments[rng.Intn(len(s.pool.Departments))]

	status, latency := s.send(ctx, http.MethodPut,
		fmt.Sprintf("/departments/%s/beds/%d", d.ID, rng.Intn(d.Beds)), map[string]bool{"occupied": false}, nil)
	if ctx.Err() != nil {
		return
	}

	s.metrics.Release.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReadQueue(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Consultations) == 0 {
		return
	}
	c := s.pool.Consultations[rng.Intn(len(s.pool.Consultations))]

	status, latency := s.send(ctx, http.MethodGet, fmt.Sprintf("/doctors/%s/patients/upcoming", c.DoctorID), nil, nil)
	if ctx.Err() != nil {
		return
	}

	// 404 means the doctor has no bookings yet, which is a valid answer.
	s.metrics.ReadQueue.Record(latency, status == http.StatusOK || status == http.StatusNotFound, false)
}

func (s *Simulator) doReadPatient(ctx context.Context, rng *rand.Rand) {
	status, latency := s.send(ctx, http.MethodGet,
		fmt.Sprintf("/patients/%s/appointments/upcoming", s.randomPatient(rng)), nil, nil)
	if ctx.Err() != nil {
		return
	}

	s.metrics.ReadPatient.Record(latency, status == http.StatusOK || status == http.StatusNotFound, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Slot booking", &s.metrics.Booking)
	printOperationReport("Bed allocation", &s.metrics.Allocate)
	if w := atomic.LoadInt64(&s.metrics.Waitlisted); w > 0 {
		fmt.Printf("  Waitlisted: %d\n\n", w)
	}
	printOperationReport("Bed release", &s.metrics.Release)
	printOperationReport("Doctor queue", &s.metrics.ReadQueue)
	printOperationReport("Patient appointments", &s.metrics.ReadPatient)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
