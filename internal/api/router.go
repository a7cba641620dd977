package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/hospital-capacity-scheduling/internal/bedbank"
	"github.com/hackgods/hospital-capacity-scheduling/internal/consultation"
)

type RouterConfig struct {
	Consultations *consultation.Service
	Beds          *bedbank.Allocator
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	cs := cfg.Consultations

	// Consultation endpoints
	r.Route("/consultations", func(r chi.Router) {
		r.Post("/", createConsultationHandler(cs))
		r.Post("/preview", previewSlotsHandler())
		r.Get("/{id}", getConsultationHandler(cs))
		r.Post("/{id}/slots/{index}/bookings", bookSlotHandler(cs))
		r.Post("/{id}/sort", forceSortHandler(cs))
		r.Post("/{id}/diagnosed", markDiagnosedHandler(cs))
		r.Patch("/{id}/recurrence", updateRecurrenceHandler(cs))
	})
	r.Post("/schedules/refresh", refreshSchedulesHandler(cs))

	// Query endpoints
	r.Get("/doctors/{id}/patients/upcoming", doctorQueueHandler(cs.UpcomingForDoctor))
	r.Get("/doctors/{id}/patients/past", doctorQueueHandler(cs.PastForDoctor))
	r.Get("/patients/{id}/appointments/upcoming", patientAppointmentsHandler(cs.UpcomingForPatient))
	r.Get("/patients/{id}/appointments/past", patientAppointmentsHandler(cs.PastForPatient))
	r.Get("/hospitals/{id}/consultations", hospitalOccupancyHandler(cs))

	// Bed endpoints
	r.Route("/departments/{id}/beds", func(r chi.Router) {
		r.Get("/", listBedsHandler(cfg.Beds))
		r.Post("/", addBedsHandler(cfg.Beds))
		r.Post("/allocate", allocateBedHandler(cfg.Beds))
		r.Put("/{index}", setBedStatusHandler(cfg.Beds))
	})

	return r
}
