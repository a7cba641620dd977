package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-capacity-scheduling/internal/bedbank"
	"github.com/hackgods/hospital-capacity-scheduling/internal/consultation"
	"github.com/hackgods/hospital-capacity-scheduling/internal/oracle"
	"github.com/hackgods/hospital-capacity-scheduling/internal/registry"
	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: ErrSlotNotFound wraps ErrConsultationNotFound.
var errorMappings = []errorMapping{
	{consultation.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
	{consultation.ErrConsultationNotFound, http.StatusNotFound, "consultation_not_found"},
	{consultation.ErrDoctorDepartmentNotFound, http.StatusNotFound, "doctor_department_not_found"},
	{consultation.ErrPatientNotBooked, http.StatusNotFound, "patient_not_booked"},
	{consultation.ErrDoctorHasNoConsultations, http.StatusNotFound, "doctor_has_no_consultations"},
	{consultation.ErrPatientHasNoAppointments, http.StatusNotFound, "patient_has_no_appointments"},
	{consultation.ErrHospitalHasNoConsultations, http.StatusNotFound, "hospital_has_no_consultations"},
	{registry.ErrHospitalNotFound, http.StatusNotFound, "hospital_not_found"},
	{registry.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
	{registry.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
	{registry.ErrDepartmentNotFound, http.StatusNotFound, "department_not_found"},
	{bedbank.ErrDepartmentNotFound, http.StatusNotFound, "department_not_found"},
	{bedbank.ErrBedNotFound, http.StatusNotFound, "bed_not_found"},

	{consultation.ErrSlotFull, http.StatusConflict, "slot_full"},
	{consultation.ErrOnlineCapacityExceeded, http.StatusConflict, "online_capacity_exceeded"},
	{consultation.ErrPatientAlreadyBooked, http.StatusConflict, "patient_already_booked"},
	{consultation.ErrNotRecurring, http.StatusConflict, "not_recurring"},
	{bedbank.ErrAlreadyWaitlisted, http.StatusConflict, "already_waitlisted"},
	{bedbank.ErrPatientAlreadyInBed, http.StatusConflict, "patient_already_in_bed"},
	{retry.ErrExhausted, http.StatusConflict, "concurrent_update"},

	{consultation.ErrInvalidSchedule, http.StatusBadRequest, "invalid_schedule"},
	{consultation.ErrInvalidFrequency, http.StatusBadRequest, "invalid_frequency"},
	{bedbank.ErrInvalidBedCount, http.StatusBadRequest, "invalid_bed_count"},

	{oracle.ErrUnavailable, http.StatusServiceUnavailable, "oracle_unavailable"},
	{consultation.ErrOracleNotConfigured, http.StatusServiceUnavailable, "oracle_unavailable"},
	{bedbank.ErrOracleNotConfigured, http.StatusServiceUnavailable, "oracle_unavailable"},
}

// writeServiceError maps a service error onto a status and a stable code.
// Anything unrecognised is a 500 and gets logged; the body carries the
// request id so the log line can be found.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			details := err.Error()
			if m.status == http.StatusServiceUnavailable || m.code == "concurrent_update" {
				details = "try again"
			}
			writeError(w, m.status, m.code, details)
			return
		}
	}

	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("unhandled service error")
	details := "internal server error"
	if id := GetRequestID(r.Context()); id != "" {
		details += ", request " + id
	}
	writeError(w, http.StatusInternalServerError, "internal_error", details)
}
