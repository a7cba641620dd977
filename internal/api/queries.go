package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-capacity-scheduling/internal/consultation"
)

func doctorQueueHandler(query func(context.Context, uuid.UUID) ([]consultation.QueueEntry, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}

		entries, err := query(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]QueueEntryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, QueueEntryResponse{
				ConsultationID:  e.ConsultationID,
				HospitalID:      e.HospitalID,
				HospitalName:    e.HospitalName,
				SlotIndex:       e.SlotIndex,
				StartTime:       e.StartTime,
				EndTime:         e.EndTime,
				Position:        e.Position,
				PatientID:       e.PatientID,
				PatientName:     e.PatientName,
				Priority:        e.Priority,
				SymptomKeywords: e.SymptomKeywords,
				PossibleAilment: e.PossibleAilment,
				Diagnosed:       e.Diagnosed,
				Online:          e.Online,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func patientAppointmentsHandler(query func(context.Context, uuid.UUID) ([]consultation.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_patient_id")
		if !ok {
			return
		}

		appts, err := query(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			resp = append(resp, AppointmentResponse{
				ConsultationID: a.ConsultationID,
				HospitalID:     a.HospitalID,
				HospitalName:   a.HospitalName,
				DoctorID:       a.DoctorID,
				DoctorName:     a.DoctorName,
				Specialty:      a.Specialty,
				SlotIndex:      a.SlotIndex,
				StartTime:      a.StartTime,
				EndTime:        a.EndTime,
				QueuePosition:  a.QueuePosition,
				Priority:       a.Priority,
				Diagnosed:      a.Diagnosed,
				Online:         a.Online,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func hospitalOccupancyHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_hospital_id")
		if !ok {
			return
		}

		occ, err := svc.HospitalOccupancy(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]ConsultationOccupancyResponse, 0, len(occ))
		for _, c := range occ {
			co := ConsultationOccupancyResponse{
				ConsultationID: c.ConsultationID,
				DoctorID:       c.DoctorID,
				DoctorName:     c.DoctorName,
				Specialty:      c.Specialty,
				AnchorTime:     c.AnchorTime,
				Recurring:      c.Recurring,
				Slots:          make([]SlotOccupancyResponse, 0, len(c.Slots)),
			}
			for _, s := range c.Slots {
				so := SlotOccupancyResponse{
					Index:       s.Index,
					StartTime:   s.StartTime,
					EndTime:     s.EndTime,
					Notified:    s.Notified,
					Elapsed:     s.Elapsed,
					OnlineCount: s.OnlineCount,
					Occupants:   make([]OccupantResponse, 0, len(s.Occupants)),
				}
				for _, o := range s.Occupants {
					so.Occupants = append(so.Occupants, OccupantResponse(o))
				}
				co.Slots = append(co.Slots, so)
			}
			resp = append(resp, co)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
