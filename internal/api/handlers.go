package api

import (
	"net/http"

	"github.com/hackgods/hospital-capacity-scheduling/internal/consultation"
)

func createConsultationHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateConsultationRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		hospitalID, ok := uuidField(w, req.HospitalID, "hospital_id")
		if !ok {
			return
		}
		doctorID, ok := uuidField(w, req.DoctorID, "doctor_id")
		if !ok {
			return
		}

		c, err := svc.CreateConsultation(r.Context(), consultation.CreateInput{
			HospitalID:          hospitalID,
			DoctorID:            doctorID,
			StartTime:           req.StartTime,
			EndTime:             req.EndTime,
			SlotDurationMinutes: req.SlotDurationMinutes,
			Recurring:           req.Recurring,
			Frequency:           consultation.Frequency(req.Frequency),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toConsultationResponse(c))
	}
}

// previewSlotsHandler shows the slots a window would produce without storing anything.
func previewSlotsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PreviewSlotsRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		slots := consultation.GenerateSlots(req.StartTime.UTC(), req.EndTime.UTC(), req.SlotDurationMinutes)
		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getConsultationHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_consultation_id")
		if !ok {
			return
		}

		c, err := svc.GetConsultation(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func bookSlotHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_consultation_id")
		if !ok {
			return
		}
		index, ok := intParam(w, r, "index", "invalid_slot_index")
		if !ok {
			return
		}

		var req BookSlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := uuidField(w, req.PatientID, "patient_id")
		if !ok {
			return
		}

		adm, err := svc.BookSlot(r.Context(), consultation.BookingRequest{
			ConsultationID:  id,
			SlotIndex:       index,
			PatientID:       patientID,
			SymptomKeywords: req.SymptomKeywords,
			PossibleAilment: req.PossibleAilment,
			IllnessSeverity: req.IllnessSeverity,
			Transmittable:   req.Transmittable,
			Online:          req.Online,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, AdmissionResponse{
			ConsultationID: adm.ConsultationID,
			SlotIndex:      adm.SlotIndex,
			PatientID:      adm.PatientID,
			Priority:       adm.Priority,
			Position:       adm.Position,
			Online:         adm.Online,
			StartTime:      adm.StartTime,
			EndTime:        adm.EndTime,
		})
	}
}

func forceSortHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_consultation_id")
		if !ok {
			return
		}

		c, err := svc.ForceSort(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func markDiagnosedHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_consultation_id")
		if !ok {
			return
		}

		var req MarkDiagnosedRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := uuidField(w, req.PatientID, "patient_id")
		if !ok {
			return
		}

		if err := svc.MarkDiagnosed(r.Context(), id, patientID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func updateRecurrenceHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_consultation_id")
		if !ok {
			return
		}

		var req UpdateRecurrenceRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		upd := consultation.RecurrenceUpdate{Paused: req.Paused}
		if req.Frequency != nil {
			f := consultation.Frequency(*req.Frequency)
			upd.Frequency = &f
		}

		c, err := svc.UpdateRecurrence(r.Context(), id, upd)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func refreshSchedulesHandler(svc *consultation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.RefreshSchedules(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
