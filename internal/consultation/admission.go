package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-capacity-scheduling/internal/audit"
	"github.com/hackgods/hospital-capacity-scheduling/internal/oracle"
	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

var (
	ErrSlotFull               = errors.New("slot is full")
	ErrOnlineCapacityExceeded = errors.New("online capacity for slot exceeded")
	ErrPatientAlreadyBooked   = errors.New("patient already booked in this consultation")
	ErrPatientNotBooked       = errors.New("patient has no booking in this consultation")
	ErrOracleNotConfigured    = errors.New("priority oracle not configured")
)

type BookingRequest struct {
	ConsultationID  uuid.UUID
	SlotIndex       int
	PatientID       uuid.UUID
	SymptomKeywords []string
	PossibleAilment string
	IllnessSeverity float64
	Transmittable   bool
	Online          bool
}

type Admission struct {
	ConsultationID uuid.UUID
	SlotIndex      int
	PatientID      uuid.UUID
	Priority       float64
	Position       int
	Online         bool
	StartTime      time.Time
	EndTime        time.Time
}

// checkCapacity validates an admission against current state. A patient never
// holds two places in one slot, diagnosed or not; another slot of the same
// consultation only becomes available once every earlier booking is diagnosed.
func checkCapacity(c *Consultation, slot *Slot, patientID uuid.UUID, online bool) error {
	if slot.Position(patientID) > 0 {
		return ErrPatientAlreadyBooked
	}
	if len(slot.Users) >= MaxSlotCapacity {
		return ErrSlotFull
	}
	if online && slot.OnlineCount >= MaxOnlineCapacity {
		return ErrOnlineCapacityExceeded
	}
	if c.HoldsUnresolved(patientID) {
		return ErrPatientAlreadyBooked
	}
	return nil
}

// BookSlot admits a patient into one slot. Capacity is checked up front, the
// oracle is asked for a priority exactly once, and the insert is then applied
// with compare-and-swap, re-validating against fresh state on every attempt.
// Nothing is written when the oracle fails.
func (s *Service) BookSlot(ctx context.Context, req BookingRequest) (adm *Admission, err error) {
	log := zerolog.Ctx(ctx).With().
		Str("consultation_id", req.ConsultationID.String()).
		Int("slot_index", req.SlotIndex).
		Str("patient_id", req.PatientID.String()).
		Logger()

	defer func() {
		s.opts.Metrics.RecordAdmission(ctx, admissionOutcome(err), req.Online)
	}()

	c, err := s.repo.GetConsultation(ctx, req.ConsultationID)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}
	if req.SlotIndex < 0 || req.SlotIndex >= len(c.Slots) {
		return nil, ErrSlotNotFound
	}
	if err := checkCapacity(c, &c.Slots[req.SlotIndex], req.PatientID, req.Online); err != nil {
		return nil, err
	}

	patient, err := s.dir.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if s.opts.Oracle == nil {
		return nil, ErrOracleNotConfigured
	}
	priority, err := s.opts.Oracle.ScoreOPD(ctx, oracle.OPDInput{
		IllnessSeverity: req.IllnessSeverity,
		Age:             patient.Age(s.now()),
		Transmittable:   req.Transmittable,
		Disabled:        patient.Disabled(),
		PatientRating:   patient.Rating,
	})
	if err != nil {
		if !errors.Is(err, oracle.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", oracle.ErrUnavailable, err)
		}
		log.Warn().Err(err).Msg("priority oracle failed, booking rejected")
		return nil, err
	}

	user := SlotUser{
		PatientID:       req.PatientID,
		Priority:        priority,
		SymptomKeywords: req.SymptomKeywords,
		PossibleAilment: req.PossibleAilment,
		Online:          req.Online,
		BookedAt:        s.now(),
	}

	var booked Slot
	err = retry.OnConflict(ctx, s.opts.Retry, func(attempt int) error {
		fresh := c
		if attempt > 1 {
			var err error
			if fresh, err = s.repo.GetConsultation(ctx, req.ConsultationID); err != nil {
				return err
			}
		}
		slot := fresh.Slots[req.SlotIndex]

		if err := checkCapacity(fresh, &slot, req.PatientID, req.Online); err != nil {
			return err
		}

		slot.Users = append(slot.Users, user)
		sortUsers(slot.Users)
		if req.Online {
			slot.OnlineCount++
		}

		if err := s.repo.UpdateSlot(ctx, &slot); err != nil {
			if errors.Is(err, retry.ErrConflict) {
				s.opts.Metrics.RecordConflict(ctx, "slot")
				log.Debug().Int("attempt", attempt).Msg("slot version moved, retrying")
			}
			return err
		}
		booked = slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	adm = &Admission{
		ConsultationID: req.ConsultationID,
		SlotIndex:      req.SlotIndex,
		PatientID:      req.PatientID,
		Priority:       priority,
		Position:       booked.Position(req.PatientID),
		Online:         req.Online,
		StartTime:      booked.StartTime,
		EndTime:        booked.EndTime,
	}

	log.Info().Float64("priority", priority).Int("position", adm.Position).Bool("online", req.Online).Msg("patient admitted")

	audit.Log(ctx, s.opts.Events, req.ConsultationID, audit.EventSlotBooked, map[string]any{
		"slot_index": req.SlotIndex,
		"patient_id": req.PatientID.String(),
		"priority":   priority,
		"online":     req.Online,
	})

	return adm, nil
}

// ForceSort re-sorts every slot of a consultation. Slots already in order are
// left untouched, so repeated calls write nothing.
func (s *Service) ForceSort(ctx context.Context, consultationID uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetConsultation(ctx, consultationID)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}

	resorted := 0
	for i := range c.Slots {
		changed := false
		err := retry.OnConflict(ctx, s.opts.Retry, func(attempt int) error {
			slot, err := s.repo.GetSlot(ctx, consultationID, i)
			if err != nil {
				return err
			}
			if slot.Sorted() {
				return nil
			}
			sortUsers(slot.Users)
			if err := s.repo.UpdateSlot(ctx, slot); err != nil {
				if errors.Is(err, retry.ErrConflict) {
					s.opts.Metrics.RecordConflict(ctx, "slot")
				}
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("sort slot %d: %w", i, err)
		}
		if changed {
			resorted++
		}
	}

	if resorted > 0 {
		audit.Log(ctx, s.opts.Events, consultationID, audit.EventSlotsSorted, map[string]any{
			"slots_resorted": resorted,
		})
	}

	return s.repo.GetConsultation(ctx, consultationID)
}

// MarkDiagnosed flags the patient's occupancy as resolved. The occupant stays
// in the slot; only the doctor-side projections move it to past.
func (s *Service) MarkDiagnosed(ctx context.Context, consultationID, patientID uuid.UUID) error {
	c, err := s.repo.GetConsultation(ctx, consultationID)
	if err != nil {
		return fmt.Errorf("load consultation: %w", err)
	}

	index, booked := -1, false
	for i, slot := range c.Slots {
		for _, u := range slot.Users {
			if u.PatientID != patientID {
				continue
			}
			booked = true
			if !u.Diagnosed && index < 0 {
				index = i
			}
		}
	}
	if !booked {
		return ErrPatientNotBooked
	}
	if index < 0 {
		return nil
	}

	changed := false
	err = retry.OnConflict(ctx, s.opts.Retry, func(int) error {
		slot, err := s.repo.GetSlot(ctx, consultationID, index)
		if err != nil {
			return err
		}
		changed = false
		for i := range slot.Users {
			if slot.Users[i].PatientID == patientID && !slot.Users[i].Diagnosed {
				slot.Users[i].Diagnosed = true
				changed = true
			}
		}
		if !changed {
			return nil
		}
		if err := s.repo.UpdateSlot(ctx, slot); err != nil {
			if errors.Is(err, retry.ErrConflict) {
				s.opts.Metrics.RecordConflict(ctx, "slot")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark diagnosed: %w", err)
	}

	if changed {
		audit.Log(ctx, s.opts.Events, consultationID, audit.EventPatientDiagnosed, map[string]any{
			"slot_index": index,
			"patient_id": patientID.String(),
		})
	}
	return nil
}

func admissionOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrOnlineCapacityExceeded):
		return "online_capacity_exceeded"
	case errors.Is(err, ErrPatientAlreadyBooked):
		return "already_booked"
	case errors.Is(err, ErrConsultationNotFound):
		return "not_found"
	case errors.Is(err, oracle.ErrUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, retry.ErrExhausted):
		return "conflict"
	default:
		return "error"
	}
}
