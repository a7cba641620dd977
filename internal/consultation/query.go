package consultation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrDoctorHasNoConsultations   = errors.New("doctor has no consultations")
	ErrPatientHasNoAppointments   = errors.New("patient has no appointments")
	ErrHospitalHasNoConsultations = errors.New("hospital has no consultations")
)

const unknownPatient = "Unknown"

// QueueEntry is one occupant as a doctor sees it.
type QueueEntry struct {
	ConsultationID  uuid.UUID
	HospitalID      uuid.UUID
	HospitalName    string
	AnchorTime      time.Time
	SlotIndex       int
	StartTime       time.Time
	EndTime         time.Time
	Position        int
	PatientID       uuid.UUID
	PatientName     string
	Priority        float64
	SymptomKeywords []string
	PossibleAilment string
	Diagnosed       bool
	Online          bool
}

// Appointment is one booking as the patient sees it.
type Appointment struct {
	ConsultationID uuid.UUID
	HospitalID     uuid.UUID
	HospitalName   string
	DoctorID       uuid.UUID
	DoctorName     string
	Specialty      string
	SlotIndex      int
	StartTime      time.Time
	EndTime        time.Time
	QueuePosition  int
	Priority       float64
	Diagnosed      bool
	Online         bool
}

type Occupant struct {
	PatientID   uuid.UUID
	PatientName string
	Position    int
	Priority    float64
	Diagnosed   bool
	Online      bool
}

type SlotOccupancy struct {
	Index       int
	StartTime   time.Time
	EndTime     time.Time
	Notified    bool
	Elapsed     bool
	OnlineCount int
	Occupants   []Occupant
}

type ConsultationOccupancy struct {
	ConsultationID uuid.UUID
	DoctorID       uuid.UUID
	DoctorName     string
	Specialty      string
	AnchorTime     time.Time
	Recurring      bool
	Slots          []SlotOccupancy
}

// UpcomingForDoctor lists undiagnosed occupants of the doctor's future
// consultations, by consultation time, slot, then queue order.
func (s *Service) UpcomingForDoctor(ctx context.Context, doctorID uuid.UUID) ([]QueueEntry, error) {
	now := s.now()
	return s.doctorQueue(ctx, doctorID, func(c *Consultation, u SlotUser) bool {
		return c.AnchorTime.After(now) && !u.Diagnosed
	})
}

// PastForDoctor lists occupants of consultations that have started, plus any
// occupant already diagnosed regardless of time.
func (s *Service) PastForDoctor(ctx context.Context, doctorID uuid.UUID) ([]QueueEntry, error) {
	now := s.now()
	return s.doctorQueue(ctx, doctorID, func(c *Consultation, u SlotUser) bool {
		return !c.AnchorTime.After(now) || u.Diagnosed
	})
}

func (s *Service) doctorQueue(ctx context.Context, doctorID uuid.UUID, keep func(*Consultation, SlotUser) bool) ([]QueueEntry, error) {
	list, err := s.repo.ListConsultations(ctx, ListFilter{DoctorID: &doctorID})
	if err != nil {
		return nil, fmt.Errorf("list doctor consultations: %w", err)
	}
	if len(list) == 0 {
		return nil, ErrDoctorHasNoConsultations
	}

	out := []QueueEntry{}
	for ci := range list {
		c := &list[ci]
		for _, slot := range c.Slots {
			for pos, u := range slot.Users {
				if !keep(c, u) {
					continue
				}
				out = append(out, QueueEntry{
					ConsultationID:  c.ID,
					HospitalID:      c.HospitalID,
					HospitalName:    c.HospitalName,
					AnchorTime:      c.AnchorTime,
					SlotIndex:       slot.Index,
					StartTime:       slot.StartTime,
					EndTime:         slot.EndTime,
					Position:        pos + 1,
					PatientID:       u.PatientID,
					Priority:        u.Priority,
					SymptomKeywords: u.SymptomKeywords,
					PossibleAilment: u.PossibleAilment,
					Diagnosed:       u.Diagnosed,
					Online:          u.Online,
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.AnchorTime.Equal(b.AnchorTime) {
			return a.AnchorTime.Before(b.AnchorTime)
		}
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.Position < b.Position
	})

	ids := make([]uuid.UUID, len(out))
	for i := range out {
		ids[i] = out[i].PatientID
	}
	names := s.patientNames(ctx, ids)
	for i := range out {
		out[i].PatientName = names(out[i].PatientID)
	}

	return out, nil
}

// UpcomingForPatient lists bookings whose slot has not started, soonest first.
func (s *Service) UpcomingForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	all, err := s.patientAppointments(ctx, patientID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	out := []Appointment{}
	for _, a := range all {
		if a.StartTime.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

// PastForPatient lists bookings whose slot has started, most recent first.
func (s *Service) PastForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	all, err := s.patientAppointments(ctx, patientID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	out := []Appointment{}
	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].StartTime.After(now) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *Service) patientAppointments(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	list, err := s.repo.ListConsultations(ctx, ListFilter{PatientID: &patientID})
	if err != nil {
		return nil, fmt.Errorf("list patient consultations: %w", err)
	}

	var out []Appointment
	for _, c := range list {
		for _, slot := range c.Slots {
			for pos, u := range slot.Users {
				if u.PatientID != patientID {
					continue
				}
				out = append(out, Appointment{
					ConsultationID: c.ID,
					HospitalID:     c.HospitalID,
					HospitalName:   c.HospitalName,
					DoctorID:       c.DoctorID,
					DoctorName:     c.DoctorName,
					Specialty:      c.Specialty,
					SlotIndex:      slot.Index,
					StartTime:      slot.StartTime,
					EndTime:        slot.EndTime,
					QueuePosition:  pos + 1,
					Priority:       u.Priority,
					Diagnosed:      u.Diagnosed,
					Online:         u.Online,
				})
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrPatientHasNoAppointments
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// HospitalOccupancy shows every consultation of a hospital with its occupants by name.
func (s *Service) HospitalOccupancy(ctx context.Context, hospitalID uuid.UUID) ([]ConsultationOccupancy, error) {
	if _, err := s.dir.GetHospital(ctx, hospitalID); err != nil {
		return nil, fmt.Errorf("load hospital: %w", err)
	}

	list, err := s.repo.ListConsultations(ctx, ListFilter{HospitalID: &hospitalID})
	if err != nil {
		return nil, fmt.Errorf("list hospital consultations: %w", err)
	}
	if len(list) == 0 {
		return nil, ErrHospitalHasNoConsultations
	}

	var ids []uuid.UUID
	for _, c := range list {
		for _, slot := range c.Slots {
			for _, u := range slot.Users {
				ids = append(ids, u.PatientID)
			}
		}
	}
	names := s.patientNames(ctx, ids)

	out := make([]ConsultationOccupancy, 0, len(list))
	for _, c := range list {
		co := ConsultationOccupancy{
			ConsultationID: c.ID,
			DoctorID:       c.DoctorID,
			DoctorName:     c.DoctorName,
			Specialty:      c.Specialty,
			AnchorTime:     c.AnchorTime,
			Recurring:      c.Recurring,
			Slots:          make([]SlotOccupancy, 0, len(c.Slots)),
		}
		for _, slot := range c.Slots {
			so := SlotOccupancy{
				Index:       slot.Index,
				StartTime:   slot.StartTime,
				EndTime:     slot.EndTime,
				Notified:    slot.Notified,
				Elapsed:     slot.Elapsed,
				OnlineCount: slot.OnlineCount,
				Occupants:   make([]Occupant, 0, len(slot.Users)),
			}
			for pos, u := range slot.Users {
				so.Occupants = append(so.Occupants, Occupant{
					PatientID:   u.PatientID,
					PatientName: names(u.PatientID),
					Position:    pos + 1,
					Priority:    u.Priority,
					Diagnosed:   u.Diagnosed,
					Online:      u.Online,
				})
			}
			co.Slots = append(co.Slots, so)
		}
		out = append(out, co)
	}

	return out, nil
}

// patientNames resolves display names. A lookup failure degrades to "Unknown"
// instead of failing the read.
func (s *Service) patientNames(ctx context.Context, ids []uuid.UUID) func(uuid.UUID) string {
	found, err := s.dir.GetPatients(ctx, ids)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int("patients", len(ids)).Msg("patient name lookup failed")
	}
	return func(id uuid.UUID) string {
		if p, ok := found[id]; ok && p.Name != "" {
			return p.Name
		}
		return unknownPatient
	}
}
