package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-capacity-scheduling/internal/audit"
	"github.com/hackgods/hospital-capacity-scheduling/internal/notify"
	"github.com/hackgods/hospital-capacity-scheduling/internal/observability"
	"github.com/hackgods/hospital-capacity-scheduling/internal/oracle"
	redisclient "github.com/hackgods/hospital-capacity-scheduling/internal/redis"
	"github.com/hackgods/hospital-capacity-scheduling/internal/registry"
	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

var (
	ErrInvalidSchedule          = errors.New("invalid schedule")
	ErrInvalidFrequency         = errors.New("invalid recurrence frequency")
	ErrDoctorDepartmentNotFound = errors.New("doctor department not found")
	ErrNotRecurring             = errors.New("consultation is not recurring")
)

// Options wires the collaborators. Oracle is required for booking; everything
// else has a usable zero value.
type Options struct {
	Oracle       oracle.Scorer
	Notifier     notify.Notifier
	Locker       redisclient.Locker
	Events       audit.Recorder
	Metrics      *observability.Metrics
	Location     *time.Location
	NotifyWindow time.Duration
	Retry        retry.Config
	Now          func() time.Time
}

type Service struct {
	repo Repository
	dir  registry.Directory
	opts Options
}

func NewService(repo Repository, dir registry.Directory, opts Options) *Service {
	if opts.Notifier == nil {
		opts.Notifier = notify.LogNotifier{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.NotifyWindow <= 0 {
		opts.NotifyWindow = time.Hour
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo: repo,
		dir:  dir,
		opts: opts,
	}
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

type CreateInput struct {
	HospitalID          uuid.UUID
	DoctorID            uuid.UUID
	StartTime           time.Time
	EndTime             time.Time
	SlotDurationMinutes int
	Recurring           bool
	Frequency           Frequency
}

// CreateConsultation validates the hospital, the doctor and the doctor's
// department, then stores a consultation with its generated slots. Recurring
// consultations become series roots whose next occurrence is one step after
// the anchor.
func (s *Service) CreateConsultation(ctx context.Context, in CreateInput) (*Consultation, error) {
	start, end := in.StartTime.UTC(), in.EndTime.UTC()

	slots := GenerateSlots(start, end, in.SlotDurationMinutes)
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: window shorter than one slot", ErrInvalidSchedule)
	}

	hospital, err := s.dir.GetHospital(ctx, in.HospitalID)
	if err != nil {
		return nil, fmt.Errorf("load hospital: %w", err)
	}

	doctor, err := s.dir.GetDoctor(ctx, in.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.HospitalID != hospital.ID {
		return nil, fmt.Errorf("%w: doctor does not practise at this hospital", registry.ErrDoctorNotFound)
	}
	if doctor.DepartmentID == nil {
		return nil, ErrDoctorDepartmentNotFound
	}

	dept, err := s.dir.GetDepartment(ctx, *doctor.DepartmentID)
	if err != nil {
		if errors.Is(err, registry.ErrDepartmentNotFound) {
			return nil, ErrDoctorDepartmentNotFound
		}
		return nil, fmt.Errorf("load department: %w", err)
	}

	c := &Consultation{
		ID:           uuid.New(),
		HospitalID:   hospital.ID,
		HospitalName: hospital.Name,
		DoctorID:     doctor.ID,
		DoctorName:   doctor.Name,
		Specialty:    dept.Name,
		AnchorTime:   start,
		EndTime:      end,
		SlotDuration: in.SlotDurationMinutes,
		Recurring:    in.Recurring,
		Slots:        slots,
	}

	if in.Recurring {
		freq, err := ParseFrequency(string(in.Frequency))
		if err != nil {
			return nil, err
		}
		next, err := NextOccurrence(start, freq, s.opts.Location)
		if err != nil {
			return nil, err
		}
		c.Recurrence = &Recurrence{Frequency: freq, NextOccurrence: next}
	}

	if err := s.repo.CreateConsultation(ctx, c); err != nil {
		return nil, fmt.Errorf("create consultation: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("consultation_id", c.ID.String()).
		Str("doctor_id", c.DoctorID.String()).
		Int("slots", len(c.Slots)).
		Bool("recurring", c.Recurring).
		Msg("consultation created")

	audit.Log(ctx, s.opts.Events, c.ID, audit.EventConsultationCreated, map[string]any{
		"hospital_id": c.HospitalID.String(),
		"doctor_id":   c.DoctorID.String(),
		"anchor_time": c.AnchorTime,
		"slots":       len(c.Slots),
		"recurring":   c.Recurring,
	})

	return c, nil
}

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetConsultation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get consultation: %w", err)
	}
	return c, nil
}

type RecurrenceUpdate struct {
	Paused    *bool
	Frequency *Frequency
}

// UpdateRecurrence pauses, resumes or changes the frequency of a series. A
// resumed series skips the occurrences it missed while paused.
func (s *Service) UpdateRecurrence(ctx context.Context, id uuid.UUID, upd RecurrenceUpdate) (*Consultation, error) {
	var freq Frequency
	if upd.Frequency != nil {
		f, err := ParseFrequency(string(*upd.Frequency))
		if err != nil {
			return nil, err
		}
		freq = f
	}

	var updated *Consultation
	err := retry.OnConflict(ctx, s.opts.Retry, func(int) error {
		c, err := s.repo.GetConsultation(ctx, id)
		if err != nil {
			return err
		}
		if !c.Recurring || c.Recurrence == nil {
			return ErrNotRecurring
		}

		rec := c.Recurrence
		if freq != "" {
			rec.Frequency = freq
		}
		if upd.Paused != nil {
			wasPaused := rec.Paused
			rec.Paused = *upd.Paused
			if wasPaused && !rec.Paused {
				next, err := rollForward(rec.NextOccurrence, s.now(), rec.Frequency, s.opts.Location)
				if err != nil {
					return err
				}
				rec.NextOccurrence = next
			}
		}

		if err := s.repo.UpdateRecurrence(ctx, c); err != nil {
			if errors.Is(err, retry.ErrConflict) {
				s.opts.Metrics.RecordConflict(ctx, "consultation")
			}
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update recurrence: %w", err)
	}

	audit.Log(ctx, s.opts.Events, id, audit.EventRecurrenceUpdated, map[string]any{
		"paused":          updated.Recurrence.Paused,
		"frequency":       updated.Recurrence.Frequency,
		"next_occurrence": updated.Recurrence.NextOccurrence,
	})

	return updated, nil
}
