package bedbank

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
	"github.com/hackgods/hospital-capacity-scheduling/internal/registry"
	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

type Options struct {
	Oracle   oracle.Scorer
	Notifier notify.Notifier
	Events   audit.Recorder
	Metrics  *observability.Metrics
	Retry    retry.Config
	Now      func() time.Time
}

type Allocator struct {
	repo Repository
	dir  registry.Directory
	opts Options
}

func NewAllocator(repo Repository, dir registry.Directory, opts Options) *Allocator {
	if opts.Notifier == nil {
		opts.Notifier = notify.LogNotifier{}
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Allocator{repo: repo, dir: dir, opts: opts}
}

func (a *Allocator) now() time.Time {
	return a.opts.Now().UTC()
}

// Allocation is the outcome of one request: either a bed or a waitlist place.
type Allocation struct {
	DepartmentID     uuid.UUID
	PatientID        uuid.UUID
	Priority         float64
	BedIndex         *int
	CaseID           *uuid.UUID
	Waitlisted       bool
	WaitlistPosition int
}

// BedUpdate reports what a status change did to the department.
type BedUpdate struct {
	DepartmentID uuid.UUID
	BedIndex     int
	Occupied     bool
	Discharged   *Case
	Promoted     []Case
}

type BedRequest struct {
	DepartmentID    uuid.UUID
	PatientID       uuid.UUID
	IllnessSeverity float64
	Transmittable   bool
	DoctorOffset    float64
	WaitingPeriod   float64
}

// AllocateBed gives the patient the lowest-index free bed and opens a case for
// it. With every bed taken the patient joins the waitlist, ordered by priority
// with FIFO among equals.
func (a *Allocator) AllocateBed(ctx context.Context, departmentID, patientID uuid.UUID, priority float64) (alloc *Allocation, err error) {
	log := zerolog.Ctx(ctx).With().
		Str("department_id", departmentID.String()).
		Str("patient_id", patientID.String()).
		Logger()

	defer func() {
		a.opts.Metrics.RecordAllocation(ctx, allocationOutcome(alloc, err))
	}()

	if _, err := a.dir.GetPatient(ctx, patientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var opened *Case
	err = retry.OnConflict(ctx, a.opts.Retry, func(attempt int) error {
		alloc, opened = nil, nil

		d, err := a.repo.GetDepartment(ctx, departmentID)
		if err != nil {
			return err
		}
		if d.holdsBed(patientID) {
			return ErrPatientAlreadyInBed
		}
		if d.waitlistPosition(patientID) > 0 {
			return ErrAlreadyWaitlisted
		}

		now := a.now()
		result := &Allocation{DepartmentID: departmentID, PatientID: patientID, Priority: priority}
		var changes CaseChanges

		if bed := d.FreeBed(); bed >= 0 {
			c := a.admit(d, bed, patientID, priority, now)
			changes.Opened = append(changes.Opened, c)
			result.BedIndex = &bed
			result.CaseID = &c.ID
			opened = &c
		} else {
			result.Waitlisted = true
			result.WaitlistPosition = d.enqueue(WaitlistEntry{PatientID: patientID, Priority: priority, EnqueuedAt: now})
		}

		if err := a.repo.SaveDepartment(ctx, d, changes); err != nil {
			if errors.Is(err, retry.ErrConflict) {
				a.opts.Metrics.RecordConflict(ctx, "department")
				log.Debug().Int("attempt", attempt).Msg("department version moved, retrying")
			}
			return err
		}
		alloc = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opened != nil {
		log.Info().Int("bed_index", opened.BedIndex).Float64("priority", priority).Msg("bed assigned")
		audit.Log(ctx, a.opts.Events, departmentID, audit.EventBedAssigned, map[string]any{
			"patient_id": patientID.String(),
			"bed_index":  opened.BedIndex,
			"case_id":    opened.ID.String(),
			"priority":   priority,
		})
	} else {
		log.Info().Int("position", alloc.WaitlistPosition).Float64("priority", priority).Msg("no free bed, patient waitlisted")
		audit.Log(ctx, a.opts.Events, departmentID, audit.EventPatientWaitlisted, map[string]any{
			"patient_id": patientID.String(),
			"position":   alloc.WaitlistPosition,
			"priority":   priority,
		})
	}

	return alloc, nil
}

// ScoreAndAllocate asks the oracle for a bed priority from the patient's
// attributes, then allocates with it.
func (a *Allocator) ScoreAndAllocate(ctx context.Context, req BedRequest) (*Allocation, error) {
	patient, err := a.dir.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if a.opts.Oracle == nil {
		return nil, ErrOracleNotConfigured
	}

	priority, err := a.opts.Oracle.ScoreBed(ctx, oracle.BedInput{
		OPDInput: oracle.OPDInput{
			IllnessSeverity: req.IllnessSeverity,
			Age:             patient.Age(a.now()),
			Transmittable:   req.Transmittable,
			Disabled:        patient.Disabled(),
			PatientRating:   patient.Rating,
		},
		DoctorOffset:  req.DoctorOffset,
		WaitingPeriod: req.WaitingPeriod,
	})
	if err != nil {
		if !errors.Is(err, oracle.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", oracle.ErrUnavailable, err)
		}
		a.opts.Metrics.RecordAllocation(ctx, "oracle_unavailable")
		return nil, err
	}

	return a.AllocateBed(ctx, req.DepartmentID, req.PatientID, priority)
}

// SetBedStatus flips one bed. Freeing an occupied bed discharges its case and
// hands the bed to the head of the waitlist in the same write.
func (a *Allocator) SetBedStatus(ctx context.Context, departmentID uuid.UUID, index int, occupied bool) (*BedUpdate, error) {
	var update *BedUpdate
	err := retry.OnConflict(ctx, a.opts.Retry, func(int) error {
		update = nil

		d, err := a.repo.GetDepartment(ctx, departmentID)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(d.Beds) {
			return ErrBedNotFound
		}

		u := &BedUpdate{DepartmentID: departmentID, BedIndex: index, Occupied: occupied}
		want := BedFree
		if occupied {
			want = BedOccupied
		}
		if d.Beds[index] == want {
			update = u
			return nil
		}

		now := a.now()
		var changes CaseChanges
		d.Beds[index] = want
		if !occupied {
			if i, ok := d.openCase(index); ok {
				c := d.OpenCases[i]
				c.Resolved = true
				c.DischargedAt = &now
				d.OpenCases = append(d.OpenCases[:i], d.OpenCases[i+1:]...)
				changes.Discharged = append(changes.Discharged, c)
				u.Discharged = &c
			}
			u.Promoted = a.promote(d, now)
			changes.Opened = append(changes.Opened, u.Promoted...)
		}

		if err := a.repo.SaveDepartment(ctx, d, changes); err != nil {
			if errors.Is(err, retry.ErrConflict) {
				a.opts.Metrics.RecordConflict(ctx, "department")
			}
			return err
		}
		update = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set bed status: %w", err)
	}

	if !occupied && (update.Discharged != nil || len(update.Promoted) > 0) {
		payload := map[string]any{"bed_index": index}
		if update.Discharged != nil {
			payload["case_id"] = update.Discharged.ID.String()
			payload["patient_id"] = update.Discharged.PatientID.String()
		}
		audit.Log(ctx, a.opts.Events, departmentID, audit.EventBedReleased, payload)
	}
	a.announce(ctx, departmentID, update.Promoted)

	return update, nil
}

// AddBeds grows the department by n free beds and fills them from the waitlist.
func (a *Allocator) AddBeds(ctx context.Context, departmentID uuid.UUID, n int) (*Department, []Case, error) {
	if n <= 0 {
		return nil, nil, ErrInvalidBedCount
	}

	var dept *Department
	var promoted []Case
	err := retry.OnConflict(ctx, a.opts.Retry, func(int) error {
		d, err := a.repo.GetDepartment(ctx, departmentID)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			d.Beds = append(d.Beds, BedFree)
		}
		promoted = a.promote(d, a.now())

		if err := a.repo.SaveDepartment(ctx, d, CaseChanges{Opened: promoted}); err != nil {
			if errors.Is(err, retry.ErrConflict) {
				a.opts.Metrics.RecordConflict(ctx, "department")
			}
			return err
		}
		dept = d
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("add beds: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("department_id", departmentID.String()).
		Int("added", n).
		Int("beds", len(dept.Beds)).
		Int("promoted", len(promoted)).
		Msg("department capacity increased")
	audit.Log(ctx, a.opts.Events, departmentID, audit.EventBedsAdded, map[string]any{
		"added": n,
		"beds":  len(dept.Beds),
	})
	a.announce(ctx, departmentID, promoted)

	return dept, promoted, nil
}

func (a *Allocator) Department(ctx context.Context, id uuid.UUID) (*Department, error) {
	d, err := a.repo.GetDepartment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get department: %w", err)
	}
	return d, nil
}

func (a *Allocator) admit(d *Department, bed int, patientID uuid.UUID, priority float64, now time.Time) Case {
	c := Case{
		ID:           uuid.New(),
		HospitalID:   d.HospitalID,
		DepartmentID: d.ID,
		PatientID:    patientID,
		BedIndex:     bed,
		Priority:     priority,
		AdmittedAt:   now,
	}
	d.Beds[bed] = BedOccupied
	d.OpenCases = append(d.OpenCases, c)
	return c
}

// promote moves waitlist heads into free beds until one of them runs out.
func (a *Allocator) promote(d *Department, now time.Time) []Case {
	var out []Case
	for len(d.Waitlist) > 0 {
		bed := d.FreeBed()
		if bed < 0 {
			break
		}
		head := d.Waitlist[0]
		d.Waitlist = d.Waitlist[1:]
		out = append(out, a.admit(d, bed, head.PatientID, head.Priority, now))
	}
	return out
}

// announce runs after the department write committed. A failed notification
// does not undo the assignment.
func (a *Allocator) announce(ctx context.Context, departmentID uuid.UUID, promoted []Case) {
	for _, c := range promoted {
		a.opts.Metrics.RecordAllocation(ctx, "promoted")
		audit.Log(ctx, a.opts.Events, departmentID, audit.EventWaitlistPromoted, map[string]any{
			"patient_id": c.PatientID.String(),
			"bed_index":  c.BedIndex,
			"case_id":    c.ID.String(),
		})
		if err := a.opts.Notifier.Notify(ctx, notify.BedAssigned(c.PatientID, departmentID, c.BedIndex)); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).
				Str("department_id", departmentID.String()).
				Str("patient_id", c.PatientID.String()).
				Msg("bed assignment notification failed")
		}
	}
}

func allocationOutcome(alloc *Allocation, err error) string {
	switch {
	case err == nil && alloc != nil && alloc.Waitlisted:
		return "waitlisted"
	case err == nil:
		return "assigned"
	case errors.Is(err, ErrAlreadyWaitlisted), errors.Is(err, ErrPatientAlreadyInBed):
		return "duplicate"
	case errors.Is(err, ErrDepartmentNotFound), errors.Is(err, registry.ErrPatientNotFound):
		return "not_found"
	case errors.Is(err, retry.ErrExhausted):
		return "conflict"
	default:
		return "error"
	}
}
