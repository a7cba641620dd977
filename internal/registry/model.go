package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrHospitalNotFound   = errors.New("hospital not found")
	ErrDepartmentNotFound = errors.New("department not found")
	ErrDoctorNotFound     = errors.New("doctor not found")
	ErrPatientNotFound    = errors.New("patient not found")
)

// DefaultRating is used for patients with no rating history.
const DefaultRating = 5.0

type Hospital struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Department struct {
	ID         uuid.UUID
	HospitalID uuid.UUID
	Name       string
}

type Doctor struct {
	ID           uuid.UUID
	Name         string
	HospitalID   uuid.UUID
	DepartmentID *uuid.UUID
	CreatedAt    time.Time
}

type Patient struct {
	ID           uuid.UUID
	Name         string
	Email        *string
	DateOfBirth  time.Time
	DisabilityID *string
	Rating       float64
	CreatedAt    time.Time
}

// Age in whole years at now.
func (p Patient) Age(now time.Time) int {
	if p.DateOfBirth.IsZero() {
		return 0
	}
	dob := p.DateOfBirth.In(now.Location())
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// Disabled reports whether a disability id is on file.
func (p Patient) Disabled() bool {
	return p.DisabilityID != nil && *p.DisabilityID != ""
}

// Directory resolves the identities the scheduling core refers to.
type Directory interface {
	GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error)
	GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	// GetPatients returns the patients that exist; unknown ids are simply absent.
	GetPatients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Patient, error)
}

// Writer registers identities. Seeding and the in-memory store use it; the
// scheduling core only reads.
type Writer interface {
	InsertHospital(ctx context.Context, h *Hospital) error
	InsertDepartment(ctx context.Context, d *Department) error
	InsertDoctor(ctx context.Context, d *Doctor) error
	InsertPatient(ctx context.Context, p *Patient) error
}
