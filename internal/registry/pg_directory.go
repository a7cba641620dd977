package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

// Helpers

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	if err := row.Scan(&h.ID, &h.Name, &h.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHospitalNotFound
		}
		return nil, err
	}
	return &h, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.Name, &d.HospitalID, &d.DepartmentID, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var dob *time.Time
	err := row.Scan(&p.ID, &p.Name, &p.Email, &dob, &p.DisabilityID, &p.Rating, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	if dob != nil {
		p.DateOfBirth = *dob
	}
	return &p, nil
}

// Interface methods

func (d *PgDirectory) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM hospitals
		WHERE id = $1
	`, id)
	return scanHospital(row)
}

func (d *PgDirectory) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	var dep Department
	err := d.pool.QueryRow(ctx, `
		SELECT id, hospital_id, name
		FROM departments
		WHERE id = $1
	`, id).Scan(&dep.ID, &dep.HospitalID, &dep.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}
	return &dep, nil
}

func (d *PgDirectory) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, hospital_id, department_id, created_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (d *PgDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, email, date_of_birth, disability_id, rating, created_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (d *PgDirectory) GetPatients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Patient, error) {
	out := make(map[uuid.UUID]Patient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := d.pool.Query(ctx, `
		SELECT id, name, email, date_of_birth, disability_id, rating, created_at
		FROM patients
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = *p
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (d *PgDirectory) InsertHospital(ctx context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	err := d.pool.QueryRow(ctx, `
		INSERT INTO hospitals (id, name, created_at)
		VALUES ($1, $2, now())
		RETURNING created_at
	`, h.ID, h.Name).Scan(&h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert hospital: %w", err)
	}
	return nil
}

// InsertDepartment leaves an existing row alone; the bed bank owns the
// capacity columns of the same table.
func (d *PgDirectory) InsertDepartment(ctx context.Context, dep *Department) error {
	if dep.ID == uuid.Nil {
		dep.ID = uuid.New()
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO departments (id, hospital_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (id) DO NOTHING
	`, dep.ID, dep.HospitalID, dep.Name)
	if err != nil {
		return fmt.Errorf("insert department: %w", err)
	}
	return nil
}

func (d *PgDirectory) InsertDoctor(ctx context.Context, doc *Doctor) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	err := d.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, hospital_id, department_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at
	`, doc.ID, doc.Name, doc.HospitalID, doc.DepartmentID).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (d *PgDirectory) InsertPatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Rating == 0 {
		p.Rating = DefaultRating
	}
	var dob *time.Time
	if !p.DateOfBirth.IsZero() {
		dob = &p.DateOfBirth
	}
	err := d.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, date_of_birth, disability_id, rating, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at
	`, p.ID, p.Name, p.Email, dob, p.DisabilityID, p.Rating).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}
