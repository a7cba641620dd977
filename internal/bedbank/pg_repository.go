package bedbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/hospital-capacity-scheduling/internal/db"
	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

const openBedIndex = "cases_open_bed_idx"

var dialect = goqu.Dialect("postgres")

var caseColumns = []any{
	"id", "hospital_id", "department_id", "patient_id", "bed_index",
	"priority", "resolved", "admitted_at", "discharged_at",
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	var waitlist []byte

	err := row.Scan(
		&d.ID,
		&d.HospitalID,
		&d.Name,
		&d.Beds,
		&waitlist,
		&d.Version,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}

	if len(waitlist) > 0 {
		if err := json.Unmarshal(waitlist, &d.Waitlist); err != nil {
			return nil, fmt.Errorf("decode waitlist: %w", err)
		}
	}
	if d.Beds == nil {
		d.Beds = []int{}
	}
	return &d, nil
}

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(
		&c.ID,
		&c.HospitalID,
		&c.DepartmentID,
		&c.PatientID,
		&c.BedIndex,
		&c.Priority,
		&c.Resolved,
		&c.AdmittedAt,
		&c.DischargedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func encodeWaitlist(w []WaitlistEntry) (string, error) {
	if w == nil {
		w = []WaitlistEntry{}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encode waitlist: %w", err)
	}
	return string(data), nil
}

// Interface methods

// CreateDepartment also takes over a row the registry inserted without capacity.
func (r *PgRepository) CreateDepartment(ctx context.Context, d *Department) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Beds == nil {
		d.Beds = []int{}
	}
	waitlist, err := encodeWaitlist(d.Waitlist)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO departments (id, hospital_id, name, beds, waitlist, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, 0, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    beds = EXCLUDED.beds,
		    waitlist = EXCLUDED.waitlist,
		    version = departments.version + 1,
		    updated_at = now()
		RETURNING version, updated_at
	`, d.ID, d.HospitalID, d.Name, d.Beds, waitlist).Scan(&d.Version, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert department: %w", err)
	}
	return nil
}

func (r *PgRepository) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	d, err := scanDepartment(r.pool.QueryRow(ctx, `
		SELECT id, hospital_id, name, beds, waitlist, version, updated_at
		FROM departments
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	sql, args, err := dialect.From("cases").
		Select(caseColumns...).
		Where(
			goqu.C("department_id").Eq(id.String()),
			goqu.C("resolved").IsFalse(),
		).
		Order(goqu.C("bed_index").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build open case query: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query open cases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		d.OpenCases = append(d.OpenCases, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return d, nil
}

// SaveDepartment writes the bed array and waitlist guarded by version, then
// applies the case changes inside the same transaction.
func (r *PgRepository) SaveDepartment(ctx context.Context, d *Department, changes CaseChanges) error {
	waitlist, err := encodeWaitlist(d.Waitlist)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save department: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var updatedAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE departments
		SET beds = $2,
		    waitlist = $3::jsonb,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $4
		RETURNING updated_at
	`, d.ID, d.Beds, waitlist, d.Version).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM departments WHERE id = $1)`, d.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check department: %w", err)
		}
		if !exists {
			return ErrDepartmentNotFound
		}
		return retry.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range changes.Discharged {
		batch.Queue(`
			UPDATE cases
			SET resolved = true, discharged_at = $2
			WHERE id = $1 AND NOT resolved
		`, c.ID, c.DischargedAt)
	}
	for _, c := range changes.Opened {
		batch.Queue(`
			INSERT INTO cases (id, hospital_id, department_id, patient_id, bed_index, priority, resolved, admitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, false, $7)
		`, c.ID, c.HospitalID, c.DepartmentID, c.PatientID, c.BedIndex, c.Priority, c.AdmittedAt)
	}

	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				if db.IsUniqueViolation(err, openBedIndex) {
					return retry.ErrConflict
				}
				return fmt.Errorf("apply case changes: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close case batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save department: %w", err)
	}

	d.Version++
	d.UpdatedAt = updatedAt
	return nil
}
