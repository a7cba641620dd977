package bedbank

import (
	"context"

	"github.com/google/uuid"
)

// CaseChanges travel with a department write so that bed flags and the case
// records behind them never disagree.
type CaseChanges struct {
	Opened     []Case
	Discharged []Case
}

// Repository persists departments. SaveDepartment is compare-and-swap on
// Version and fails with retry.ErrConflict when the stored version moved; on
// success the passed department's Version is advanced.
type Repository interface {
	CreateDepartment(ctx context.Context, d *Department) error
	GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error)
	SaveDepartment(ctx context.Context, d *Department, changes CaseChanges) error
}
