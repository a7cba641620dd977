package bedbank

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

type MemoryRepository struct {
	mu          sync.Mutex
	departments map[uuid.UUID]*Department
	closed      map[uuid.UUID][]Case
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		departments: make(map[uuid.UUID]*Department),
		closed:      make(map[uuid.UUID][]Case),
	}
}

func (r *MemoryRepository) CreateDepartment(_ context.Context, d *Department) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Beds == nil {
		d.Beds = []int{}
	}
	d.UpdatedAt = time.Now().UTC()
	r.departments[d.ID] = d.clone()
	return nil
}

func (r *MemoryRepository) GetDepartment(_ context.Context, id uuid.UUID) (*Department, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.departments[id]
	if !ok {
		return nil, ErrDepartmentNotFound
	}
	return d.clone(), nil
}

func (r *MemoryRepository) SaveDepartment(_ context.Context, d *Department, changes CaseChanges) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.departments[d.ID]
	if !ok {
		return ErrDepartmentNotFound
	}
	if stored.Version != d.Version {
		return retry.ErrConflict
	}

	d.Version++
	d.UpdatedAt = time.Now().UTC()
	r.departments[d.ID] = d.clone()
	for _, c := range changes.Discharged {
		r.closed[d.ID] = append(r.closed[d.ID], c.clone())
	}
	return nil
}

// DischargedCases returns the resolved cases of a department in discharge order.
func (r *MemoryRepository) DischargedCases(departmentID uuid.UUID) []Case {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Case, 0, len(r.closed[departmentID]))
	for _, c := range r.closed[departmentID] {
		out = append(out, c.clone())
	}
	return out
}
