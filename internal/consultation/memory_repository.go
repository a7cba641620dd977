package consultation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

type seriesKey struct {
	series uuid.UUID
	anchor int64
}

// MemoryRepository keeps everything in process behind one mutex. Values are
// copied in and out so callers never share slices with the store.
type MemoryRepository struct {
	mu            sync.RWMutex
	consultations map[uuid.UUID]*Consultation
	occurrences   map[seriesKey]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		consultations: make(map[uuid.UUID]*Consultation),
		occurrences:   make(map[seriesKey]uuid.UUID),
	}
}

func (r *MemoryRepository) CreateConsultation(_ context.Context, c *Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.SeriesID != nil {
		key := seriesKey{series: *c.SeriesID, anchor: c.AnchorTime.UnixNano()}
		if _, ok := r.occurrences[key]; ok {
			return ErrOccurrenceExists
		}
		r.occurrences[key] = c.ID
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	for i := range c.Slots {
		c.Slots[i].ConsultationID = c.ID
	}

	r.consultations[c.ID] = c.clone()
	return nil
}

func (r *MemoryRepository) GetConsultation(_ context.Context, id uuid.UUID) (*Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.consultations[id]
	if !ok {
		return nil, ErrConsultationNotFound
	}
	return c.clone(), nil
}

func (r *MemoryRepository) GetSlot(_ context.Context, consultationID uuid.UUID, index int) (*Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.consultations[consultationID]
	if !ok {
		return nil, ErrConsultationNotFound
	}
	if index < 0 || index >= len(c.Slots) {
		return nil, ErrSlotNotFound
	}
	s := c.Slots[index].clone()
	return &s, nil
}

func (r *MemoryRepository) UpdateSlot(_ context.Context, s *Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consultations[s.ConsultationID]
	if !ok {
		return ErrConsultationNotFound
	}
	if s.Index < 0 || s.Index >= len(c.Slots) {
		return ErrSlotNotFound
	}
	if c.Slots[s.Index].Version != s.Version {
		return retry.ErrConflict
	}

	s.Version++
	c.Slots[s.Index] = s.clone()
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) UpdateRecurrence(_ context.Context, c *Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.consultations[c.ID]
	if !ok {
		return ErrConsultationNotFound
	}
	if stored.Version != c.Version {
		return retry.ErrConflict
	}

	c.Version++
	stored.Version = c.Version
	if c.Recurrence != nil {
		rec := *c.Recurrence
		stored.Recurrence = &rec
	}
	stored.UpdatedAt = time.Now().UTC()
	c.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *MemoryRepository) ListConsultations(_ context.Context, f ListFilter) ([]Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Consultation
	for _, c := range r.consultations {
		if f.DoctorID != nil && c.DoctorID != *f.DoctorID {
			continue
		}
		if f.HospitalID != nil && c.HospitalID != *f.HospitalID {
			continue
		}
		if f.PatientID != nil && !hasPatient(c, *f.PatientID) {
			continue
		}
		out = append(out, *c.clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AnchorTime.Equal(out[j].AnchorTime) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].AnchorTime.Before(out[j].AnchorTime)
	})
	return out, nil
}

func (r *MemoryRepository) ListSlotsForRefresh(_ context.Context, now time.Time, window time.Duration) ([]Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Slot
	for _, c := range r.consultations {
		for _, s := range c.Slots {
			if needsRefresh(s, now, window) {
				out = append(out, s.clone())
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *MemoryRepository) ListDueRecurrences(_ context.Context, now time.Time) ([]Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Consultation
	for _, c := range r.consultations {
		if !c.Recurring || c.Recurrence == nil || c.Recurrence.Paused {
			continue
		}
		if c.Recurrence.NextOccurrence.After(now) {
			continue
		}
		out = append(out, *c.clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Recurrence.NextOccurrence.Before(out[j].Recurrence.NextOccurrence)
	})
	return out, nil
}

func hasPatient(c *Consultation, patientID uuid.UUID) bool {
	for _, s := range c.Slots {
		if s.Position(patientID) > 0 {
			return true
		}
	}
	return false
}
