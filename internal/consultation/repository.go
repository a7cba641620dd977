package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConsultationNotFound = errors.New("consultation not found")
	ErrSlotNotFound         = fmt.Errorf("%w: slot index out of range", ErrConsultationNotFound)
	// ErrOccurrenceExists is returned when a series already has a consultation at the same anchor.
	ErrOccurrenceExists = errors.New("occurrence already materialized")
)

// ListFilter narrows ListConsultations. Unset fields do not filter.
type ListFilter struct {
	DoctorID   *uuid.UUID
	HospitalID *uuid.UUID
	PatientID  *uuid.UUID // consultations with this patient in any slot
}

// Repository persists consultations and their slots. Slot and recurrence writes
// are compare-and-swap on Version and fail with retry.ErrConflict when the stored
// version moved; on success the passed entity's Version is advanced.
type Repository interface {
	CreateConsultation(ctx context.Context, c *Consultation) error
	GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error)
	GetSlot(ctx context.Context, consultationID uuid.UUID, index int) (*Slot, error)
	UpdateSlot(ctx context.Context, s *Slot) error
	UpdateRecurrence(ctx context.Context, c *Consultation) error

	// Read side, ordered by anchor time.
	ListConsultations(ctx context.Context, f ListFilter) ([]Consultation, error)

	// Refresh tick
	ListSlotsForRefresh(ctx context.Context, now time.Time, window time.Duration) ([]Slot, error)
	ListDueRecurrences(ctx context.Context, now time.Time) ([]Consultation, error)
}

// needsRefresh matches what ListSlotsForRefresh must return: slots due to elapse
// and unnotified slots starting inside (now, now+window].
func needsRefresh(s Slot, now time.Time, window time.Duration) bool {
	if s.Elapsed {
		return false
	}
	if !s.EndTime.After(now) {
		return true
	}
	return !s.Notified && s.StartTime.After(now) && !s.StartTime.After(now.Add(window))
}
