package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Kind string

const (
	KindSlotReminder Kind = "slot_reminder"
	KindBedAssigned  Kind = "bed_assigned"
)

// Notification is handed to a delivery channel. How it reaches the patient is not our concern.
type Notification struct {
	ID             uuid.UUID  `json:"id"`
	Kind           Kind       `json:"kind"`
	PatientID      uuid.UUID  `json:"patient_id"`
	ConsultationID *uuid.UUID `json:"consultation_id,omitempty"`
	SlotIndex      *int       `json:"slot_index,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	DepartmentID   *uuid.UUID `json:"department_id,omitempty"`
	BedIndex       *int       `json:"bed_index,omitempty"`
	Message        string     `json:"message"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// SlotReminder builds the notice sent when a booked slot enters the notify window.
func SlotReminder(patientID, consultationID uuid.UUID, slotIndex int, start time.Time) Notification {
	idx := slotIndex
	st := start
	cid := consultationID
	return Notification{
		ID:             uuid.New(),
		Kind:           KindSlotReminder,
		PatientID:      patientID,
		ConsultationID: &cid,
		SlotIndex:      &idx,
		StartTime:      &st,
		Message:        "Your consultation starts at " + start.UTC().Format(time.RFC3339),
		CreatedAt:      time.Now().UTC(),
	}
}

// BedAssigned builds the notice sent to a waitlisted patient who was given a freed bed.
func BedAssigned(patientID, departmentID uuid.UUID, bedIndex int) Notification {
	idx := bedIndex
	did := departmentID
	return Notification{
		ID:           uuid.New(),
		Kind:         KindBedAssigned,
		PatientID:    patientID,
		DepartmentID: &did,
		BedIndex:     &idx,
		Message:      "A bed has been assigned to you",
		CreatedAt:    time.Now().UTC(),
	}
}

// LogNotifier only logs. It is the default channel.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notification) error {
	zerolog.Ctx(ctx).Info().
		Str("kind", string(n.Kind)).
		Str("patient_id", n.PatientID.String()).
		Str("notification_id", n.ID.String()).
		Msg(n.Message)
	return nil
}

// MemoryNotifier records notifications in process.
type MemoryNotifier struct {
	mu   sync.Mutex
	sent []Notification
	// Fail, when set, is returned for matching patients instead of recording.
	Fail func(n Notification) error
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (m *MemoryNotifier) Notify(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		if err := m.Fail(n); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *MemoryNotifier) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.sent))
	copy(out, m.sent)
	return out
}
