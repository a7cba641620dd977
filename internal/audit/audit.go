package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventConsultationCreated = "CONSULTATION_CREATED"
	EventOccurrenceCreated   = "OCCURRENCE_MATERIALIZED"
	EventRecurrenceUpdated   = "RECURRENCE_UPDATED"
	EventSlotBooked          = "SLOT_BOOKED"
	EventSlotsSorted         = "SLOTS_FORCE_SORTED"
	EventPatientDiagnosed    = "PATIENT_DIAGNOSED"
	EventBedAssigned         = "BED_ASSIGNED"
	EventPatientWaitlisted   = "PATIENT_WAITLISTED"
	EventBedReleased         = "BED_RELEASED"
	EventWaitlistPromoted    = "WAITLIST_PROMOTED"
	EventBedsAdded           = "BEDS_ADDED"
)

type EventLog struct {
	ID        int64
	EventType string
	EntityID  *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

type Recorder interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Log writes an audit row. Failures are logged and swallowed; the audit trail
// never fails the operation that produced it.
func Log(ctx context.Context, rec Recorder, entityID uuid.UUID, eventType string, payload map[string]any) {
	if rec == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	id := entityID
	ev := EventLog{
		EventType: eventType,
		EntityID:  &id,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}

	if err := rec.InsertEvent(ctx, ev); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("event_type", eventType).
			Str("entity_id", entityID.String()).
			Msg("failed to insert event log")
	}
}

// MemoryRecorder keeps events in process. Used with STORAGE=memory and in tests.
type MemoryRecorder struct {
	mu     sync.Mutex
	nextID int64
	events []EventLog
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	ev.ID = r.nextID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far, optionally filtered by type.
func (r *MemoryRecorder) Events(eventType string) []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []EventLog
	for _, ev := range r.events {
		if eventType == "" || ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}
