package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRecorder struct{ calls int }

func (f *failingRecorder) InsertEvent(context.Context, EventLog) error {
	f.calls++
	return errors.New("db down")
}

func TestLogWritesPayload(t *testing.T) {
	rec := NewMemoryRecorder()
	id := uuid.New()

	Log(context.Background(), rec, id, EventSlotBooked, map[string]any{"slot_index": 1})

	events := rec.Events(EventSlotBooked)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, id, *events[0].EntityID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, float64(1), payload["slot_index"])

	assert.Empty(t, rec.Events(EventBedAssigned))
}

func TestLogSwallowsRecorderFailure(t *testing.T) {
	rec := &failingRecorder{}
	assert.NotPanics(t, func() {
		Log(context.Background(), rec, uuid.New(), EventBedReleased, nil)
	})
	assert.Equal(t, 1, rec.calls)

	assert.NotPanics(t, func() {
		Log(context.Background(), nil, uuid.New(), EventBedReleased, nil)
	})
}
