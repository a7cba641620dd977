package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifierKeysByPatient(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaNotifier{writer: w}
	patient := uuid.New()

	n := SlotReminder(patient, uuid.New(), 1, time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC))
	require.NoError(t, k.Notify(context.Background(), n))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, patient.String(), string(w.msgs[0].Key))
	assert.Equal(t, "slot_reminder", string(w.msgs[0].Headers[0].Value))

	var decoded Notification
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, 1, *decoded.SlotIndex)
}

func TestKafkaNotifierWrapsWriteError(t *testing.T) {
	k := &KafkaNotifier{writer: &fakeWriter{err: errors.New("broker down")}}
	err := k.Notify(context.Background(), BedAssigned(uuid.New(), uuid.New(), 2))
	assert.ErrorContains(t, err, "broker down")
}

func TestRedisNotifierPublishesOnPatientChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	r := NewRedisNotifier(client)
	patient := uuid.New()

	sub := client.Subscribe(ctx, r.Channel(patient))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Notify(ctx, BedAssigned(patient, uuid.New(), 3)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var decoded Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
	assert.Equal(t, KindBedAssigned, decoded.Kind)
	assert.Equal(t, 3, *decoded.BedIndex)
}

func TestMemoryNotifierFailHook(t *testing.T) {
	m := NewMemoryNotifier()
	bad := uuid.New()
	m.Fail = func(n Notification) error {
		if n.PatientID == bad {
			return errors.New("unreachable")
		}
		return nil
	}

	assert.Error(t, m.Notify(context.Background(), BedAssigned(bad, uuid.New(), 0)))
	assert.NoError(t, m.Notify(context.Background(), BedAssigned(uuid.New(), uuid.New(), 0)))
	assert.Len(t, m.Sent(), 1)
}
