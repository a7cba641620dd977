package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes each notification on a per-patient channel.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: "notifications:patient:"}
}

func (r *RedisNotifier) Channel(patientID uuid.UUID) string {
	return r.prefix + patientID.String()
}

func (r *RedisNotifier) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := r.client.Publish(ctx, r.Channel(n.PatientID), data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
