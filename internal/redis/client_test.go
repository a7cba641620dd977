package redisclient

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-capacity-scheduling/internal/config"
)

func TestNewRedisClientPings(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), config.Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer rdb.Close()

	assert.NoError(t, rdb.Ping(context.Background()).Err())
}

func TestNewRedisClientFailsWhenDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), config.Config{RedisAddr: addr})
	assert.ErrorContains(t, err, "ping redis")
}
