package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-capacity-scheduling/internal/config"
	"github.com/hackgods/hospital-capacity-scheduling/internal/notify"
	"github.com/hackgods/hospital-capacity-scheduling/internal/seed"
)

func memoryConfig(redisAddr, notifier string) config.Config {
	return config.Config{
		Env:                "test",
		Storage:            config.StorageMemory,
		RedisAddr:          redisAddr,
		LockTTL:            5 * time.Second,
		OracleURL:          "http://127.0.0.1:1",
		OracleTimeout:      time.Second,
		NotifyWindow:       time.Hour,
		TimeZone:           "Asia/Kolkata",
		MaxConflictRetries: 5,
		Notifier:           notifier,
	}
}

func TestBuildMemoryWithRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	a, err := Build(ctx, memoryConfig(mr.Addr(), config.NotifierRedis), "test")
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.Pool)
	require.NotNil(t, a.Redis)

	res, err := a.Consultations.RefreshSchedules(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	// Another instance holds the tick.
	require.NoError(t, mr.Set("lock:refresh", "someone-else"))
	res, err = a.Consultations.RefreshSchedules(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestBuildMemoryToleratesMissingRedis(t *testing.T) {
	ctx := context.Background()

	a, err := Build(ctx, memoryConfig("", config.NotifierLog), "test")
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.Redis)
	res, err := a.Consultations.RefreshSchedules(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestBuildRedisNotifierNeedsRedis(t *testing.T) {
	_, err := Build(context.Background(), memoryConfig("", config.NotifierRedis), "test")
	require.Error(t, err)
}

func TestNotifierSelection(t *testing.T) {
	a := &App{}

	n, err := a.notifier(config.Config{Notifier: config.NotifierLog})
	require.NoError(t, err)
	assert.IsType(t, notify.LogNotifier{}, n)

	n, err = a.notifier(config.Config{Notifier: config.NotifierKafka, KafkaBrokers: []string{"127.0.0.1:9092"}, KafkaTopic: "t"})
	require.NoError(t, err)
	assert.IsType(t, &notify.KafkaNotifier{}, n)
	assert.Len(t, a.closers, 1)
	a.Close(context.Background())
}

func TestSeededMemoryAppAllocatesBeds(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, memoryConfig("", config.NotifierLog), "test")
	require.NoError(t, err)
	defer a.Close(ctx)

	res, err := seed.Run(ctx, a.Registry, a.BedRepo, a.Consultations, seed.Options{
		Hospitals:              1,
		DepartmentsPerHospital: 1,
		DoctorsPerDepartment:   1,
		BedsPerDepartment:      1,
		Patients:               2,
		ConsultationDays:       1,
		Start:                  time.Now().AddDate(0, 0, 3),
		Location:               time.UTC,
		Seed:                   1,
	})
	require.NoError(t, err)
	require.Len(t, res.Consultations, 1)

	dept := res.Departments[0].ID
	first, err := a.Beds.AllocateBed(ctx, dept, res.Patients[0].ID, 10)
	require.NoError(t, err)
	require.NotNil(t, first.BedIndex)
	assert.Equal(t, 0, *first.BedIndex)

	second, err := a.Beds.AllocateBed(ctx, dept, res.Patients[1].ID, 20)
	require.NoError(t, err)
	assert.True(t, second.Waitlisted)
	assert.Equal(t, 1, second.WaitlistPosition)
}
