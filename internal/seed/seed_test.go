package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-capacity-scheduling/internal/bedbank"
	"github.com/hackgods/hospital-capacity-scheduling/internal/consultation"
	"github.com/hackgods/hospital-capacity-scheduling/internal/registry"
)

func TestRunPopulatesConsistentData(t *testing.T) {
	ctx := context.Background()
	dir := registry.NewMemoryDirectory()
	beds := bedbank.NewMemoryRepository()
	repo := consultation.NewMemoryRepository()
	svc := consultation.NewService(repo, dir, consultation.Options{})

	res, err := Run(ctx, dir, beds, svc, Options{
		Hospitals:              2,
		DepartmentsPerHospital: 2,
		DoctorsPerDepartment:   2,
		BedsPerDepartment:      4,
		Patients:               20,
		ConsultationDays:       2,
		Start:                  time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		Seed:                   42,
	})
	require.NoError(t, err)

	assert.Len(t, res.Hospitals, 2)
	assert.Len(t, res.Departments, 4)
	assert.Len(t, res.Doctors, 8)
	assert.Len(t, res.Patients, 20)
	assert.Len(t, res.Consultations, 16)

	for _, dept := range res.Departments {
		d, err := beds.GetDepartment(ctx, dept.ID)
		require.NoError(t, err)
		assert.Len(t, d.Beds, 4)
		assert.Equal(t, dept.HospitalID, d.HospitalID)
	}

	for _, p := range res.Patients {
		got, err := dir.GetPatient(ctx, p.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, got.Name)
		assert.GreaterOrEqual(t, got.Rating, 1.0)
	}

	recurring := 0
	for _, id := range res.Consultations {
		c, err := svc.GetConsultation(ctx, id)
		require.NoError(t, err)
		assert.Len(t, c.Slots, 6)
		assert.Equal(t, 9, c.AnchorTime.Hour())
		if c.Recurring {
			recurring++
			assert.Equal(t, consultation.FrequencyWeekly, c.Recurrence.Frequency)
		}
	}
	assert.Equal(t, 3, recurring)
}

func TestRunWithoutServiceSkipsConsultations(t *testing.T) {
	dir := registry.NewMemoryDirectory()

	res, err := Run(context.Background(), dir, bedbank.NewMemoryRepository(), nil, Options{
		Hospitals:              1,
		DepartmentsPerHospital: 1,
		DoctorsPerDepartment:   1,
		Patients:               3,
		ConsultationDays:       5,
		Seed:                   7,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Consultations)
	assert.Len(t, res.Patients, 3)
}
