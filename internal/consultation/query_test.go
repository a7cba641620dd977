package consultation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-capacity-scheduling/internal/registry"
)

func TestDoctorQueues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, severityScorer{})

	earlier := f.consultation(t, at(5, 0), 2, false, "")
	later := f.consultation(t, at(9, 0), 2, false, "")

	waiting, urgent, done, old := f.patient(t), f.patient(t), f.patient(t), f.patient(t)
	_, err := f.book(ctx, later, 0, waiting, 2, false)
	require.NoError(t, err)
	_, err = f.book(ctx, later, 0, urgent, 9, false)
	require.NoError(t, err)
	_, err = f.book(ctx, later, 1, done, 4, true)
	require.NoError(t, err)
	_, err = f.book(ctx, earlier, 1, old, 1, false)
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkDiagnosed(ctx, later.ID, done))

	upcoming, err := f.svc.UpcomingForDoctor(ctx, f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, urgent, upcoming[0].PatientID)
	assert.Equal(t, 1, upcoming[0].Position)
	assert.Equal(t, waiting, upcoming[1].PatientID)
	assert.Equal(t, 2, upcoming[1].Position)
	assert.Equal(t, f.hospital.Name, upcoming[0].HospitalName)
	assert.Equal(t, []string{"fever"}, upcoming[0].SymptomKeywords)
	assert.NotEqual(t, unknownPatient, upcoming[0].PatientName)

	past, err := f.svc.PastForDoctor(ctx, f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, past, 2)
	assert.Equal(t, old, past[0].PatientID)
	assert.Equal(t, earlier.ID, past[0].ConsultationID)
	assert.Equal(t, done, past[1].PatientID)
	assert.True(t, past[1].Diagnosed)
	assert.True(t, past[1].Online)
}

func TestDoctorQueueWithoutConsultations(t *testing.T) {
	f := newFixture(t, severityScorer{})

	_, err := f.svc.UpcomingForDoctor(context.Background(), f.doctor.ID)
	assert.ErrorIs(t, err, ErrDoctorHasNoConsultations)

	// a doctor with consultations but nobody waiting gets an empty list
	f.consultation(t, at(9, 0), 1, false, "")
	upcoming, err := f.svc.UpcomingForDoctor(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	assert.Empty(t, upcoming)
}

func TestPatientAppointments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, severityScorer{})
	p := f.patient(t)

	first := f.consultation(t, at(5, 0), 1, false, "")
	second := f.consultation(t, at(6, 0), 1, false, "")
	third := f.consultation(t, at(10, 0), 1, false, "")
	fourth := f.consultation(t, at(8, 0), 1, false, "")

	for _, c := range []*Consultation{third, first, fourth, second} {
		_, err := f.book(ctx, c, 0, p, 3, false)
		require.NoError(t, err)
	}

	upcoming, err := f.svc.UpcomingForPatient(ctx, p)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, fourth.ID, upcoming[0].ConsultationID)
	assert.Equal(t, third.ID, upcoming[1].ConsultationID)
	assert.Equal(t, f.doctor.Name, upcoming[0].DoctorName)
	assert.Equal(t, f.dept.Name, upcoming[0].Specialty)
	assert.Equal(t, 1, upcoming[0].QueuePosition)

	past, err := f.svc.PastForPatient(ctx, p)
	require.NoError(t, err)
	require.Len(t, past, 2)
	assert.Equal(t, second.ID, past[0].ConsultationID)
	assert.Equal(t, first.ID, past[1].ConsultationID)
}

func TestPatientWithoutAppointments(t *testing.T) {
	f := newFixture(t, severityScorer{})
	f.consultation(t, at(9, 0), 1, false, "")

	_, err := f.svc.UpcomingForPatient(context.Background(), f.patient(t))
	assert.ErrorIs(t, err, ErrPatientHasNoAppointments)

	_, err = f.svc.PastForPatient(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPatientHasNoAppointments)
}

func TestHospitalOccupancy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, severityScorer{})
	c := f.consultation(t, at(9, 0), 2, false, "")

	low, high := f.patient(t), f.patient(t)
	_, err := f.book(ctx, c, 1, low, 1, true)
	require.NoError(t, err)
	_, err = f.book(ctx, c, 1, high, 7, false)
	require.NoError(t, err)

	occ, err := f.svc.HospitalOccupancy(ctx, f.hospital.ID)
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, c.ID, occ[0].ConsultationID)
	require.Len(t, occ[0].Slots, 2)
	assert.Empty(t, occ[0].Slots[0].Occupants)

	slot := occ[0].Slots[1]
	assert.Equal(t, 1, slot.OnlineCount)
	require.Len(t, slot.Occupants, 2)
	assert.Equal(t, high, slot.Occupants[0].PatientID)
	assert.Equal(t, low, slot.Occupants[1].PatientID)
	assert.Equal(t, 2, slot.Occupants[1].Position)

	_, err = f.svc.HospitalOccupancy(ctx, uuid.New())
	assert.ErrorIs(t, err, registry.ErrHospitalNotFound)

	empty := f.dir.AddHospital(registry.Hospital{Name: "Empty General"})
	_, err = f.svc.HospitalOccupancy(ctx, empty.ID)
	assert.ErrorIs(t, err, ErrHospitalHasNoConsultations)
}

type namelessDirectory struct {
	*registry.MemoryDirectory
}

func (namelessDirectory) GetPatients(context.Context, []uuid.UUID) (map[uuid.UUID]registry.Patient, error) {
	return nil, errors.New("directory offline")
}

func TestQueueNamesFallBackToUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, severityScorer{})
	c := f.consultation(t, at(9, 0), 1, false, "")
	_, err := f.book(ctx, c, 0, f.patient(t), 1, false)
	require.NoError(t, err)

	svc := NewService(f.repo, namelessDirectory{f.dir}, f.svc.opts)

	upcoming, err := svc.UpcomingForDoctor(ctx, f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "Unknown", upcoming[0].PatientName)

	occ, err := svc.HospitalOccupancy(ctx, f.hospital.ID)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", occ[0].Slots[0].Occupants[0].PatientName)
}
