package consultation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-capacity-scheduling/internal/audit"
	"github.com/hackgods/hospital-capacity-scheduling/internal/notify"
	"github.com/hackgods/hospital-capacity-scheduling/internal/oracle"
	"github.com/hackgods/hospital-capacity-scheduling/internal/registry"
	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

type mockScorer struct {
	mock.Mock
}

func (m *mockScorer) ScoreOPD(ctx context.Context, in oracle.OPDInput) (float64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockScorer) ScoreBed(ctx context.Context, in oracle.BedInput) (float64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(float64), args.Error(1)
}

// severityScorer uses the illness severity as the priority.
type severityScorer struct{}

func (severityScorer) ScoreOPD(_ context.Context, in oracle.OPDInput) (float64, error) {
	return in.IllnessSeverity, nil
}

func (severityScorer) ScoreBed(_ context.Context, in oracle.BedInput) (float64, error) {
	return in.IllnessSeverity, nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	dir      *registry.MemoryDirectory
	notifier *notify.MemoryNotifier
	events   *audit.MemoryRecorder
	clock    *testClock
	hospital registry.Hospital
	doctor   registry.Doctor
	dept     registry.Department
}

var day = time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func newFixture(t *testing.T, scorer oracle.Scorer) *fixture {
	t.Helper()

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	f := &fixture{
		repo:     NewMemoryRepository(),
		dir:      registry.NewMemoryDirectory(),
		notifier: notify.NewMemoryNotifier(),
		events:   audit.NewMemoryRecorder(),
		clock:    &testClock{t: at(7, 0)},
	}

	f.hospital = f.dir.AddHospital(registry.Hospital{Name: gofakeit.Company() + " Hospital"})
	f.dept = f.dir.AddDepartment(registry.Department{HospitalID: f.hospital.ID, Name: "Cardiology"})
	f.doctor = f.dir.AddDoctor(registry.Doctor{
		Name:         "Dr. " + gofakeit.LastName(),
		HospitalID:   f.hospital.ID,
		DepartmentID: &f.dept.ID,
	})

	f.svc = NewService(f.repo, f.dir, Options{
		Oracle:       scorer,
		Notifier:     f.notifier,
		Events:       f.events,
		Location:     loc,
		NotifyWindow: time.Hour,
		Retry:        retry.Config{MaxAttempts: 8, InitialDelay: time.Microsecond, MaxDelay: 100 * time.Microsecond, BackoffFactor: 2},
		Now:          f.clock.Now,
	})

	return f
}

func (f *fixture) consultation(t *testing.T, start time.Time, slots int, recurring bool, freq Frequency) *Consultation {
	t.Helper()
	c, err := f.svc.CreateConsultation(context.Background(), CreateInput{
		HospitalID:          f.hospital.ID,
		DoctorID:            f.doctor.ID,
		StartTime:           start,
		EndTime:             start.Add(time.Duration(slots*30) * time.Minute),
		SlotDurationMinutes: 30,
		Recurring:           recurring,
		Frequency:           freq,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) patient(t *testing.T) uuid.UUID {
	t.Helper()
	return f.dir.AddPatient(registry.Patient{
		Name:        gofakeit.Name(),
		DateOfBirth: gofakeit.DateRange(time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)),
		Rating:      4,
	}).ID
}

func (f *fixture) book(ctx context.Context, c *Consultation, slot int, patient uuid.UUID, severity float64, online bool) (*Admission, error) {
	return f.svc.BookSlot(ctx, BookingRequest{
		ConsultationID:  c.ID,
		SlotIndex:       slot,
		PatientID:       patient,
		SymptomKeywords: []string{"fever"},
		PossibleAilment: "flu",
		IllnessSeverity: severity,
		Online:          online,
	})
}
