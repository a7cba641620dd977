package bedbank

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-capacity-scheduling/internal/audit"
	"github.com/hackgods/hospital-capacity-scheduling/internal/notify"
	"github.com/hackgods/hospital-capacity-scheduling/internal/oracle"
	"github.com/hackgods/hospital-capacity-scheduling/internal/registry"
	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

type stubScorer struct {
	priority float64
	err      error
	got      []oracle.BedInput
}

func (s *stubScorer) ScoreOPD(context.Context, oracle.OPDInput) (float64, error) {
	return 0, errors.New("not used")
}

func (s *stubScorer) ScoreBed(_ context.Context, in oracle.BedInput) (float64, error) {
	s.got = append(s.got, in)
	return s.priority, s.err
}

type fixture struct {
	alloc    *Allocator
	repo     *MemoryRepository
	dir      *registry.MemoryDirectory
	notifier *notify.MemoryNotifier
	events   *audit.MemoryRecorder
	scorer   *stubScorer
	hospital registry.Hospital
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:     NewMemoryRepository(),
		dir:      registry.NewMemoryDirectory(),
		notifier: notify.NewMemoryNotifier(),
		events:   audit.NewMemoryRecorder(),
		scorer:   &stubScorer{priority: 1},
		now:      time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC),
	}
	f.hospital = f.dir.AddHospital(registry.Hospital{Name: gofakeit.Company() + " Hospital"})
	f.alloc = NewAllocator(f.repo, f.dir, Options{
		Oracle:   f.scorer,
		Notifier: f.notifier,
		Events:   f.events,
		Retry:    retry.Config{MaxAttempts: 100, InitialDelay: time.Microsecond, MaxDelay: 50 * time.Microsecond, BackoffFactor: 2},
		Now:      func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) department(t *testing.T, beds ...int) *Department {
	t.Helper()
	d := &Department{HospitalID: f.hospital.ID, Name: "Ward " + gofakeit.LetterN(3), Beds: beds}
	require.NoError(t, f.repo.CreateDepartment(context.Background(), d))
	return d
}

func (f *fixture) patient(t *testing.T) uuid.UUID {
	t.Helper()
	return f.dir.AddPatient(registry.Patient{Name: gofakeit.Name()}).ID
}

func TestAllocateFirstFitThenWaitlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.department(t, 1, 1, 0, 1)

	first := f.patient(t)
	got, err := f.alloc.AllocateBed(ctx, d.ID, first, 4)
	require.NoError(t, err)
	require.NotNil(t, got.BedIndex)
	assert.Equal(t, 2, *got.BedIndex)
	assert.False(t, got.Waitlisted)
	require.NotNil(t, got.CaseID)

	stored, err := f.alloc.Department(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 1}, stored.Beds)
	require.Len(t, stored.OpenCases, 1)
	assert.Equal(t, first, stored.OpenCases[0].PatientID)
	assert.Equal(t, 2, stored.OpenCases[0].BedIndex)
	assert.Equal(t, f.hospital.ID, stored.OpenCases[0].HospitalID)

	second := f.patient(t)
	got, err = f.alloc.AllocateBed(ctx, d.ID, second, 4)
	require.NoError(t, err)
	assert.True(t, got.Waitlisted)
	assert.Nil(t, got.BedIndex)
	assert.Equal(t, 1, got.WaitlistPosition)

	stored, err = f.alloc.Department(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 1}, stored.Beds)
	require.Len(t, stored.Waitlist, 1)
	assert.Equal(t, second, stored.Waitlist[0].PatientID)

	assert.Len(t, f.events.Events(audit.EventBedAssigned), 1)
	assert.Len(t, f.events.Events(audit.EventPatientWaitlisted), 1)
}

func TestWaitlistOrdersByPriorityThenArrival(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.department(t, 1)

	lowA, highA, lowB, highB := f.patient(t), f.patient(t), f.patient(t), f.patient(t)
	for _, p := range []struct {
		id       uuid.UUID
		priority float64
		position int
	}{
		{lowA, 3, 1},
		{highA, 7, 1},
		{lowB, 3, 3},
		{highB, 7, 2},
	} {
		got, err := f.alloc.AllocateBed(ctx, d.ID, p.id, p.priority)
		require.NoError(t, err)
		assert.True(t, got.Waitlisted)
		assert.Equal(t, p.position, got.WaitlistPosition)
		f.now = f.now.Add(time.Minute)
	}

	stored, err := f.alloc.Department(ctx, d.ID)
	require.NoError(t, err)
	var order []uuid.UUID
	for _, e := range stored.Waitlist {
		order = append(order, e.PatientID)
	}
	assert.Equal(t, []uuid.UUID{highA, highB, lowA, lowB}, order)
}

func TestAllocateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.department(t, 0, 1)

	bedded, waiting := f.patient(t), f.patient(t)
	_, err := f.alloc.AllocateBed(ctx, d.ID, bedded, 1)
	require.NoError(t, err)
	_, err = f.alloc.AllocateBed(ctx, d.ID, waiting, 1)
	require.NoError(t, err)

	_, err = f.alloc.AllocateBed(ctx, d.ID, bedded, 9)
	assert.ErrorIs(t, err, ErrPatientAlreadyInBed)
	_, err = f.alloc.AllocateBed(ctx, d.ID, waiting, 9)
	assert.ErrorIs(t, err, ErrAlreadyWaitlisted)

	stored, err := f.alloc.Department(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Waitlist, 1)
}

func TestAllocateNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.department(t, 0)

	_, err := f.alloc.AllocateBed(ctx, uuid.New(), f.patient(t), 1)
	assert.ErrorIs(t, err, ErrDepartmentNotFound)

	_, err = f.alloc.AllocateBed(ctx, d.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, registry.ErrPatientNotFound)

	_, err = f.alloc.Department(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrDepartmentNotFound)
}

func TestFreeingBedPromotesWaitlistHead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.department(t, 1, 0)

	admitted := f.patient(t)
	_, err := f.alloc.AllocateBed(ctx, d.ID, admitted, 2)
	require.NoError(t, err)

	low, high := f.patient(t), f.patient(t)
	_, err = f.alloc.AllocateBed(ctx, d.ID, low, 1)
	require.NoError(t, err)
	_, err = f.alloc.AllocateBed(ctx, d.ID, high, 8)
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	upd, err := f.alloc.SetBedStatus(ctx, d.ID, 1, false)
	require.NoError(t, err)
	require.NotNil(t, upd.Discharged)
	assert.Equal(t, admitted, upd.Discharged.PatientID)
	assert.True(t, upd.Discharged.Resolved)
	require.NotNil(t, upd.Discharged.DischargedAt)
	assert.Equal(t, f.now, *upd.Discharged.DischargedAt)
	require.Len(t, upd.Promoted, 1)
	assert.Equal(t, high, upd.Promoted[0].PatientID)
	assert.Equal(t, 1, upd.Promoted[0].BedIndex)
	assert.Equal(t, 8.0, upd.Promoted[0].Priority)

	stored, err := f.alloc.Department(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, stored.Beds)
	require.Len(t, stored.Waitlist, 1)
	assert.Equal(t, low, stored.Waitlist[0].PatientID)
	require.Len(t, stored.OpenCases, 1)
	assert.Equal(t, high, stored.OpenCases[0].PatientID)

	discharged := f.repo.DischargedCases(d.ID)
	require.Len(t, discharged, 1)
	assert.Equal(t, admitted, discharged[0].PatientID)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.KindBedAssigned, sent[0].Kind)
	assert.Equal(t, high, sent[0].PatientID)
	assert.Equal(t, 1, *sent[0].BedIndex)

	assert.Len(t, f.events.Events(audit.EventBedReleased), 1)
	assert.Len(t, f.events.Events(audit.EventWaitlistPromoted), 1)
}

func TestFreeingBedWithoutCaseOrWaitlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.department(t, 1, 1)

	upd, err := f.alloc.SetBedStatus(ctx, d.ID, 0, false)
	require.NoError(t, err)
	assert.Nil(t, upd.Discharged)
	assert.Empty(t, upd.Promoted)

	stored, err := f.alloc.Department(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, stored.Beds)

	// setting a bed to the state it is already in writes nothing
	_, err = f.alloc.SetBedStatus(ctx, d.ID, 0, false)
	require.NoError(t, err)
	again, err := f.alloc.Department(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Version, again.Version)

	_, err = f.alloc.SetBedStatus(ctx, d.ID, 0, true)
	require.NoError(t, err)
	again, err = f.alloc.Department(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, again.Beds)
	assert.Empty(t, again.OpenCases)

	_, err = f.alloc.SetBedStatus(ctx, d.ID, 2, false)
	assert.ErrorIs(t, err, ErrBedNotFound)
	_, err = f.alloc.SetBedStatus(ctx, d.ID, -1, false)
	assert.ErrorIs(t, err, ErrBedNotFound)
}

func TestAddBedsDrainsWaitlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.department(t, 1)

	waiting := []uuid.UUID{f.patient(t), f.patient(t), f.patient(t)}
	for i, p := range waiting {
		_, err := f.alloc.AllocateBed(ctx, d.ID, p, float64(10-i))
		require.NoError(t, err)
	}

	dept, promoted, err := f.alloc.AddBeds(ctx, d.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, dept.Beds)
	require.Len(t, promoted, 2)
	assert.Equal(t, waiting[0], promoted[0].PatientID)
	assert.Equal(t, 1, promoted[0].BedIndex)
	assert.Equal(t, waiting[1], promoted[1].PatientID)
	assert.Equal(t, 2, promoted[1].BedIndex)
	require.Len(t, dept.Waitlist, 1)
	assert.Equal(t, waiting[2], dept.Waitlist[0].PatientID)
	assert.Len(t, f.notifier.Sent(), 2)

	dept, promoted, err = f.alloc.AddBeds(ctx, d.ID, 3)
	require.NoError(t, err)
	assert.Len(t, promoted, 1)
	assert.Equal(t, []int{1, 1, 1, 1, 0, 0}, dept.Beds)
	assert.Empty(t, dept.Waitlist)

	_, _, err = f.alloc.AddBeds(ctx, d.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidBedCount)
}

func TestPromotionSurvivesNotificationFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.department(t, 1)
	p := f.patient(t)
	_, err := f.alloc.AllocateBed(ctx, d.ID, p, 5)
	require.NoError(t, err)

	f.notifier.Fail = func(notify.Notification) error { return errors.New("broker down") }

	_, promoted, err := f.alloc.AddBeds(ctx, d.ID, 1)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, p, promoted[0].PatientID)
	assert.Empty(t, f.notifier.Sent())
}

func TestConcurrentAllocationNeverSharesBed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const beds, contenders = 10, 30
	d := f.department(t, make([]int, beds)...)

	patients := make([]uuid.UUID, contenders)
	for i := range patients {
		patients[i] = f.patient(t)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		assigned = map[int]uuid.UUID{}
		waiting  int
	)
	for i, p := range patients {
		wg.Add(1)
		go func(i int, p uuid.UUID) {
			defer wg.Done()
			got, err := f.alloc.AllocateBed(ctx, d.ID, p, float64(i%4))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if got.Waitlisted {
				waiting++
				return
			}
			prev, taken := assigned[*got.BedIndex]
			assert.False(t, taken, "bed %d handed to %s and %s", *got.BedIndex, prev, p)
			assigned[*got.BedIndex] = p
		}(i, p)
	}
	wg.Wait()

	assert.Len(t, assigned, beds)
	assert.Equal(t, contenders-beds, waiting)

	stored, err := f.alloc.Department(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, beds, stored.Occupied())
	assert.Len(t, stored.OpenCases, beds)
	assert.Len(t, stored.Waitlist, contenders-beds)
	for i := 1; i < len(stored.Waitlist); i++ {
		assert.GreaterOrEqual(t, stored.Waitlist[i-1].Priority, stored.Waitlist[i].Priority)
	}
}

func TestScoreAndAllocate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.department(t, 0)

	disability := "DIS-42"
	p := f.dir.AddPatient(registry.Patient{
		Name:         gofakeit.Name(),
		DateOfBirth:  time.Date(1990, time.March, 4, 0, 0, 0, 0, time.UTC),
		DisabilityID: &disability,
		Rating:       4.5,
	})
	f.scorer.priority = 6.5

	got, err := f.alloc.ScoreAndAllocate(ctx, BedRequest{
		DepartmentID:    d.ID,
		PatientID:       p.ID,
		IllnessSeverity: 8,
		Transmittable:   true,
		DoctorOffset:    1.5,
		WaitingPeriod:   3,
	})
	require.NoError(t, err)
	assert.Equal(t, 6.5, got.Priority)
	require.NotNil(t, got.BedIndex)
	assert.Equal(t, 0, *got.BedIndex)

	require.Len(t, f.scorer.got, 1)
	in := f.scorer.got[0]
	assert.Equal(t, 34, in.Age)
	assert.True(t, in.Disabled)
	assert.True(t, in.Transmittable)
	assert.Equal(t, 4.5, in.PatientRating)
	assert.Equal(t, 1.5, in.DoctorOffset)
	assert.Equal(t, 3.0, in.WaitingPeriod)
}

func TestScoreAndAllocateOracleFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.department(t, 0)
	f.scorer.err = errors.New("connection refused")

	_, err := f.alloc.ScoreAndAllocate(ctx, BedRequest{DepartmentID: d.ID, PatientID: f.patient(t), IllnessSeverity: 5})
	assert.ErrorIs(t, err, oracle.ErrUnavailable)

	stored, err := f.alloc.Department(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, stored.Beds)
	assert.Zero(t, stored.Version)
}
