// Package seed fills a registry, bed bank and consultation calendar with
// fake but internally consistent data.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-capacity-scheduling/internal/bedbank"
	"github.com/hackgods/hospital-capacity-scheduling/internal/consultation"
	"github.com/hackgods/hospital-capacity-scheduling/internal/registry"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Medicine",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type Options struct {
	Hospitals              int
	DepartmentsPerHospital int
	DoctorsPerDepartment   int
	BedsPerDepartment      int
	Patients               int
	// ConsultationDays is how many consecutive days each doctor gets a
	// morning clinic, starting at Start.
	ConsultationDays int
	Start            time.Time
	Location         *time.Location
	Seed             int64
}

func DefaultOptions() Options {
	return Options{
		Hospitals:              3,
		DepartmentsPerHospital: 4,
		DoctorsPerDepartment:   3,
		BedsPerDepartment:      10,
		Patients:               500,
		ConsultationDays:       2,
		Start:                  time.Now().AddDate(0, 0, 1),
		Location:               time.UTC,
		Seed:                   time.Now().UnixNano(),
	}
}

type Result struct {
	Hospitals     []registry.Hospital
	Departments   []registry.Department
	Doctors       []registry.Doctor
	Patients      []registry.Patient
	Consultations []uuid.UUID
}

// Run inserts everything through the given stores. It is not idempotent;
// each call adds a fresh set of identities.
func Run(ctx context.Context, reg registry.Writer, beds bedbank.Repository, svc *consultation.Service, opts Options) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if err := gofakeit.Seed(opts.Seed); err != nil {
		return nil, fmt.Errorf("seed faker: %w", err)
	}

	res := &Result{}

	for h := 0; h < opts.Hospitals; h++ {
		hospital := registry.Hospital{Name: gofakeit.Company() + " Hospital"}
		if err := reg.InsertHospital(ctx, &hospital); err != nil {
			return nil, err
		}
		res.Hospitals = append(res.Hospitals, hospital)

		for d := 0; d < opts.DepartmentsPerHospital; d++ {
			dept := registry.Department{
				HospitalID: hospital.ID,
				Name:       specialties[(h+d)%len(specialties)],
			}
			if err := reg.InsertDepartment(ctx, &dept); err != nil {
				return nil, err
			}
			if err := beds.CreateDepartment(ctx, &bedbank.Department{
				ID:         dept.ID,
				HospitalID: hospital.ID,
				Name:       dept.Name,
				Beds:       make([]int, opts.BedsPerDepartment),
			}); err != nil {
				return nil, fmt.Errorf("create bed bank: %w", err)
			}
			res.Departments = append(res.Departments, dept)

			for i := 0; i < opts.DoctorsPerDepartment; i++ {
				deptID := dept.ID
				doc := registry.Doctor{
					Name:         "Dr. " + gofakeit.Name(),
					HospitalID:   hospital.ID,
					DepartmentID: &deptID,
				}
				if err := reg.InsertDoctor(ctx, &doc); err != nil {
					return nil, err
				}
				res.Doctors = append(res.Doctors, doc)
			}
		}
	}
	logger.Info().
		Int("hospitals", len(res.Hospitals)).
		Int("departments", len(res.Departments)).
		Int("doctors", len(res.Doctors)).
		Msg("registry seeded")

	for i := 0; i < opts.Patients; i++ {
		p := fakePatient()
		if err := reg.InsertPatient(ctx, &p); err != nil {
			return nil, err
		}
		res.Patients = append(res.Patients, p)
	}
	logger.Info().Int("patients", len(res.Patients)).Msg("patients seeded")

	if svc == nil {
		return res, nil
	}

	day := opts.Start.In(opts.Location)
	for i, doc := range res.Doctors {
		for d := 0; d < opts.ConsultationDays; d++ {
			date := day.AddDate(0, 0, d)
			start := time.Date(date.Year(), date.Month(), date.Day(), 9, 0, 0, 0, opts.Location)

			in := consultation.CreateInput{
				HospitalID:          doc.HospitalID,
				DoctorID:            doc.ID,
				StartTime:           start,
				EndTime:             start.Add(3 * time.Hour),
				SlotDurationMinutes: 30,
			}
			// One weekly series per three doctors, rooted on the first day.
			if d == 0 && i%3 == 0 {
				in.Recurring = true
				in.Frequency = consultation.FrequencyWeekly
			}

			c, err := svc.CreateConsultation(ctx, in)
			if err != nil {
				return nil, err
			}
			res.Consultations = append(res.Consultations, c.ID)
		}
	}
	logger.Info().Int("consultations", len(res.Consultations)).Msg("consultations seeded")

	return res, nil
}

func fakePatient() registry.Patient {
	email := gofakeit.Email()
	p := registry.Patient{
		Name:        gofakeit.Name(),
		Email:       &email,
		DateOfBirth: gofakeit.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-1, 0, 0)),
		Rating:      gofakeit.Float64Range(1, 5),
	}
	if gofakeit.Number(1, 10) == 1 {
		udid := gofakeit.Numerify("UDID-##########")
		p.DisabilityID = &udid
	}
	return p
}
