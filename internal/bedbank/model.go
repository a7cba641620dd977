package bedbank

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	BedFree     = 0
	BedOccupied = 1
)

var (
	ErrDepartmentNotFound  = errors.New("department not found")
	ErrBedNotFound         = errors.New("bed not found")
	ErrInvalidBedCount     = errors.New("bed count must be positive")
	ErrAlreadyWaitlisted   = errors.New("patient is already on the department waitlist")
	ErrPatientAlreadyInBed = errors.New("patient already occupies a bed in this department")
	ErrOracleNotConfigured = errors.New("priority oracle not configured")
)

type WaitlistEntry struct {
	PatientID  uuid.UUID `json:"patient_id"`
	Priority   float64   `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Case is an admission record tying a patient to a bed.
type Case struct {
	ID           uuid.UUID
	HospitalID   uuid.UUID
	DepartmentID uuid.UUID
	PatientID    uuid.UUID
	BedIndex     int
	Priority     float64
	Resolved     bool
	AdmittedAt   time.Time
	DischargedAt *time.Time
}

// Department is the unit of mutual exclusion for bed allocation. Beds, the
// waitlist and the open cases are written together under one Version.
type Department struct {
	ID         uuid.UUID
	HospitalID uuid.UUID
	Name       string
	Beds       []int
	Waitlist   []WaitlistEntry
	OpenCases  []Case
	Version    int64
	UpdatedAt  time.Time
}

// FreeBed returns the lowest free bed index, or -1.
func (d *Department) FreeBed() int {
	for i, b := range d.Beds {
		if b == BedFree {
			return i
		}
	}
	return -1
}

func (d *Department) Occupied() int {
	n := 0
	for _, b := range d.Beds {
		if b != BedFree {
			n++
		}
	}
	return n
}

func (d *Department) waitlistPosition(patientID uuid.UUID) int {
	for i, e := range d.Waitlist {
		if e.PatientID == patientID {
			return i + 1
		}
	}
	return 0
}

func (d *Department) openCase(bed int) (int, bool) {
	for i, c := range d.OpenCases {
		if c.BedIndex == bed {
			return i, true
		}
	}
	return 0, false
}

func (d *Department) holdsBed(patientID uuid.UUID) bool {
	for _, c := range d.OpenCases {
		if c.PatientID == patientID {
			return true
		}
	}
	return false
}

// enqueue inserts behind every entry of equal or higher priority and returns
// the 1-based position.
func (d *Department) enqueue(e WaitlistEntry) int {
	i := sort.Search(len(d.Waitlist), func(i int) bool {
		return d.Waitlist[i].Priority < e.Priority
	})
	d.Waitlist = append(d.Waitlist, WaitlistEntry{})
	copy(d.Waitlist[i+1:], d.Waitlist[i:])
	d.Waitlist[i] = e
	return i + 1
}

func (d *Department) clone() *Department {
	out := *d
	out.Beds = append([]int(nil), d.Beds...)
	out.Waitlist = append([]WaitlistEntry(nil), d.Waitlist...)
	out.OpenCases = make([]Case, len(d.OpenCases))
	for i, c := range d.OpenCases {
		out.OpenCases[i] = c.clone()
	}
	return &out
}

func (c Case) clone() Case {
	if c.DischargedAt != nil {
		t := *c.DischargedAt
		c.DischargedAt = &t
	}
	return c
}
