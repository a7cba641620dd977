package consultation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxSlotCapacity   = 5
	MaxOnlineCapacity = 3
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
}

type Recurrence struct {
	Paused         bool
	Frequency      Frequency
	NextOccurrence time.Time
}

// Consultation is one doctor's session at one hospital. Recurring series roots
// carry the Recurrence; each materialized occurrence is a separate Consultation
// pointing back at its root through SeriesID.
type Consultation struct {
	ID           uuid.UUID
	HospitalID   uuid.UUID
	HospitalName string
	DoctorID     uuid.UUID
	DoctorName   string
	Specialty    string
	AnchorTime   time.Time
	EndTime      time.Time
	SlotDuration int // minutes
	Recurring    bool
	Recurrence   *Recurrence
	SeriesID     *uuid.UUID
	Version      int64
	Slots        []Slot
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Slot struct {
	ConsultationID uuid.UUID
	Index          int
	StartTime      time.Time
	EndTime        time.Time
	Notified       bool
	Elapsed        bool
	OnlineCount    int
	Users          []SlotUser
	Version        int64
}

type SlotUser struct {
	PatientID       uuid.UUID `json:"patient_id"`
	Priority        float64   `json:"priority"`
	SymptomKeywords []string  `json:"symptom_keywords"`
	PossibleAilment string    `json:"possible_ailment"`
	Diagnosed       bool      `json:"diagnosed"`
	Online          bool      `json:"online"`
	BookedAt        time.Time `json:"booked_at"`
}

// Position returns the 1-based queue position of patientID, or 0 when absent.
func (s Slot) Position(patientID uuid.UUID) int {
	for i, u := range s.Users {
		if u.PatientID == patientID {
			return i + 1
		}
	}
	return 0
}

// Sorted reports whether occupants are in service order.
func (s Slot) Sorted() bool {
	return sort.SliceIsSorted(s.Users, func(i, j int) bool {
		return s.Users[i].Priority > s.Users[j].Priority
	})
}

// sortUsers orders occupants by priority, highest first. Equal priorities keep
// booking order.
func sortUsers(users []SlotUser) {
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Priority > users[j].Priority
	})
}

// HoldsUnresolved reports whether patientID occupies any slot of c without
// having been diagnosed yet.
func (c *Consultation) HoldsUnresolved(patientID uuid.UUID) bool {
	for _, s := range c.Slots {
		for _, u := range s.Users {
			if u.PatientID == patientID && !u.Diagnosed {
				return true
			}
		}
	}
	return false
}

// Window is the span a materialized occurrence must cover again.
func (c *Consultation) Window() time.Duration {
	return c.EndTime.Sub(c.AnchorTime)
}

func (s Slot) clone() Slot {
	out := s
	if s.Users != nil {
		out.Users = make([]SlotUser, len(s.Users))
		for i, u := range s.Users {
			out.Users[i] = u
			if u.SymptomKeywords != nil {
				out.Users[i].SymptomKeywords = append([]string(nil), u.SymptomKeywords...)
			}
		}
	}
	return out
}

func (c *Consultation) clone() *Consultation {
	out := *c
	if c.Recurrence != nil {
		r := *c.Recurrence
		out.Recurrence = &r
	}
	if c.SeriesID != nil {
		id := *c.SeriesID
		out.SeriesID = &id
	}
	if c.Slots != nil {
		out.Slots = make([]Slot, len(c.Slots))
		for i, s := range c.Slots {
			out.Slots[i] = s.clone()
		}
	}
	return &out
}
