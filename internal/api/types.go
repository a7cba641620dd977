package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-capacity-scheduling/internal/bedbank"
	"github.com/hackgods/hospital-capacity-scheduling/internal/consultation"
)

type CreateConsultationRequest struct {
	HospitalID          string    `json:"hospital_id"`
	DoctorID            string    `json:"doctor_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	Recurring           bool      `json:"recurring"`
	Frequency           string    `json:"frequency,omitempty"`
}

type PreviewSlotsRequest struct {
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
}

type BookSlotRequest struct {
	PatientID       string   `json:"patient_id"`
	SymptomKeywords []string `json:"symptom_keywords"`
	PossibleAilment string   `json:"possible_ailment"`
	IllnessSeverity float64  `json:"illness_severity"`
	Transmittable   bool     `json:"transmittable"`
	Online          bool     `json:"online"`
}

type MarkDiagnosedRequest struct {
	PatientID string `json:"patient_id"`
}

type UpdateRecurrenceRequest struct {
	Paused    *bool   `json:"paused,omitempty"`
	Frequency *string `json:"frequency,omitempty"`
}

// AllocateBedRequest carries either a precomputed priority or the attributes
// the oracle scores a bed priority from.
type AllocateBedRequest struct {
	PatientID       string   `json:"patient_id"`
	Priority        *float64 `json:"priority,omitempty"`
	IllnessSeverity float64  `json:"illness_severity"`
	Transmittable   bool     `json:"transmittable"`
	DoctorOffset    float64  `json:"doctor_offset"`
	WaitingPeriod   float64  `json:"waiting_period"`
}

type SetBedStatusRequest struct {
	Occupied bool `json:"occupied"`
}

type AddBedsRequest struct {
	Count int `json:"count"`
}

type SlotUserResponse struct {
	PatientID       uuid.UUID `json:"patient_id"`
	Position        int       `json:"position"`
	Priority        float64   `json:"priority"`
	SymptomKeywords []string  `json:"symptom_keywords"`
	PossibleAilment string    `json:"possible_ailment"`
	Diagnosed       bool      `json:"diagnosed"`
	Online          bool      `json:"online"`
	BookedAt        time.Time `json:"booked_at"`
}

type SlotResponse struct {
	Index       int                `json:"index"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time"`
	Notified    bool               `json:"notified"`
	Elapsed     bool               `json:"elapsed"`
	OnlineCount int                `json:"online_count"`
	Users       []SlotUserResponse `json:"users"`
}

type RecurrenceResponse struct {
	Paused         bool      `json:"paused"`
	Frequency      string    `json:"frequency"`
	NextOccurrence time.Time `json:"next_occurrence"`
}

type ConsultationResponse struct {
	ID                  uuid.UUID           `json:"id"`
	HospitalID          uuid.UUID           `json:"hospital_id"`
	HospitalName        string              `json:"hospital_name"`
	DoctorID            uuid.UUID           `json:"doctor_id"`
	DoctorName          string              `json:"doctor_name"`
	Specialty           string              `json:"specialty"`
	AnchorTime          time.Time           `json:"anchor_time"`
	EndTime             time.Time           `json:"end_time"`
	SlotDurationMinutes int                 `json:"slot_duration_minutes"`
	Recurring           bool                `json:"recurring"`
	Recurrence          *RecurrenceResponse `json:"recurrence,omitempty"`
	SeriesID            *uuid.UUID          `json:"series_id,omitempty"`
	Slots               []SlotResponse      `json:"slots"`
}

type AdmissionResponse struct {
	ConsultationID uuid.UUID `json:"consultation_id"`
	SlotIndex      int       `json:"slot_index"`
	PatientID      uuid.UUID `json:"patient_id"`
	Priority       float64   `json:"priority"`
	Position       int       `json:"position"`
	Online         bool      `json:"online"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

type QueueEntryResponse struct {
	ConsultationID  uuid.UUID `json:"consultation_id"`
	HospitalID      uuid.UUID `json:"hospital_id"`
	HospitalName    string    `json:"hospital_name"`
	SlotIndex       int       `json:"slot_index"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Position        int       `json:"position"`
	PatientID       uuid.UUID `json:"patient_id"`
	PatientName     string    `json:"patient_name"`
	Priority        float64   `json:"priority"`
	SymptomKeywords []string  `json:"symptom_keywords"`
	PossibleAilment string    `json:"possible_ailment"`
	Diagnosed       bool      `json:"diagnosed"`
	Online          bool      `json:"online"`
}

type AppointmentResponse struct {
	ConsultationID uuid.UUID `json:"consultation_id"`
	HospitalID     uuid.UUID `json:"hospital_id"`
	HospitalName   string    `json:"hospital_name"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	DoctorName     string    `json:"doctor_name"`
	Specialty      string    `json:"specialty"`
	SlotIndex      int       `json:"slot_index"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	QueuePosition  int       `json:"queue_position"`
	Priority       float64   `json:"priority"`
	Diagnosed      bool      `json:"diagnosed"`
	Online         bool      `json:"online"`
}

type OccupantResponse struct {
	PatientID   uuid.UUID `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	Position    int       `json:"position"`
	Priority    float64   `json:"priority"`
	Diagnosed   bool      `json:"diagnosed"`
	Online      bool      `json:"online"`
}

type SlotOccupancyResponse struct {
	Index       int                `json:"index"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time"`
	Notified    bool               `json:"notified"`
	Elapsed     bool               `json:"elapsed"`
	OnlineCount int                `json:"online_count"`
	Occupants   []OccupantResponse `json:"occupants"`
}

type ConsultationOccupancyResponse struct {
	ConsultationID uuid.UUID               `json:"consultation_id"`
	DoctorID       uuid.UUID               `json:"doctor_id"`
	DoctorName     string                  `json:"doctor_name"`
	Specialty      string                  `json:"specialty"`
	AnchorTime     time.Time               `json:"anchor_time"`
	Recurring      bool                    `json:"recurring"`
	Slots          []SlotOccupancyResponse `json:"slots"`
}

type AllocationResponse struct {
	DepartmentID     uuid.UUID  `json:"department_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	Priority         float64    `json:"priority"`
	Status           string     `json:"status"`
	BedIndex         *int       `json:"bed_index,omitempty"`
	CaseID           *uuid.UUID `json:"case_id,omitempty"`
	WaitlistPosition int        `json:"waitlist_position,omitempty"`
}

type CaseResponse struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	BedIndex     int        `json:"bed_index"`
	Priority     float64    `json:"priority"`
	Resolved     bool       `json:"resolved"`
	AdmittedAt   time.Time  `json:"admitted_at"`
	DischargedAt *time.Time `json:"discharged_at,omitempty"`
}

type WaitlistEntryResponse struct {
	Position   int       `json:"position"`
	PatientID  uuid.UUID `json:"patient_id"`
	Priority   float64   `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type DepartmentResponse struct {
	ID         uuid.UUID               `json:"id"`
	HospitalID uuid.UUID               `json:"hospital_id"`
	Name       string                  `json:"name"`
	Beds       []int                   `json:"beds"`
	Free       int                     `json:"free"`
	Waitlist   []WaitlistEntryResponse `json:"waitlist"`
	OpenCases  []CaseResponse          `json:"open_cases"`
}

type BedUpdateResponse struct {
	DepartmentID uuid.UUID      `json:"department_id"`
	BedIndex     int            `json:"bed_index"`
	Occupied     bool           `json:"occupied"`
	Discharged   *CaseResponse  `json:"discharged,omitempty"`
	Promoted     []CaseResponse `json:"promoted"`
}

type AddBedsResponse struct {
	Department DepartmentResponse `json:"department"`
	Promoted   []CaseResponse     `json:"promoted"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s consultation.Slot) SlotResponse {
	out := SlotResponse{
		Index:       s.Index,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Notified:    s.Notified,
		Elapsed:     s.Elapsed,
		OnlineCount: s.OnlineCount,
		Users:       make([]SlotUserResponse, 0, len(s.Users)),
	}
	for i, u := range s.Users {
		out.Users = append(out.Users, SlotUserResponse{
			PatientID:       u.PatientID,
			Position:        i + 1,
			Priority:        u.Priority,
			SymptomKeywords: u.SymptomKeywords,
			PossibleAilment: u.PossibleAilment,
			Diagnosed:       u.Diagnosed,
			Online:          u.Online,
			BookedAt:        u.BookedAt,
		})
	}
	return out
}

func toConsultationResponse(c *consultation.Consultation) ConsultationResponse {
	out := ConsultationResponse{
		ID:                  c.ID,
		HospitalID:          c.HospitalID,
		HospitalName:        c.HospitalName,
		DoctorID:            c.DoctorID,
		DoctorName:          c.DoctorName,
		Specialty:           c.Specialty,
		AnchorTime:          c.AnchorTime,
		EndTime:             c.EndTime,
		SlotDurationMinutes: c.SlotDuration,
		Recurring:           c.Recurring,
		SeriesID:            c.SeriesID,
		Slots:               make([]SlotResponse, 0, len(c.Slots)),
	}
	if c.Recurrence != nil {
		out.Recurrence = &RecurrenceResponse{
			Paused:         c.Recurrence.Paused,
			Frequency:      string(c.Recurrence.Frequency),
			NextOccurrence: c.Recurrence.NextOccurrence,
		}
	}
	for _, s := range c.Slots {
		out.Slots = append(out.Slots, toSlotResponse(s))
	}
	return out
}

func toCaseResponse(c bedbank.Case) CaseResponse {
	return CaseResponse{
		ID:           c.ID,
		PatientID:    c.PatientID,
		BedIndex:     c.BedIndex,
		Priority:     c.Priority,
		Resolved:     c.Resolved,
		AdmittedAt:   c.AdmittedAt,
		DischargedAt: c.DischargedAt,
	}
}

func toCaseResponses(cases []bedbank.Case) []CaseResponse {
	out := make([]CaseResponse, 0, len(cases))
	for _, c := range cases {
		out = append(out, toCaseResponse(c))
	}
	return out
}

func toDepartmentResponse(d *bedbank.Department) DepartmentResponse {
	out := DepartmentResponse{
		ID:         d.ID,
		HospitalID: d.HospitalID,
		Name:       d.Name,
		Beds:       d.Beds,
		Free:       len(d.Beds) - d.Occupied(),
		Waitlist:   make([]WaitlistEntryResponse, 0, len(d.Waitlist)),
		OpenCases:  toCaseResponses(d.OpenCases),
	}
	for i, e := range d.Waitlist {
		out.Waitlist = append(out.Waitlist, WaitlistEntryResponse{
			Position:   i + 1,
			PatientID:  e.PatientID,
			Priority:   e.Priority,
			EnqueuedAt: e.EnqueuedAt,
		})
	}
	return out
}

func toAllocationResponse(a *bedbank.Allocation) AllocationResponse {
	status := "assigned"
	if a.Waitlisted {
		status = "waitlisted"
	}
	return AllocationResponse{
		DepartmentID:     a.DepartmentID,
		PatientID:        a.PatientID,
		Priority:         a.Priority,
		Status:           status,
		BedIndex:         a.BedIndex,
		CaseID:           a.CaseID,
		WaitlistPosition: a.WaitlistPosition,
	}
}
