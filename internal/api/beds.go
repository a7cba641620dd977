package api

import (
	"net/http"

	"github.com/hackgods/hospital-capacity-scheduling/internal/bedbank"
)

func allocateBedHandler(alloc *bedbank.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deptID, ok := uuidParam(w, r, "id", "invalid_department_id")
		if !ok {
			return
		}

		var req AllocateBedRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := uuidField(w, req.PatientID, "patient_id")
		if !ok {
			return
		}

		var (
			a   *bedbank.Allocation
			err error
		)
		if req.Priority != nil {
			a, err = alloc.AllocateBed(r.Context(), deptID, patientID, *req.Priority)
		} else {
			a, err = alloc.ScoreAndAllocate(r.Context(), bedbank.BedRequest{
				DepartmentID:    deptID,
				PatientID:       patientID,
				IllnessSeverity: req.IllnessSeverity,
				Transmittable:   req.Transmittable,
				DoctorOffset:    req.DoctorOffset,
				WaitingPeriod:   req.WaitingPeriod,
			})
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		status := http.StatusCreated
		if a.Waitlisted {
			status = http.StatusAccepted
		}
		writeJSON(w, status, toAllocationResponse(a))
	}
}

func setBedStatusHandler(alloc *bedbank.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deptID, ok := uuidParam(w, r, "id", "invalid_department_id")
		if !ok {
			return
		}
		index, ok := intParam(w, r, "index", "invalid_bed_index")
		if !ok {
			return
		}

		var req SetBedStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		upd, err := alloc.SetBedStatus(r.Context(), deptID, index, req.Occupied)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := BedUpdateResponse{
			DepartmentID: upd.DepartmentID,
			BedIndex:     upd.BedIndex,
			Occupied:     upd.Occupied,
			Promoted:     toCaseResponses(upd.Promoted),
		}
		if upd.Discharged != nil {
			c := toCaseResponse(*upd.Discharged)
			resp.Discharged = &c
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addBedsHandler(alloc *bedbank.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deptID, ok := uuidParam(w, r, "id", "invalid_department_id")
		if !ok {
			return
		}

		var req AddBedsRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		d, promoted, err := alloc.AddBeds(r.Context(), deptID, req.Count)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AddBedsResponse{
			Department: toDepartmentResponse(d),
			Promoted:   toCaseResponses(promoted),
		})
	}
}

func listBedsHandler(alloc *bedbank.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deptID, ok := uuidParam(w, r, "id", "invalid_department_id")
		if !ok {
			return
		}

		d, err := alloc.Department(r.Context(), deptID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDepartmentResponse(d))
	}
}
