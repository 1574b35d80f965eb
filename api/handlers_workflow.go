package api

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/importer"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEAVE REQUEST HANDLERS
// =============================================================================

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	empID, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	var req SubmitLeaveRequestDTO
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.Service.SubmitLeaveRequest(r.Context(), leave.SubmitInput{
		EmployeeID:  empID,
		TypeCode:    req.TypeCode,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		HalfDay:     req.HalfDay,
		Subtype:     req.Subtype,
		Relation:    req.Relation,
		Notes:       req.Notes,
		DocumentRef: req.DocumentRef,
		ActorID:     actor.UserID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeRequest(w, r, id, http.StatusCreated)
}

func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	empID, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	h.listRequests(w, r, leave.RequestFilter{EmployeeID: &empID})
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter leave.RequestFilter
	if v := q.Get("employee_id"); v != "" {
		id, err := parseID("employee_id", v)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		emp := leave.EmployeeID(id)
		filter.EmployeeID = &emp
	}
	if v := q.Get("department_id"); v != "" {
		id, err := parseID("department_id", v)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		dep := leave.DepartmentID(id)
		filter.DepartmentID = &dep
	}
	filter.TypeCode = q.Get("type")
	for _, s := range q["state"] {
		state := leave.WorkflowState(s)
		if !state.Valid() {
			h.writeError(w, r, &generic.ValidationError{Field: "state", Message: "unknown workflow state " + strconv.Quote(s)})
			return
		}
		filter.States = append(filter.States, state)
	}
	h.listRequests(w, r, filter)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request, filter leave.RequestFilter) {
	reqs, err := h.Service.ListRequests(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeRequests(w, reqs)
}

// PendingRequests returns the approval queue for the caller's role.
func (h *Handler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reqs, err := h.Service.PendingFor(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeRequests(w, reqs)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	h.writeRequest(w, r, id, http.StatusOK)
}

func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.decide(w, r, leave.Decision(req.Decision), req.Reason)
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.DecisionApprove, "")
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.decide(w, r, leave.DecisionReject, req.Reason)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision leave.Decision, reason string) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	err = h.Service.Decide(r.Context(), leave.DecideInput{
		RequestID: id,
		Actor:     actor,
		Decision:  decision,
		Reason:    reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeRequest(w, r, id, http.StatusOK)
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Cancel(r.Context(), id, actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeRequest(w, r, id, http.StatusOK)
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (leave.RequestID, bool) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return 0, false
	}
	return leave.RequestID(id), true
}

func (h *Handler) writeRequest(w http.ResponseWriter, r *http.Request, id leave.RequestID, status int) {
	req, err := h.Service.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, toLeaveRequestDTO(*req))
}

func writeRequests(w http.ResponseWriter, reqs []leave.LeaveRequest) {
	dtos := make([]LeaveRequestDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = toLeaveRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ABSENCE HANDLERS
// =============================================================================

func (h *Handler) RecordAbsence(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	empID, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	var req RecordAbsenceRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := leave.AbsenceInput{
		EmployeeID: empID,
		Date:       req.Date,
		Type:       req.Type,
		Notes:      req.Notes,
		ActorID:    actor.UserID,
	}
	if req.Duration != nil {
		d := generic.Days(*req.Duration)
		in.Duration = &d
	}
	id, err := h.Service.RecordAbsence(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: int64(id)})
}

func (h *Handler) ListAbsences(w http.ResponseWriter, r *http.Request) {
	empID, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	filter := leave.AbsenceFilter{EmployeeID: &empID}
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		d, err := generic.ParseDate("from", v)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.From = d
	}
	if v := q.Get("to"); v != "" {
		d, err := generic.ParseDate("to", v)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.To = d
	}

	absences, err := h.Service.ListAbsences(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]AbsenceDTO, len(absences))
	for i, a := range absences {
		dtos[i] = toAbsenceDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) DeleteAbsence(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Service.DeleteAbsence(r.Context(), leave.AbsenceID(id), actor.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunAccrual triggers the monthly accrual for as_of (default: today).
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.runDate(w, r)
	if !ok {
		return
	}
	res, err := h.Service.RunMonthlyAccrual(r.Context(), asOf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccrualResultDTO(res))
}

// RunEmergencyReset triggers the yearly emergency reset for as_of's year.
func (h *Handler) RunEmergencyReset(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.runDate(w, r)
	if !ok {
		return
	}
	res, err := h.Service.RunEmergencyReset(r.Context(), asOf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResetResultDTO(res))
}

// RunMaintenance runs the scheduler's periodic check immediately.
func (h *Handler) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		h.writeError(w, r, &generic.ValidationError{Message: "scheduler is not configured"})
		return
	}
	report, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) runDate(w http.ResponseWriter, r *http.Request) (generic.Date, bool) {
	var req RunRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return generic.Date{}, false
		}
	}
	if req.AsOf == "" {
		return generic.Today(), true
	}
	d, err := generic.ParseDate("as_of", req.AsOf)
	if err != nil {
		h.writeError(w, r, err)
		return generic.Date{}, false
	}
	return d, true
}

// ImportEmployees accepts a multipart upload with an xlsx "file" field.
func (h *Handler) ImportEmployees(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		h.writeError(w, r, &generic.ValidationError{Field: "file", Message: "expected a multipart upload: " + err.Error()})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, &generic.ValidationError{Field: "file", Message: "file field is required"})
		return
	}
	defer file.Close()

	opts := importer.Options{ActorID: actor.UserID}
	if opts.DryRun, err = queryBool(r, "dry_run"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if opts.CreateDepartments, err = queryBool(r, "create_departments"); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Importer.Import(r.Context(), file, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Log.WithFields(logrus.Fields{
		"run_id":   res.RunID,
		"dry_run":  res.DryRun,
		"inserted": res.Inserted,
		"updated":  res.Updated,
		"errors":   len(res.Errors),
	}).Info("employee import finished")
	writeJSON(w, http.StatusOK, res)
}

// ExportBalances streams the balance report as an xlsx attachment.
func (h *Handler) ExportBalances(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.Importer.ExportBalances(r.Context(), &buf); err != nil {
		h.writeError(w, r, err)
		return
	}
	name := "balances-" + time.Now().Format("2006-01-02") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func queryBool(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &generic.ValidationError{Field: key, Message: "must be true or false"}
	}
	return b, nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := generic.AuditFilter{Table: q.Get("table"), Limit: 100}
	for _, key := range []string{"record_id", "user_id"} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.writeError(w, r, &generic.ValidationError{Field: key, Message: "must be an integer"})
			return
		}
		if key == "record_id" {
			filter.RecordID = &n
		} else {
			filter.UserID = &n
		}
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, generic.AuditAction(a))
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			h.writeError(w, r, &generic.ValidationError{Field: "limit", Message: "must be between 1 and 1000"})
			return
		}
		filter.Limit = n
	}

	entries, err := h.Service.AuditTrail(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}
