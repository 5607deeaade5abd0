package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/justinndidit/eventPipeline/internal/audit"
	"github.com/justinndidit/eventPipeline/internal/dtos"
	"github.com/justinndidit/eventPipeline/internal/utils"
	"github.com/rs/zerolog"
)

type AuditHandler struct {
	logger *zerolog.Logger
	svc    *audit.Service
}

func NewAuditHandler(log *zerolog.Logger, svc *audit.Service) *AuditHandler {
	return &AuditHandler{logger: log, svc: svc}
}

func (h *AuditHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	var body dtos.LogEventRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	record, err := h.svc.Log(r.Context(), &body)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to log audit event")
		writeError(w, err, "Failed to log audit event")
		return
	}

	utils.WriteJson(w, http.StatusCreated, utils.WriteResponseSuccess(record, "", "Audit event recorded", nil))
}

func (h *AuditHandler) HandleBatchLog(w http.ResponseWriter, r *http.Request) {
	var body dtos.BatchLogRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	resp, err := h.svc.BatchLog(r.Context(), &body)
	if err != nil {
		writeError(w, err, "Failed to log audit batch")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(resp, "", "Batch processed", nil))
}

func (h *AuditHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var body dtos.QueryEventsRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	events, total, err := h.svc.Query(r.Context(), &body)
	if err != nil {
		writeError(w, err, "Failed to query audit events")
		return
	}

	limit := body.Limit
	if limit <= 0 {
		limit = 100
	}
	meta := &dtos.PaginationMeta{
		Total:       total,
		Limit:       limit,
		Offset:      body.Offset,
		HasNext:     body.Offset+len(events) < total,
		HasPrevious: body.Offset > 0,
	}
	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(events, "", "OK", meta))
}

func (h *AuditHandler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err, "Invalid audit event id")
		return
	}

	record, err := h.svc.GetEvent(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to get audit event")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(record, "", "OK", nil))
}

// HandleUserActivities lists one user's audit trail, newest-first.
func (h *AuditHandler) HandleUserActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	req := dtos.QueryEventsRequest{
		UserID: chi.URLParam(r, "user_id"),
		Limit:  limit,
		Offset: offset,
	}
	events, total, err := h.svc.Query(r.Context(), &req)
	if err != nil {
		writeError(w, err, "Failed to list user activities")
		return
	}

	if limit <= 0 {
		limit = 100
	}
	meta := &dtos.PaginationMeta{
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		HasNext:     offset+len(events) < total,
		HasPrevious: offset > 0,
	}
	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(events, "", "OK", meta))
}

// HandleUserSummary aggregates one user's trail with a risk score.
func (h *AuditHandler) HandleUserSummary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days == 0 {
		days = 30
	}

	summary, err := h.svc.UserActivity(r.Context(), userID, days)
	if err != nil {
		writeError(w, err, "Failed to summarize user activity")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(summary, "", "OK", nil))
}

func (h *AuditHandler) HandleListSecurityEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, _ := strconv.Atoi(q.Get("days"))
	if days == 0 {
		days = 30
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	events, total, err := h.svc.ListSecurityEvents(r.Context(), q.Get("status"), days, limit, offset)
	if err != nil {
		writeError(w, err, "Failed to list security events")
		return
	}

	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	meta := &dtos.PaginationMeta{
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		HasNext:     offset+len(events) < total,
		HasPrevious: offset > 0,
	}
	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(events, "", "OK", meta))
}

func (h *AuditHandler) HandleCreateSecurityAlert(w http.ResponseWriter, r *http.Request) {
	var body dtos.CreateSecurityAlertRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	event, err := h.svc.CreateSecurityAlert(r.Context(), &body)
	if err != nil {
		writeError(w, err, "Failed to create security alert")
		return
	}

	utils.WriteJson(w, http.StatusCreated, utils.WriteResponseSuccess(event, "", "Security alert created", nil))
}

func (h *AuditHandler) HandleTransitionSecurityEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err, "Invalid security event id")
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	event, err := h.svc.TransitionSecurityEvent(r.Context(), id, body.Status)
	if err != nil {
		writeError(w, err, "Failed to transition security event")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(event, "", "Security event updated", nil))
}

func (h *AuditHandler) HandleComplianceReport(w http.ResponseWriter, r *http.Request) {
	var body dtos.ComplianceReportRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	report, err := h.svc.GenerateComplianceReport(r.Context(), &body)
	if err != nil {
		writeError(w, err, "Failed to generate compliance report")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(report, "", "Report generated", nil))
}

func (h *AuditHandler) HandleComplianceStandards(w http.ResponseWriter, r *http.Request) {
	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(
		map[string][]string{"standards": audit.Standards()}, "", "OK", nil))
}

func (h *AuditHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	var body dtos.CleanupRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, err, "Invalid Request body")
		return
	}

	result, err := h.svc.Cleanup(r.Context(), &body)
	if err != nil {
		writeError(w, err, "Failed to clean up audit events")
		return
	}

	utils.WriteJson(w, http.StatusOK, utils.WriteResponseSuccess(result, "", "Cleanup finished", nil))
}
