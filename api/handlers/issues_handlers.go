package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"civic-dispatch/core/dispatch"
	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"
)

type IssuesHandler struct {
	issues      store.IssuesStore
	departments store.DepartmentsStore
	audits      store.AuditStore
	logger      *utils.Logger
}

func NewIssuesHandler(issues store.IssuesStore, departments store.DepartmentsStore, audits store.AuditStore, logger *utils.Logger) *IssuesHandler {
	return &IssuesHandler{issues: issues, departments: departments, audits: audits, logger: logger.With("issues-api")}
}

type createIssuePayload struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	DepartmentID *int64   `json:"department_id"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Email        string   `json:"email"`
}

// Create files a new issue for the calling reporter. Issues always start
// active and unassigned; without a department_id the store routes them by tag.
func (h *IssuesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createIssuePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	payload.Title = strings.TrimSpace(payload.Title)
	if payload.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required", "title is required")
		return
	}
	if (payload.Latitude == nil) != (payload.Longitude == nil) {
		writeError(w, http.StatusBadRequest, "invalid_location", "latitude and longitude must be sent together")
		return
	}
	if payload.DepartmentID != nil {
		if _, err := h.departments.GetDepartment(r.Context(), *payload.DepartmentID); err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
	}
	reporter := actor(r)
	issue := &store.Issue{
		Title:         payload.Title,
		Description:   strings.TrimSpace(payload.Description),
		Tags:          payload.Tags,
		DepartmentID:  payload.DepartmentID,
		Latitude:      payload.Latitude,
		Longitude:     payload.Longitude,
		ReporterEmail: strings.TrimSpace(payload.Email),
	}
	id, err := h.issues.CreateIssue(r.Context(), issue, reporter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	created, err := h.issues.GetIssue(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	_ = h.audits.Log(r.Context(), reporter, "issues.create", created.Title)
	writeJSON(w, http.StatusCreated, created)
}

func (h *IssuesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IssueFilter{
		Limit:  parseIntDefault(q.Get("limit"), 50),
		Offset: parseIntDefault(q.Get("offset"), 0),
	}
	if raw := strings.TrimSpace(q.Get("department")); raw != "" {
		id, ok := parseInt64(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_department", "department must be a positive integer")
			return
		}
		filter.DepartmentID = id
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := dispatch.NormalizeStatus(raw)
		if !dispatch.ValidStatus(status) {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown status")
			return
		}
		filter.Status = status
	}
	items, err := h.issues.ListIssues(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []store.Issue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IssuesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_issue", "issue id must be a positive integer")
		return
	}
	issue, err := h.issues.GetIssue(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (h *IssuesHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_issue", "issue id must be a positive integer")
		return
	}
	if _, err := h.issues.GetIssue(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	items, err := h.issues.ListStatusHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []store.StatusChange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type routeResponse struct {
	Issue                *store.Issue `json:"issue"`
	PreviousDepartmentID *int64       `json:"previous_department_id"`
}

// SetDepartment routes an issue to a department by hand. The status is left
// as it is and an existing assignment follows the issue.
func (h *IssuesHandler) SetDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_issue", "issue id must be a positive integer")
		return
	}
	var payload struct {
		DepartmentID int64 `json:"department_id"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if payload.DepartmentID <= 0 {
		writeError(w, http.StatusBadRequest, "department_required", "department_id is required")
		return
	}
	previous, err := h.issues.SetDepartment(r.Context(), id, payload.DepartmentID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	issue, err := h.issues.GetIssue(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	from := "none"
	if previous != nil {
		from = strconv.FormatInt(*previous, 10)
	}
	_ = h.audits.Log(r.Context(), actor(r), "issues.route", fmt.Sprintf("issue %d: department %s -> %d", id, from, payload.DepartmentID))
	writeJSON(w, http.StatusOK, routeResponse{Issue: issue, PreviousDepartmentID: previous})
}
