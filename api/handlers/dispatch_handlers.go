package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"civic-dispatch/core/dispatch"
	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"
)

type DispatchHandler struct {
	ledger  *dispatch.Ledger
	bulk    *dispatch.Bulk
	advisor *dispatch.Advisor
	ranker  *dispatch.Ranker
	logger  *utils.Logger
}

func NewDispatchHandler(ledger *dispatch.Ledger, bulk *dispatch.Bulk, advisor *dispatch.Advisor, ranker *dispatch.Ranker, logger *utils.Logger) *DispatchHandler {
	return &DispatchHandler{ledger: ledger, bulk: bulk, advisor: advisor, ranker: ranker, logger: logger.With("dispatch-api")}
}

type assignResponse struct {
	IssueID        int64             `json:"issue_id"`
	Assignment     *store.Assignment `json:"assignment,omitempty"`
	PreviousStatus string            `json:"previous_status"`
	Status         string            `json:"status"`
	Reassigned     bool              `json:"reassigned,omitempty"`
	Unassigned     bool              `json:"unassigned,omitempty"`
}

// Assign handles PUT /issues/{id}/assign. An explicit null assignee clears the
// assignment; a missing key is rejected.
func (h *DispatchHandler) Assign(w http.ResponseWriter, r *http.Request) {
	issueID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_issue", "issue id must be a positive integer")
		return
	}
	var payload map[string]json.RawMessage
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	rawAssignee, present := payload["assignee_id"]
	if !present {
		writeError(w, http.StatusBadRequest, "assignee_required", "assignee_id is required")
		return
	}
	var notes string
	if raw, ok := payload["notes"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &notes); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "notes must be a string")
			return
		}
	}

	if isNull(rawAssignee) {
		res, err := h.ledger.Unassign(r.Context(), issueID, actor(r))
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, assignResponse{IssueID: issueID, PreviousStatus: res.PreviousStatus, Status: res.Status, Unassigned: res.Removed})
		return
	}
	assigneeID, ok := parseAssigneeID(rawAssignee)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_assignee", "assignee_id must be a positive integer or null")
		return
	}
	res, err := h.ledger.Assign(r.Context(), dispatch.AssignRequest{IssueID: issueID, AssigneeID: assigneeID, Notes: notes, Actor: actor(r)})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, assignResponse{
		IssueID:        issueID,
		Assignment:     &res.Assignment,
		PreviousStatus: res.PreviousStatus,
		Status:         res.Status,
		Reassigned:     res.Reassigned,
	})
}

func (h *DispatchHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	issueID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_issue", "issue id must be a positive integer")
		return
	}
	var payload struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	res, err := h.ledger.SetStatus(r.Context(), issueID, payload.Status, payload.Notes, actor(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issue_id":        issueID,
		"previous_status": res.PreviousStatus,
		"status":          res.Status,
	})
}

type bulkPayload struct {
	Operation string  `json:"operation"`
	IssueIDs  []int64 `json:"issue_ids"`
	Data      struct {
		Status  string `json:"status"`
		Flagged *bool  `json:"flagged"`
		Notes   string `json:"notes"`
	} `json:"data"`
}

func (h *DispatchHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "could not read body")
		return
	}
	if err := h.bulk.ValidatePayload(raw); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var payload bulkPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	res, err := h.bulk.Apply(r.Context(), dispatch.BulkRequest{
		Operation: payload.Operation,
		IssueIDs:  payload.IssueIDs,
		Status:    payload.Data.Status,
		Flagged:   payload.Data.Flagged,
		Notes:     payload.Data.Notes,
		Actor:     actor(r),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Candidates resolves the issue location and ranks its department in one
// call. ?broaden=true drops the region filter.
func (h *DispatchHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	issueID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_issue", "issue id must be a positive integer")
		return
	}
	broaden, _ := strconv.ParseBool(r.URL.Query().Get("broaden"))
	s, err := h.advisor.Suggest(r.Context(), issueID, broaden)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type officialView struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Region      string `json:"region"`
	Workload    int    `json:"workload"`
}

// ListOfficials returns the ranked roster of ?departmentId, narrowed by
// ?region when it names a concrete place.
func (h *DispatchHandler) ListOfficials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deptID, ok := parseInt64(q.Get("departmentId"))
	if !ok {
		writeError(w, http.StatusBadRequest, "department_required", "departmentId must be a positive integer")
		return
	}
	ranking, err := h.ranker.Candidates(r.Context(), deptID, strings.TrimSpace(q.Get("region")))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	items := make([]officialView, 0, len(ranking.Candidates))
	for _, c := range ranking.Candidates {
		region := c.Region
		if strings.TrimSpace(region) == "" {
			region = dispatch.RegionGeneral
		}
		items = append(items, officialView{ID: c.ID, DisplayName: c.DisplayName, Region: region, Workload: c.Workload})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":           items,
		"scope":           ranking.Scope,
		"region":          ranking.Region,
		"suggest_broaden": ranking.SuggestBroaden,
	})
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parseAssigneeID accepts a JSON number or a numeric string.
func parseAssigneeID(raw json.RawMessage) (int64, bool) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, false
	}
	return parseInt64(n.String())
}
