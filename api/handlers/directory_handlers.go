package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"
)

// DirectoryHandler manages departments and the officials that staff them.
type DirectoryHandler struct {
	departments store.DepartmentsStore
	officials   store.OfficialsStore
	audits      store.AuditStore
	logger      *utils.Logger
}

func NewDirectoryHandler(departments store.DepartmentsStore, officials store.OfficialsStore, audits store.AuditStore, logger *utils.Logger) *DirectoryHandler {
	return &DirectoryHandler{departments: departments, officials: officials, audits: audits, logger: logger.With("directory-api")}
}

func (h *DirectoryHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	items, err := h.departments.ListDepartments(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []store.Department{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *DirectoryHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	d := &store.Department{Name: strings.TrimSpace(payload.Name), Description: strings.TrimSpace(payload.Description)}
	if d.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required", "name is required")
		return
	}
	id, err := h.departments.CreateDepartment(r.Context(), d)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	d.ID = id
	_ = h.audits.Log(r.Context(), actor(r), "departments.create", d.Name)
	writeJSON(w, http.StatusCreated, d)
}

func (h *DirectoryHandler) CreateOfficial(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DisplayName  string `json:"display_name"`
		Email        string `json:"email"`
		DepartmentID int64  `json:"department_id"`
		Region       string `json:"region"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	o := &store.Official{
		DisplayName:  strings.TrimSpace(payload.DisplayName),
		Email:        strings.TrimSpace(payload.Email),
		DepartmentID: payload.DepartmentID,
		Region:       strings.TrimSpace(payload.Region),
	}
	if o.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "name_required", "display_name is required")
		return
	}
	if o.DepartmentID <= 0 {
		writeError(w, http.StatusBadRequest, "department_required", "department_id is required")
		return
	}
	if _, err := h.departments.GetDepartment(r.Context(), o.DepartmentID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	id, err := h.officials.CreateOfficial(r.Context(), o)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	created, err := h.officials.GetOfficial(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	_ = h.audits.Log(r.Context(), actor(r), "officials.create", fmt.Sprintf("%d:%s", created.DepartmentID, created.DisplayName))
	writeJSON(w, http.StatusCreated, created)
}

type categoriesResponse struct {
	DepartmentID int64    `json:"department_id"`
	Categories   []string `json:"categories"`
	Removed      *bool    `json:"removed,omitempty"`
}

func (h *DirectoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	deptID, ok := h.department(w, r)
	if !ok {
		return
	}
	h.writeCategories(w, r, deptID, nil)
}

// AddCategory routes reports tagged with the category to the department.
func (h *DirectoryHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	deptID, ok := h.department(w, r)
	if !ok {
		return
	}
	var payload struct {
		Category string `json:"category"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	category := strings.TrimSpace(payload.Category)
	if category == "" {
		writeError(w, http.StatusBadRequest, "category_required", "category is required")
		return
	}
	if err := h.departments.AddCategory(r.Context(), deptID, category); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	_ = h.audits.Log(r.Context(), actor(r), "departments.category.add", fmt.Sprintf("%d:%s", deptID, category))
	h.writeCategories(w, r, deptID, nil)
}

func (h *DirectoryHandler) RemoveCategory(w http.ResponseWriter, r *http.Request) {
	deptID, ok := h.department(w, r)
	if !ok {
		return
	}
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category == "" {
		writeError(w, http.StatusBadRequest, "category_required", "category is required")
		return
	}
	removed, err := h.departments.RemoveCategory(r.Context(), deptID, category)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if removed {
		_ = h.audits.Log(r.Context(), actor(r), "departments.category.remove", fmt.Sprintf("%d:%s", deptID, category))
	}
	h.writeCategories(w, r, deptID, &removed)
}

// department resolves the {id} path parameter to an existing department,
// writing the error response itself when it cannot.
func (h *DirectoryHandler) department(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_department", "department id must be a positive integer")
		return 0, false
	}
	if _, err := h.departments.GetDepartment(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return 0, false
	}
	return id, true
}

func (h *DirectoryHandler) writeCategories(w http.ResponseWriter, r *http.Request, deptID int64, removed *bool) {
	cats, err := h.departments.ListCategories(r.Context(), deptID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, categoriesResponse{DepartmentID: deptID, Categories: cats, Removed: removed})
}
