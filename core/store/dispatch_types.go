package store

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	ErrIssueNotFound          = fmt.Errorf("issue %w", ErrNotFound)
	ErrOfficialNotFound       = fmt.Errorf("official %w", ErrNotFound)
	ErrDepartmentNotFound     = fmt.Errorf("department %w", ErrNotFound)
	ErrAssignmentNotFound     = fmt.Errorf("assignment %w", ErrNotFound)
	ErrIssueWithoutDepartment = fmt.Errorf("issue department %w", ErrNotFound)
)

const (
	StatusActive        = "active"
	StatusUnderProgress = "under_progress"
	StatusUnderReview   = "under_review"
	StatusClosed        = "closed"
)

var IssueStatuses = []string{StatusActive, StatusUnderProgress, StatusUnderReview, StatusClosed}

type Issue struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Tags          []string       `json:"tags,omitempty"`
	Status        string         `json:"status"`
	Flagged       bool           `json:"flagged"`
	DepartmentID  *int64         `json:"department_id,omitempty"`
	Latitude      *float64       `json:"latitude,omitempty"`
	Longitude     *float64       `json:"longitude,omitempty"`
	ReporterEmail string         `json:"reporter_email,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Assignment    *IssueAssignee `json:"assignment,omitempty"`
}

// IssueAssignee is the assignment summary joined onto admin issue listings.
type IssueAssignee struct {
	AssigneeID   int64     `json:"assignee_id"`
	AssigneeName string    `json:"assignee_name"`
	Notes        string    `json:"notes"`
	AssignedAt   time.Time `json:"assigned_at"`
}

type Official struct {
	ID           int64     `json:"id"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	DepartmentID int64     `json:"department_id"`
	Region       string    `json:"region"`
	CreatedAt    time.Time `json:"created_at"`
}

// Candidate is an official together with the number of non-closed issues
// currently assigned to them.
type Candidate struct {
	Official
	Workload int `json:"workload"`
}

type Department struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	CreatedAt        time.Time `json:"created_at"`
	OfficialsCount   int       `json:"officials_count"`
	AssignmentsCount int       `json:"assignments_count"`
	IssuesCount      int       `json:"issues_count"`
}

type Assignment struct {
	ID           int64     `json:"id"`
	IssueID      int64     `json:"issue_id"`
	AssigneeID   int64     `json:"assignee_id"`
	DepartmentID int64     `json:"department_id"`
	Notes        string    `json:"notes"`
	AssignedAt   time.Time `json:"assigned_at"`
}

type StatusChange struct {
	ID         int64     `json:"id"`
	IssueID    int64     `json:"issue_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Trigger    string    `json:"trigger"`
	Notes      string    `json:"notes,omitempty"`
	ChangedBy  string    `json:"changed_by"`
	ChangedAt  time.Time `json:"changed_at"`
}

// LedgerDrift describes an issue whose status disagrees with the presence of
// an assignment row.
type LedgerDrift struct {
	IssueID       int64  `json:"issue_id"`
	Status        string `json:"status"`
	HasAssignment bool   `json:"has_assignment"`
}

type IssueFilter struct {
	DepartmentID int64
	Status       string
	Limit        int
	Offset       int
}

// StatusDecider computes the status an issue moves to given its current one.
// It runs inside the mutating transaction.
type StatusDecider func(current string) (string, error)

type AssignParams struct {
	IssueID    int64
	AssigneeID int64
	Notes      string
	Actor      string
	AssignedAt time.Time
	Next       StatusDecider
}

type AssignResult struct {
	Assignment     Assignment
	PreviousStatus string
	Status         string
	Reassigned     bool
}

type UnassignResult struct {
	PreviousStatus string
	Status         string
	Removed        bool
}

type StatusParams struct {
	IssueID int64
	Trigger string
	Notes   string
	Actor   string
	Next    StatusDecider
}

type StatusResult struct {
	PreviousStatus string
	Status         string
}
