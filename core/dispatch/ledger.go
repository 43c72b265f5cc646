package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"
)

const DefaultAssignNotes = "Assigned via Admin Dashboard"

type AuditLogger interface {
	Log(ctx context.Context, username, action, details string) error
}

type AssignRequest struct {
	IssueID    int64
	AssigneeID int64
	Notes      string
	Actor      string
}

// Ledger records who is responsible for each issue and keeps issue status in
// step with it.
type Ledger struct {
	assignments  store.AssignmentsStore
	audits       AuditLogger
	machine      Machine
	defaultNotes string
	logger       *utils.Logger
	metrics      *Metrics
}

type LedgerOptions struct {
	ReassignReopens bool
	DefaultNotes    string
}

func NewLedger(assignments store.AssignmentsStore, audits AuditLogger, opts LedgerOptions, logger *utils.Logger, metrics *Metrics) *Ledger {
	notes := strings.TrimSpace(opts.DefaultNotes)
	if notes == "" {
		notes = DefaultAssignNotes
	}
	return &Ledger{
		assignments:  assignments,
		audits:       audits,
		machine:      Machine{ReassignReopens: opts.ReassignReopens},
		defaultNotes: notes,
		logger:       logger.With("ledger"),
		metrics:      metrics,
	}
}

// Assign makes AssigneeID the sole assignee of the issue, replacing any
// previous one, and moves the issue status according to the lifecycle.
func (l *Ledger) Assign(ctx context.Context, req AssignRequest) (*store.AssignResult, error) {
	res, err := l.assign(ctx, req)
	l.metrics.assign(err)
	return res, err
}

func (l *Ledger) assign(ctx context.Context, req AssignRequest) (*store.AssignResult, error) {
	if req.IssueID <= 0 {
		return nil, validationError("invalid_issue", "issue id must be positive")
	}
	if req.AssigneeID <= 0 {
		return nil, validationError("assignee_required", "assignee_id is required")
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		notes = l.defaultNotes
	}
	res, err := l.assignments.Assign(ctx, store.AssignParams{
		IssueID:    req.IssueID,
		AssigneeID: req.AssigneeID,
		Notes:      notes,
		Actor:      req.Actor,
		AssignedAt: utils.NowUTC(),
		Next:       l.machine.Decider(TriggerAssign, ""),
	})
	if err != nil {
		return nil, translateLedgerError(err)
	}
	l.audit(ctx, req.Actor, "dispatch.assign", fmt.Sprintf("issue=%d assignee=%d status=%s->%s reassigned=%t",
		req.IssueID, req.AssigneeID, res.PreviousStatus, res.Status, res.Reassigned))
	return res, nil
}

// Unassign clears the assignment and returns the issue to active. Calling it
// on an issue without an assignment succeeds.
func (l *Ledger) Unassign(ctx context.Context, issueID int64, actor string) (*store.UnassignResult, error) {
	res, err := l.unassign(ctx, issueID, actor)
	l.metrics.unassign(err)
	return res, err
}

func (l *Ledger) unassign(ctx context.Context, issueID int64, actor string) (*store.UnassignResult, error) {
	if issueID <= 0 {
		return nil, validationError("invalid_issue", "issue id must be positive")
	}
	res, err := l.assignments.Unassign(ctx, issueID, actor, l.machine.Decider(TriggerUnassign, ""))
	if err != nil {
		return nil, translateLedgerError(err)
	}
	if res.Removed || res.PreviousStatus != res.Status {
		l.audit(ctx, actor, "dispatch.unassign", fmt.Sprintf("issue=%d status=%s->%s", issueID, res.PreviousStatus, res.Status))
	}
	return res, nil
}

// SetStatus applies a manual status change. Any of the four statuses may be
// requested from any other.
func (l *Ledger) SetStatus(ctx context.Context, issueID int64, status, note, actor string) (*store.StatusResult, error) {
	if issueID <= 0 {
		return nil, validationError("invalid_issue", "issue id must be positive")
	}
	st := NormalizeStatus(status)
	if !ValidStatus(st) {
		return nil, validationError("invalid_status", "status must be one of %s", strings.Join(store.IssueStatuses, ", "))
	}
	res, err := l.assignments.SetStatus(ctx, store.StatusParams{
		IssueID: issueID,
		Trigger: string(TriggerManual),
		Notes:   note,
		Actor:   actor,
		Next:    l.machine.Decider(TriggerManual, st),
	})
	if err != nil {
		return nil, translateLedgerError(err)
	}
	l.audit(ctx, actor, "issues.status", fmt.Sprintf("issue=%d status=%s->%s", issueID, res.PreviousStatus, res.Status))
	return res, nil
}

func (l *Ledger) audit(ctx context.Context, actor, action, details string) {
	if l.audits == nil {
		return
	}
	if err := l.audits.Log(ctx, actor, action, details); err != nil {
		l.logger.Errorf("audit %s: %v", action, err)
	}
}

func translateLedgerError(err error) error {
	switch {
	case errors.Is(err, store.ErrIssueWithoutDepartment):
		return translateStoreError(err, "department_not_found", "Could not find department for this issue")
	case errors.Is(err, store.ErrIssueNotFound):
		return translateStoreError(err, "issue_not_found", "issue not found")
	case errors.Is(err, store.ErrOfficialNotFound):
		return translateStoreError(err, "official_not_found", "official not found")
	}
	return translateStoreError(err, "not_found", "not found")
}
