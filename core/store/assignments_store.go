package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// AssignmentsStore owns the assignment ledger. Every mutation reads and locks
// the issue row, changes the assignment and the issue status, and appends a
// status history row inside one transaction.
type AssignmentsStore interface {
	Assign(ctx context.Context, p AssignParams) (*AssignResult, error)
	Unassign(ctx context.Context, issueID int64, actor string, next StatusDecider) (*UnassignResult, error)
	SetStatus(ctx context.Context, p StatusParams) (*StatusResult, error)
	GetAssignment(ctx context.Context, issueID int64) (*Assignment, error)
	FindLedgerDrift(ctx context.Context) ([]LedgerDrift, error)
}

type assignmentsStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewAssignmentsStore(db *sql.DB) AssignmentsStore {
	return &assignmentsStore{db: db, dialect: DialectOf(db)}
}

func (s *assignmentsStore) Assign(ctx context.Context, p AssignParams) (*AssignResult, error) {
	if p.AssignedAt.IsZero() {
		p.AssignedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyWriteError(err)
	}
	current, deptID, err := s.lockIssueTx(ctx, tx, p.IssueID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !deptID.Valid {
		tx.Rollback()
		return nil, notFound(ErrIssueWithoutDepartment, p.IssueID)
	}
	var officialID int64
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT id FROM officials WHERE id=?`), p.AssigneeID).Scan(&officialID)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return nil, notFound(ErrOfficialNotFound, p.AssigneeID)
	}
	if err != nil {
		tx.Rollback()
		return nil, classifyWriteError(err)
	}
	var previousAssignee sql.NullInt64
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT assignee_id FROM assignments WHERE issue_id=?`), p.IssueID).Scan(&previousAssignee)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return nil, classifyWriteError(err)
	}
	var a Assignment
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`
		INSERT INTO assignments(issue_id, assignee_id, department_id, notes, assigned_at)
		VALUES(?,?,?,?,?)
		ON CONFLICT(issue_id) DO UPDATE SET
			assignee_id=excluded.assignee_id,
			department_id=excluded.department_id,
			notes=excluded.notes,
			assigned_at=excluded.assigned_at
		RETURNING id, issue_id, assignee_id, department_id, notes, assigned_at`),
		p.IssueID, p.AssigneeID, deptID.Int64, strings.TrimSpace(p.Notes), p.AssignedAt).
		Scan(&a.ID, &a.IssueID, &a.AssigneeID, &a.DepartmentID, &a.Notes, &a.AssignedAt)
	if err != nil {
		tx.Rollback()
		return nil, classifyWriteError(err)
	}
	status, err := s.applyStatusTx(ctx, tx, p.IssueID, current, "assign", a.Notes, p.Actor, p.AssignedAt, p.Next)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classifyWriteError(err)
	}
	return &AssignResult{
		Assignment:     a,
		PreviousStatus: current,
		Status:         status,
		Reassigned:     previousAssignee.Valid,
	}, nil
}

// Unassign removes the assignment of an issue. An issue without an assignment
// is left untouched apart from the status decision, so repeated calls are
// harmless.
func (s *assignmentsStore) Unassign(ctx context.Context, issueID int64, actor string, next StatusDecider) (*UnassignResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyWriteError(err)
	}
	current, _, err := s.lockIssueTx(ctx, tx, issueID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	res, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM assignments WHERE issue_id=?`), issueID)
	if err != nil {
		tx.Rollback()
		return nil, classifyWriteError(err)
	}
	removed, _ := res.RowsAffected()
	status, err := s.applyStatusTx(ctx, tx, issueID, current, "unassign", "", actor, time.Now().UTC(), next)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classifyWriteError(err)
	}
	return &UnassignResult{PreviousStatus: current, Status: status, Removed: removed > 0}, nil
}

func (s *assignmentsStore) SetStatus(ctx context.Context, p StatusParams) (*StatusResult, error) {
	trigger := p.Trigger
	if trigger == "" {
		trigger = "manual"
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyWriteError(err)
	}
	current, _, err := s.lockIssueTx(ctx, tx, p.IssueID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	status, err := s.applyStatusTx(ctx, tx, p.IssueID, current, trigger, strings.TrimSpace(p.Notes), p.Actor, time.Now().UTC(), p.Next)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classifyWriteError(err)
	}
	return &StatusResult{PreviousStatus: current, Status: status}, nil
}

func (s *assignmentsStore) GetAssignment(ctx context.Context, issueID int64) (*Assignment, error) {
	var a Assignment
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT id, issue_id, assignee_id, department_id, notes, assigned_at FROM assignments WHERE issue_id=?`), issueID).
		Scan(&a.ID, &a.IssueID, &a.AssigneeID, &a.DepartmentID, &a.Notes, &a.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(ErrAssignmentNotFound, issueID)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindLedgerDrift lists issues whose status disagrees with the ledger: an
// assignment on an active issue, or an issue in progress with nobody assigned.
func (s *assignmentsStore) FindLedgerDrift(ctx context.Context) ([]LedgerDrift, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT i.id, i.status, CASE WHEN a.id IS NULL THEN 0 ELSE 1 END
		FROM issues i
		LEFT JOIN assignments a ON a.issue_id=i.id
		WHERE (a.id IS NOT NULL AND i.status=?)
			OR (a.id IS NULL AND i.status=?)
		ORDER BY i.id`), StatusActive, StatusUnderProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LedgerDrift
	for rows.Next() {
		var d LedgerDrift
		var has int
		if err := rows.Scan(&d.IssueID, &d.Status, &has); err != nil {
			return nil, err
		}
		d.HasAssignment = has == 1
		res = append(res, d)
	}
	return res, rows.Err()
}

func (s *assignmentsStore) lockIssueTx(ctx context.Context, tx *sql.Tx, issueID int64) (string, sql.NullInt64, error) {
	var status string
	var deptID sql.NullInt64
	err := tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT status, department_id FROM issues WHERE id=?`+s.dialect.lockRow()), issueID).
		Scan(&status, &deptID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", deptID, notFound(ErrIssueNotFound, issueID)
	}
	if err != nil {
		return "", deptID, classifyWriteError(err)
	}
	return status, deptID, nil
}

// applyStatusTx asks next for the target status and, when it differs from
// current, updates the issue and appends a history row. A nil decider keeps the
// current status.
func (s *assignmentsStore) applyStatusTx(ctx context.Context, tx *sql.Tx, issueID int64, current, trigger, notes, actor string, at time.Time, next StatusDecider) (string, error) {
	target := current
	if next != nil {
		var err error
		target, err = next(current)
		if err != nil {
			return "", err
		}
	}
	if target == current {
		return current, nil
	}
	res, err := tx.ExecContext(ctx, s.dialect.Rebind(`UPDATE issues SET status=?, updated_at=? WHERE id=?`), target, at, issueID)
	if err != nil {
		return "", classifyWriteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", notFound(ErrIssueNotFound, issueID)
	}
	if err := insertStatusChangeTx(ctx, tx, s.dialect, StatusChange{
		IssueID:    issueID,
		FromStatus: current,
		ToStatus:   target,
		Trigger:    trigger,
		Notes:      notes,
		ChangedBy:  actor,
		ChangedAt:  at,
	}); err != nil {
		return "", err
	}
	return target, nil
}
