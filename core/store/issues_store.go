package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	defaultIssueListLimit = 50
	maxIssueListLimit     = 500
)

type IssuesStore interface {
	CreateIssue(ctx context.Context, issue *Issue, actor string) (int64, error)
	GetIssue(ctx context.Context, id int64) (*Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]Issue, error)
	SetFlag(ctx context.Context, id int64, flagged bool) error
	SetDepartment(ctx context.Context, issueID, departmentID int64) (*int64, error)
	ListStatusHistory(ctx context.Context, issueID int64) ([]StatusChange, error)
}

type issuesStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewIssuesStore(db *sql.DB) IssuesStore {
	return &issuesStore{db: db, dialect: DialectOf(db)}
}

// CreateIssue stores a new issue in the active state and records the creation
// in the status history. An issue filed without a department is routed by the
// first of its tags that has a department category.
func (s *issuesStore) CreateIssue(ctx context.Context, issue *Issue, actor string) (int64, error) {
	issue.Title = strings.TrimSpace(issue.Title)
	issue.Description = strings.TrimSpace(issue.Description)
	issue.Tags = normalizeTags(issue.Tags)
	issue.Status = StatusActive
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	var notes string
	if issue.DepartmentID == nil {
		deptID, category, err := routeByTagsTx(ctx, tx, s.dialect, issue.Tags)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		if deptID != nil {
			issue.DepartmentID = deptID
			notes = "routed by category " + category
		}
	}
	var id int64
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`
		INSERT INTO issues(title, description, tags, status, flagged, department_id, latitude, longitude, reporter_email, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?) RETURNING id`),
		issue.Title, issue.Description, tagsToJSON(issue.Tags), issue.Status, issue.Flagged,
		nullableID(issue.DepartmentID), nullableFloat(issue.Latitude), nullableFloat(issue.Longitude),
		strings.TrimSpace(issue.ReporterEmail), now, now).Scan(&id)
	if err != nil {
		tx.Rollback()
		return 0, classifyWriteError(err)
	}
	if err := insertStatusChangeTx(ctx, tx, s.dialect, StatusChange{
		IssueID:   id,
		ToStatus:  StatusActive,
		Trigger:   "create",
		Notes:     notes,
		ChangedBy: actor,
		ChangedAt: now,
	}); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, classifyWriteError(err)
	}
	issue.ID = id
	issue.CreatedAt = now
	issue.UpdatedAt = now
	return id, nil
}

const issueSelect = `
	SELECT i.id, i.title, i.description, i.tags, i.status, i.flagged, i.department_id,
		i.latitude, i.longitude, i.reporter_email, i.created_at, i.updated_at,
		a.assignee_id, o.display_name, a.notes, a.assigned_at
	FROM issues i
	LEFT JOIN assignments a ON a.issue_id=i.id
	LEFT JOIN officials o ON o.id=a.assignee_id`

func (s *issuesStore) GetIssue(ctx context.Context, id int64) (*Issue, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(issueSelect+` WHERE i.id=?`), id)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(ErrIssueNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *issuesStore) ListIssues(ctx context.Context, filter IssueFilter) ([]Issue, error) {
	var clauses []string
	var args []any
	if filter.DepartmentID > 0 {
		clauses = append(clauses, "i.department_id=?")
		args = append(args, filter.DepartmentID)
	}
	if st := strings.TrimSpace(filter.Status); st != "" {
		clauses = append(clauses, "i.status=?")
		args = append(args, st)
	}
	query := issueSelect
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultIssueListLimit
	}
	if limit > maxIssueListLimit {
		limit = maxIssueListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += " ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *issue)
	}
	return res, rows.Err()
}

func (s *issuesStore) SetFlag(ctx context.Context, id int64, flagged bool) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`UPDATE issues SET flagged=?, updated_at=? WHERE id=?`),
		flagged, time.Now().UTC(), id)
	if err != nil {
		return classifyWriteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(ErrIssueNotFound, id)
	}
	return nil
}

// SetDepartment routes an existing issue to a department and returns the
// department it had before. An existing assignment moves with the issue. The
// status is not touched.
func (s *issuesStore) SetDepartment(ctx context.Context, issueID, departmentID int64) (*int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyWriteError(err)
	}
	var previous sql.NullInt64
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT department_id FROM issues WHERE id=?`+s.dialect.lockRow()), issueID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return nil, notFound(ErrIssueNotFound, issueID)
	}
	if err != nil {
		tx.Rollback()
		return nil, classifyWriteError(err)
	}
	var id int64
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT id FROM departments WHERE id=?`), departmentID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return nil, notFound(ErrDepartmentNotFound, departmentID)
	}
	if err != nil {
		tx.Rollback()
		return nil, classifyWriteError(err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`UPDATE issues SET department_id=?, updated_at=? WHERE id=?`),
		departmentID, time.Now().UTC(), issueID); err != nil {
		tx.Rollback()
		return nil, classifyWriteError(err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`UPDATE assignments SET department_id=? WHERE issue_id=?`),
		departmentID, issueID); err != nil {
		tx.Rollback()
		return nil, classifyWriteError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classifyWriteError(err)
	}
	if !previous.Valid {
		return nil, nil
	}
	prev := previous.Int64
	return &prev, nil
}

func (s *issuesStore) ListStatusHistory(ctx context.Context, issueID int64) ([]StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT id, issue_id, from_status, to_status, trigger_kind, notes, changed_by, changed_at
		FROM status_history WHERE issue_id=? ORDER BY id`), issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []StatusChange
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.ID, &c.IssueID, &c.FromStatus, &c.ToStatus, &c.Trigger, &c.Notes, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*Issue, error) {
	var (
		issue      Issue
		tags       string
		deptID     sql.NullInt64
		lat, lon   sql.NullFloat64
		assigneeID sql.NullInt64
		assignee   sql.NullString
		notes      sql.NullString
		assignedAt sql.NullTime
	)
	if err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &tags, &issue.Status, &issue.Flagged, &deptID,
		&lat, &lon, &issue.ReporterEmail, &issue.CreatedAt, &issue.UpdatedAt,
		&assigneeID, &assignee, &notes, &assignedAt); err != nil {
		return nil, err
	}
	issue.Tags = tagsFromJSON(tags)
	issue.DepartmentID = int64Ptr(deptID)
	issue.Latitude = float64Ptr(lat)
	issue.Longitude = float64Ptr(lon)
	if assigneeID.Valid {
		issue.Assignment = &IssueAssignee{
			AssigneeID:   assigneeID.Int64,
			AssigneeName: assignee.String,
			Notes:        notes.String,
			AssignedAt:   assignedAt.Time,
		}
	}
	return &issue, nil
}

func insertStatusChangeTx(ctx context.Context, tx *sql.Tx, dialect Dialect, c StatusChange) error {
	_, err := tx.ExecContext(ctx, dialect.Rebind(`
		INSERT INTO status_history(issue_id, from_status, to_status, trigger_kind, notes, changed_by, changed_at)
		VALUES(?,?,?,?,?,?,?)`),
		c.IssueID, c.FromStatus, c.ToStatus, c.Trigger, c.Notes, c.ChangedBy, c.ChangedAt)
	return classifyWriteError(err)
}
