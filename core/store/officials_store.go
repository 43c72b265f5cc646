package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type OfficialsStore interface {
	CreateOfficial(ctx context.Context, o *Official) (int64, error)
	GetOfficial(ctx context.Context, id int64) (*Official, error)
	// Roster lists every official of a department with their current
	// workload, ordered by id.
	Roster(ctx context.Context, departmentID int64) ([]Candidate, error)
	WorkloadOf(ctx context.Context, officialID int64) (int, error)
}

type officialsStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewOfficialsStore(db *sql.DB) OfficialsStore {
	return &officialsStore{db: db, dialect: DialectOf(db)}
}

func (s *officialsStore) CreateOfficial(ctx context.Context, o *Official) (int64, error) {
	o.DisplayName = strings.TrimSpace(o.DisplayName)
	o.Email = strings.TrimSpace(o.Email)
	o.Region = strings.TrimSpace(o.Region)
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		INSERT INTO officials(display_name, email, department_id, region, created_at)
		VALUES(?,?,?,?,?) RETURNING id`),
		o.DisplayName, o.Email, o.DepartmentID, o.Region, now).Scan(&id)
	if err != nil {
		return 0, classifyWriteError(err)
	}
	o.ID = id
	o.CreatedAt = now
	return id, nil
}

func (s *officialsStore) GetOfficial(ctx context.Context, id int64) (*Official, error) {
	var o Official
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT id, display_name, email, department_id, region, created_at FROM officials WHERE id=?`), id).
		Scan(&o.ID, &o.DisplayName, &o.Email, &o.DepartmentID, &o.Region, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(ErrOfficialNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *officialsStore) Roster(ctx context.Context, departmentID int64) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT o.id, o.display_name, o.email, o.department_id, o.region, o.created_at, COUNT(i.id)
		FROM officials o
		LEFT JOIN assignments a ON a.assignee_id=o.id
		LEFT JOIN issues i ON i.id=a.issue_id AND i.status <> 'closed'
		WHERE o.department_id=?
		GROUP BY o.id, o.display_name, o.email, o.department_id, o.region, o.created_at
		ORDER BY o.id`), departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.Email, &c.DepartmentID, &c.Region, &c.CreatedAt, &c.Workload); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *officialsStore) WorkloadOf(ctx context.Context, officialID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT COUNT(*) FROM assignments a
		JOIN issues i ON i.id=a.issue_id
		WHERE a.assignee_id=? AND i.status <> 'closed'`), officialID).Scan(&n)
	return n, err
}
