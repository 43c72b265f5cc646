package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type DepartmentsStore interface {
	CreateDepartment(ctx context.Context, d *Department) (int64, error)
	GetDepartment(ctx context.Context, id int64) (*Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	AddCategory(ctx context.Context, departmentID int64, category string) error
	RemoveCategory(ctx context.Context, departmentID int64, category string) (bool, error)
	ListCategories(ctx context.Context, departmentID int64) ([]string, error)
}

type departmentsStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewDepartmentsStore(db *sql.DB) DepartmentsStore {
	return &departmentsStore{db: db, dialect: DialectOf(db)}
}

func (s *departmentsStore) CreateDepartment(ctx context.Context, d *Department) (int64, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		INSERT INTO departments(name, description, created_at) VALUES(?,?,?) RETURNING id`),
		d.Name, d.Description, now).Scan(&id)
	if err != nil {
		return 0, classifyWriteError(err)
	}
	d.ID = id
	d.CreatedAt = now
	return id, nil
}

func (s *departmentsStore) GetDepartment(ctx context.Context, id int64) (*Department, error) {
	var d Department
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT id, name, description, created_at FROM departments WHERE id=?`), id).
		Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(ErrDepartmentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDepartments returns every department ordered by name together with its
// official, assignment and issue counters.
func (s *departmentsStore) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.name, d.description, d.created_at,
			(SELECT COUNT(*) FROM officials o WHERE o.department_id=d.id),
			(SELECT COUNT(*) FROM assignments a WHERE a.department_id=d.id),
			(SELECT COUNT(*) FROM issues i WHERE i.department_id=d.id)
		FROM departments d
		ORDER BY d.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt, &d.OfficialsCount, &d.AssignmentsCount, &d.IssuesCount); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// AddCategory routes reports tagged with category to the department. Adding a
// category the department already owns is a no-op; a category owned by another
// department is a conflict.
func (s *departmentsStore) AddCategory(ctx context.Context, departmentID int64, category string) error {
	category = normalizeCategory(category)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyWriteError(err)
	}
	var id int64
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT id FROM departments WHERE id=?`), departmentID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return notFound(ErrDepartmentNotFound, departmentID)
	}
	if err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO department_categories(department_id, category, created_at) VALUES(?,?,?)
		ON CONFLICT(category) DO NOTHING`), departmentID, category, time.Now().UTC()); err != nil {
		tx.Rollback()
		return classifyWriteError(err)
	}
	var owner int64
	err = tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT department_id FROM department_categories WHERE category=?`), category).Scan(&owner)
	if err != nil {
		tx.Rollback()
		return classifyWriteError(err)
	}
	if owner != departmentID {
		tx.Rollback()
		return fmt.Errorf("category %q is routed to department %d: %w", category, owner, ErrConflict)
	}
	if err := tx.Commit(); err != nil {
		return classifyWriteError(err)
	}
	return nil
}

func (s *departmentsStore) RemoveCategory(ctx context.Context, departmentID int64, category string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM department_categories WHERE department_id=? AND category=?`),
		departmentID, normalizeCategory(category))
	if err != nil {
		return false, classifyWriteError(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *departmentsStore) ListCategories(ctx context.Context, departmentID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT category FROM department_categories WHERE department_id=? ORDER BY category`), departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// routeByTagsTx returns the department owning the first tag that has a
// category route, or nil when none does.
func routeByTagsTx(ctx context.Context, tx *sql.Tx, dialect Dialect, tags []string) (*int64, string, error) {
	for _, tag := range tags {
		var deptID int64
		err := tx.QueryRowContext(ctx, dialect.Rebind(`SELECT department_id FROM department_categories WHERE category=?`), tag).Scan(&deptID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return &deptID, tag, nil
	}
	return nil, "", nil
}
