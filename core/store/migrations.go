package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"civic-dispatch/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed pgmigrations/*.sql
var pgMigrations embed.FS

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS departments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS officials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		display_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		department_id INTEGER NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(department_id) REFERENCES departments(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','under_progress','under_review','closed')),
		flagged INTEGER NOT NULL DEFAULT 0,
		department_id INTEGER,
		latitude REAL,
		longitude REAL,
		reporter_email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY(department_id) REFERENCES departments(id) ON DELETE SET NULL
	);`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		issue_id INTEGER NOT NULL UNIQUE,
		assignee_id INTEGER NOT NULL,
		department_id INTEGER NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		assigned_at TIMESTAMP NOT NULL,
		FOREIGN KEY(issue_id) REFERENCES issues(id) ON DELETE CASCADE,
		FOREIGN KEY(assignee_id) REFERENCES officials(id) ON DELETE CASCADE,
		FOREIGN KEY(department_id) REFERENCES departments(id)
	);`,
	`CREATE TABLE IF NOT EXISTS status_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		issue_id INTEGER NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		changed_by TEXT NOT NULL DEFAULT '',
		changed_at TIMESTAMP NOT NULL,
		FOREIGN KEY(issue_id) REFERENCES issues(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT,
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS department_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		department_id INTEGER NOT NULL,
		category TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(department_id) REFERENCES departments(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_officials_department ON officials(department_id);`,
	`CREATE INDEX IF NOT EXISTS idx_department_categories_department ON department_categories(department_id);`,
	`CREATE INDEX IF NOT EXISTS idx_issues_department ON issues(department_id);`,
	`CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_assignee ON assignments(assignee_id);`,
	`CREATE INDEX IF NOT EXISTS idx_status_history_issue ON status_history(issue_id, changed_at);`,
}

func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if DialectOf(db) == DialectPostgres {
		return applyGooseMigrations(ctx, db, logger)
	}
	return applySQLiteMigrations(ctx, db, logger)
}

func applySQLiteMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if logger != nil {
		logger.Printf("applying sqlite migrations")
	}
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	if logger != nil {
		logger.Printf("sqlite migrations applied")
	}
	return nil
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	goose.SetBaseFS(pgMigrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.UpContext(ctx, db, "pgmigrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err == nil && logger != nil {
		logger.Printf("postgres schema at goose version %d", version)
	}
	return nil
}

type gooseLogger struct {
	logger *utils.Logger
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.logger.Errorf(format, v...)
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.logger.Debugf(format, v...)
}
