package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"civic-dispatch/config"
	"civic-dispatch/core/utils"

	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// NewDB opens the configured database. SQLite connections are pinned to a
// single connection so writers serialize instead of failing with SQLITE_BUSY.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBDriver)) {
	case "postgres", "pgx":
		db, err := sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
		if err := ping(db); err != nil {
			db.Close()
			return nil, err
		}
		if logger != nil {
			logger.Printf("connected to postgres")
		}
		return db, nil
	case "sqlite":
		db, err := sql.Open("sqlite", sqliteDSN(cfg.DBURL))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		if err := ping(db); err != nil {
			db.Close()
			return nil, err
		}
		if logger != nil {
			logger.Printf("connected to sqlite %s", cfg.DBURL)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func sqliteDSN(raw string) string {
	dsn := strings.TrimSpace(raw)
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func DialectOf(db *sql.DB) Dialect {
	if db == nil {
		return DialectSQLite
	}
	if _, ok := db.Driver().(*stdlib.Driver); ok {
		return DialectPostgres
	}
	return DialectSQLite
}

// Rebind rewrites ? placeholders into the $n form postgres expects.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	inQuote := false
	for _, ch := range query {
		if ch == '\'' {
			inQuote = !inQuote
		}
		if ch == '?' && !inQuote {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

// lockRow is appended to single-row reads inside a transaction that is about
// to mutate the row. SQLite runs on a single pinned connection, so its
// transactions are already serialized.
func (d Dialect) lockRow() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}
