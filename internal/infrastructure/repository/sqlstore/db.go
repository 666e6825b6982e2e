package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func ParseDialect(raw string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(raw))) {
	case DialectPostgres, "pgx", "postgresql":
		return DialectPostgres, nil
	case DialectSQLite, "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", raw)
	}
}

func (d Dialect) driverName() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "pgx"
}

// rebind rewrites $N placeholders to ? for SQLite. Queries must use each
// placeholder once and in ascending order.
func (d Dialect) rebind(query string) string {
	if d != DialectSQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "$from,$from+1,...".
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ",")
}

// OpenDB opens and pings a database for the given dialect.
func OpenDB(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}

	switch dialect {
	case DialectSQLite:
		// SQLite serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, classify("configure sqlite", err)
			}
		}
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify("db ping", err)
	}
	return db, nil
}
