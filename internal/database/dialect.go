package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// dialect captures the differences between the supported SQL backends.
type dialect struct {
	driver        string
	moneyType     string
	timestampType string
	// lockClause is appended to SELECTs that must hold a row lock. SQLite has
	// no row locks: transactions there begin IMMEDIATE and serialize writers.
	lockClause   string
	placeholders bool
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return dialect{
			driver:        DriverSQLite,
			moneyType:     "TEXT",
			timestampType: "TIMESTAMP",
		}, nil
	case DriverPostgres:
		return dialect{
			driver:        DriverPostgres,
			moneyType:     "NUMERIC(38,18)",
			timestampType: "TIMESTAMPTZ",
			lockClause:    " FOR UPDATE",
			placeholders:  true,
		}, nil
	}
	return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (d dialect) rebind(query string) string {
	if !d.placeholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// locking appends the row lock clause to a SELECT.
func (d dialect) locking(query string) string {
	return query + d.lockClause
}

// isUniqueViolation reports whether err is a unique constraint failure on
// either backend.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
