package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

const pgForeignKeyViolation = "23503"

// classify wraps err with operation context and maps connection faults and
// foreign key violations to domain kinds.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectionFault(err) {
		return domain.WrapError(domain.ErrConnection, operation, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return domain.WrapError(domain.ErrReferentialViolation, operation, err)
	}
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return domain.WrapError(domain.ErrReferentialViolation, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func isConnectionFault(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P: operator intervention (shutdown).
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
