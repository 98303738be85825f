package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// uniqueViolationMarkers are the driver messages each supported dialect uses
// for a unique constraint violation, for drivers that do not surface a typed
// error through gorm.
var uniqueViolationMarkers = map[string]string{
	TypePostgres: "duplicate key value violates unique constraint",
	TypeMySQL:    "Error 1062",
	TypeSQLite:   "UNIQUE constraint failed",
}

const pgUniqueViolation = "23505"

// IsDuplicateKeyErr reports whether err is a unique constraint violation on
// any supported dialect. Callers use it to turn a lost insert race into a
// retry or a replay.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	msg := err.Error()
	for _, marker := range uniqueViolationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
