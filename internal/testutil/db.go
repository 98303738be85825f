// Package testutil opens throwaway sqlite databases carrying the service schema.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/paysettle/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// OpenDB returns an isolated in-memory database with all migrations applied.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := migration.ApplySchema(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// SeedUser inserts a buyer row.
func SeedUser(t testing.TB, conn *gorm.DB, id int64, name, email string) {
	t.Helper()
	if err := conn.Exec(`INSERT INTO users (id, name, email) VALUES (?, ?, ?)`, id, name, email).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// SeedCompetition inserts an unpaid competition with the given entry fee.
func SeedCompetition(t testing.TB, conn *gorm.DB, id int64, name string, fee int64) {
	t.Helper()
	if err := conn.Exec(
		`INSERT INTO competitions (id, name, entry_fee, paying_status) VALUES (?, ?, ?, 'unpaid')`,
		id, name, fee,
	).Error; err != nil {
		t.Fatalf("seed competition: %v", err)
	}
}

// CompetitionStatus reads the paying status of a competition.
func CompetitionStatus(t testing.TB, conn *gorm.DB, id int64) string {
	t.Helper()
	var status string
	if err := conn.Raw(`SELECT paying_status FROM competitions WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("read competition: %v", err)
	}
	return status
}
