package migration

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func TestApplySchemaIsRepeatable(t *testing.T) {
	dsn := fmt.Sprintf("file:migration_%d?mode=memory&cache=shared", dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	if err := ApplySchema(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if err := ApplySchema(conn); err != nil {
		t.Fatalf("re-apply schema: %v", err)
	}

	for _, table := range []string{"users", "competitions", "orders", "order_lines", "payments", "payment_settlement_events"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}

func TestPendingPaymentIndexAllowsOnePerOrder(t *testing.T) {
	dsn := fmt.Sprintf("file:migration_%d?mode=memory&cache=shared", dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := ApplySchema(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	insert := `INSERT INTO payments (id, order_id, order_code, amount, status, method, expires_at, created_at, updated_at)
		VALUES (?, 1, ?, 1000, ?, 'gateway', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	if err := conn.Exec(insert, 1, 100001, "expired").Error; err != nil {
		t.Fatalf("insert expired: %v", err)
	}
	if err := conn.Exec(insert, 2, 100002, "pending").Error; err != nil {
		t.Fatalf("insert pending: %v", err)
	}
	if err := conn.Exec(insert, 3, 100003, "pending").Error; err == nil {
		t.Fatalf("expected second pending payment for the order to be rejected")
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (id INT);\n\n CREATE INDEX b ON a (id);\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(got))
	}
}
