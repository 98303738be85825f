package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	NextOrderCode(ctx context.Context, db *gorm.DB) (int64, error)
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByOrderCode(ctx context.Context, db *gorm.DB, orderCode int64) (*Payment, error)
	FindByPaymentLinkID(ctx context.Context, db *gorm.DB, paymentLinkID string) (*Payment, error)
	FindPendingByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Payment, error)
	// ListStalePending returns order codes of pending payments created at or before cutoff, oldest first.
	ListStalePending(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]int64, error)
	// InsertSettlementEvent reports false when the idempotency key was seen before.
	InsertSettlementEvent(ctx context.Context, db *gorm.DB, event *SettlementEvent) (bool, error)
	ListSettlementEvents(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]SettlementEvent, error)
	// ApplyTransition reports false when the payment is no longer pending.
	ApplyTransition(ctx context.Context, db *gorm.DB, update TransitionUpdate) (bool, error)
}
