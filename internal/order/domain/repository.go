package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// LatestOrderNumber returns the highest order number starting with prefix, or "".
	LatestOrderNumber(ctx context.Context, db *gorm.DB, prefix string) (string, error)
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListLines(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderLine, error)
	// UpdateStatus moves the order to status only while it is in one of from.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status OrderStatus, from []OrderStatus, at time.Time) (bool, error)
}
