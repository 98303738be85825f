package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	purchasabledomain "github.com/smallbiznis/paysettle/internal/purchasable/domain"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

// OpenStatuses are the states a payment result may still move an order out of.
var OpenStatuses = []OrderStatus{StatusPending, StatusConfirmed, StatusProcessing}

func (s OrderStatus) IsOpen() bool {
	for _, open := range OpenStatuses {
		if s == open {
			return true
		}
	}
	return false
}

type Order struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderNumber string       `gorm:"not null;uniqueIndex" json:"order_number"`
	BuyerID     snowflake.ID `gorm:"not null;index" json:"buyer_id"`
	TotalAmount int64        `gorm:"not null" json:"total_amount"`
	Currency    string       `gorm:"not null" json:"currency"`
	Status      OrderStatus  `gorm:"not null" json:"status"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Lines       []OrderLine  `gorm:"-" json:"lines"`
}

func (Order) TableName() string { return "orders" }

type OrderLine struct {
	ID          snowflake.ID           `gorm:"primaryKey" json:"id"`
	OrderID     snowflake.ID           `gorm:"not null;index" json:"order_id"`
	ItemKind    purchasabledomain.Kind `gorm:"not null" json:"item_kind"`
	ItemID      snowflake.ID           `gorm:"not null" json:"item_id"`
	Description string                 `gorm:"not null" json:"description"`
	Quantity    int                    `gorm:"not null" json:"quantity"`
	UnitPrice   int64                  `gorm:"not null" json:"unit_price"`
	Discount    int64                  `gorm:"not null" json:"discount"`
	FinalPrice  int64                  `gorm:"not null" json:"final_price"`
	CreatedAt   time.Time              `gorm:"not null" json:"created_at"`
}

func (OrderLine) TableName() string { return "order_lines" }
