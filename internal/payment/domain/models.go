package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the local lifecycle state of a payment attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

const MethodGateway = "gateway"

// FirstOrderCode is the lowest correlation code handed to the gateway.
const FirstOrderCode int64 = 100001

type Payment struct {
	ID                    snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrderID               snowflake.ID   `gorm:"not null" json:"order_id"`
	OrderCode             int64          `gorm:"not null;uniqueIndex" json:"order_code"`
	PaymentLinkID         *string        `json:"payment_link_id,omitempty"`
	Amount                int64          `gorm:"not null" json:"amount"`
	Fee                   int64          `gorm:"not null" json:"fee"`
	NetAmount             int64          `gorm:"not null" json:"net_amount"`
	Status                Status         `gorm:"not null" json:"status"`
	Method                string         `gorm:"not null" json:"method"`
	ExternalTransactionID *string        `json:"external_transaction_id,omitempty"`
	CheckoutURL           string         `json:"checkout_url"`
	QRCode                string         `json:"qr_code"`
	DeepLink              string         `json:"deep_link"`
	ExpiresAt             time.Time      `gorm:"not null" json:"expires_at"`
	PaidAt                *time.Time     `json:"paid_at,omitempty"`
	LastEventFingerprint  *string        `json:"-"`
	RawLastPayload        datatypes.JSON `json:"-"`
	CreatedAt             time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// SettlementEvent records one applied or acknowledged gateway result.
// IdempotencyKey is unique across all payments.
type SettlementEvent struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	PaymentID      snowflake.ID   `gorm:"not null;index" json:"payment_id"`
	IdempotencyKey string         `gorm:"not null;uniqueIndex" json:"idempotency_key"`
	Source         Source         `gorm:"not null" json:"source"`
	Status         string         `gorm:"not null" json:"status"`
	Payload        datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	ReceivedAt     time.Time      `gorm:"not null" json:"received_at"`
}

func (SettlementEvent) TableName() string { return "payment_settlement_events" }

// TransitionUpdate is the conditional write applied to a pending payment.
type TransitionUpdate struct {
	PaymentID             snowflake.ID
	Status                Status
	Fingerprint           string
	Payload               datatypes.JSON
	At                    time.Time
	PaidAt                *time.Time
	ExternalTransactionID *string
	Amount                *int64
	Fee                   *int64
	NetAmount             *int64
}
