package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	purchasabledomain "github.com/smallbiznis/paysettle/internal/purchasable/domain"
)

type CheckoutRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type CheckoutResult struct {
	OrderID       snowflake.ID `json:"order_id"`
	OrderCode     int64        `json:"order_code"`
	PaymentLinkID string       `json:"payment_link_id"`
	CheckoutURL   string       `json:"checkout_url"`
	QRCode        string       `json:"qr_code"`
	DeepLink      string       `json:"deep_link"`
	Amount        int64        `json:"amount"`
	ExpiresAt     time.Time    `json:"expires_at"`
	Reused        bool         `json:"reused"`
	Mock          bool         `json:"mock"`
}

// RedirectRequest holds the query parameters of a browser return or cancel redirect.
type RedirectRequest struct {
	Code      string `form:"code"`
	ID        string `form:"id"`
	Status    string `form:"status"`
	OrderCode string `form:"orderCode"`
	Cancel    string `form:"cancel"`
}

type Outcome string

const (
	// OutcomeApplied means the payment moved out of pending.
	OutcomeApplied Outcome = "applied"
	// OutcomeReplayed means the same result was applied before.
	OutcomeReplayed Outcome = "replayed"
	// OutcomeNoop means the payment was already terminal.
	OutcomeNoop Outcome = "noop"
	// OutcomeIgnored means nothing actionable was delivered.
	OutcomeIgnored Outcome = "ignored"
)

type SettlementResult struct {
	Outcome        Outcome      `json:"outcome"`
	PaymentID      snowflake.ID `json:"payment_id,omitempty"`
	OrderID        snowflake.ID `json:"order_id,omitempty"`
	OrderCode      int64        `json:"order_code,omitempty"`
	PreviousStatus Status       `json:"previous_status,omitempty"`
	Status         Status       `json:"status,omitempty"`
	Amount         int64        `json:"amount,omitempty"`
	// DependentSyncErr is set when the dependent aggregate could not be updated.
	DependentSyncErr error `json:"-"`
}

type ResyncResult struct {
	OrderCode      int64  `json:"order_code"`
	PreviousStatus Status `json:"previous_status"`
	NewStatus      Status `json:"new_status"`
}

type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*SettlementResult, error)
	HandleRedirect(ctx context.Context, req RedirectRequest, cancelled bool) (*SettlementResult, error)
	Resync(ctx context.Context, orderCode int64) (*ResyncResult, error)
	GetByOrderCode(ctx context.Context, orderCode int64) (*Payment, error)
	// ListEvents returns the settlement log of a payment, oldest first.
	ListEvents(ctx context.Context, orderCode int64) ([]SettlementEvent, error)
}

var (
	ErrInvalidPayload         = errors.New("invalid_payload")
	ErrInvalidOrderCode       = errors.New("invalid_order_code")
	ErrMissingCorrelationCode = errors.New("missing_order_code")
	ErrInvalidSignature       = errors.New("invalid_signature")
	ErrPaymentNotFound        = errors.New("payment_not_found")
	ErrOrderAlreadyPaid       = errors.New("order_already_paid")
	ErrOrderNotPayable        = errors.New("order_not_payable")
	ErrResyncInProgress       = errors.New("resync_in_progress")
	ErrOrderCodeConflict      = errors.New("order_code_conflict")
)

// DependentAggregateSyncError reports a settled payment whose purchased item
// could not be updated. It is logged and never fails the settlement.
type DependentAggregateSyncError struct {
	Kind   purchasabledomain.Kind
	ItemID snowflake.ID
	Status Status
	Err    error
}

func (e *DependentAggregateSyncError) Error() string {
	return fmt.Sprintf("sync %s %s to %s: %v", e.Kind, e.ItemID, e.Status, e.Err)
}

func (e *DependentAggregateSyncError) Unwrap() error { return e.Err }
