package domain

import (
	"context"

	"github.com/smallbiznis/paysettle/internal/gateway"
)

// Gateway is the part of the gateway client the settlement engine drives.
type Gateway interface {
	RequestCheckoutLink(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutLink, error)
	GetPaymentInfo(ctx context.Context, orderCode int64) (*gateway.PaymentInfo, error)
	VerifyCallback(payload []byte, signature string) error
}
