package domain

import (
	"context"
	"errors"
)

type CreateOrderLine struct {
	ItemKind string `json:"item_kind" binding:"required"`
	ItemID   string `json:"item_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
	Discount int64  `json:"discount" binding:"min=0"`
}

type CreateOrderRequest struct {
	BuyerID  string            `json:"buyer_id" binding:"required"`
	Currency string            `json:"currency"`
	Lines    []CreateOrderLine `json:"lines" binding:"required,min=1,dive"`
}

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidBuyer         = errors.New("invalid_buyer")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidLines         = errors.New("invalid_lines")
	ErrInvalidItem          = errors.New("invalid_item")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInvalidDiscount      = errors.New("invalid_discount")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderNumberExhausted = errors.New("order_number_exhausted")
	ErrOrderNumberConflict  = errors.New("order_number_conflict")
)
