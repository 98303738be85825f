package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var ErrBuyerNotFound = errors.New("buyer_not_found")

type Buyer struct {
	ID    snowflake.ID `json:"id"`
	Name  string       `json:"name"`
	Email string       `json:"email"`
}

// Resolver looks up buyers owned by the user service.
type Resolver interface {
	Resolve(ctx context.Context, id snowflake.ID) (*Buyer, error)
}
