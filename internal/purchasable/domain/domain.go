package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Kind names the aggregate an order line refers to.
type Kind string

const (
	KindCompetition Kind = "competition"
)

var (
	ErrUnknownKind  = errors.New("unknown_item_kind")
	ErrItemNotFound = errors.New("item_not_found")
)

func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if kind == "" {
		return "", ErrUnknownKind
	}
	return kind, nil
}

// Item is a resolved purchasable with its current price in the smallest currency unit.
type Item struct {
	Kind  Kind
	ID    snowflake.ID
	Name  string
	Price int64
}

// Adapter settles one kind of purchasable aggregate.
type Adapter interface {
	Kind() Kind
	Resolve(ctx context.Context, id snowflake.ID) (*Item, error)
	MarkPaid(ctx context.Context, id snowflake.ID) error
	MarkCancelled(ctx context.Context, id snowflake.ID) error
}
