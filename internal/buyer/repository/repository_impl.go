package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysettle/internal/buyer/domain"
	"gorm.io/gorm"
)

type resolver struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Resolver {
	return &resolver{db: db}
}

func (r *resolver) Resolve(ctx context.Context, id snowflake.ID) (*domain.Buyer, error) {
	var buyer domain.Buyer
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, email
		 FROM users
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&buyer).Error
	if err != nil {
		return nil, err
	}
	if buyer.ID == 0 {
		return nil, domain.ErrBuyerNotFound
	}
	return &buyer, nil
}
