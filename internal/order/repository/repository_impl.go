package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysettle/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LatestOrderNumber(ctx context.Context, db *gorm.DB, prefix string) (string, error) {
	var number string
	err := db.WithContext(ctx).Raw(
		`SELECT order_number
		 FROM orders
		 WHERE order_number LIKE ?
		 ORDER BY order_number DESC
		 LIMIT 1`,
		prefix+"%",
	).Scan(&number).Error
	if err != nil {
		return "", err
	}
	return number, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO orders (id, order_number, buyer_id, total_amount, currency, status, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OrderNumber,
		order.BuyerID,
		order.TotalAmount,
		order.Currency,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
		order.CompletedAt,
	).Error
	if err != nil {
		return err
	}

	for _, line := range order.Lines {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO order_lines (id, order_id, item_kind, item_id, description, quantity, unit_price, discount, final_price, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			order.ID,
			line.ItemKind,
			line.ItemID,
			line.Description,
			line.Quantity,
			line.UnitPrice,
			line.Discount,
			line.FinalPrice,
			line.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_number, buyer_id, total_amount, currency, status, created_at, updated_at, completed_at
		 FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderLine, error) {
	var lines []domain.OrderLine
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, item_kind, item_id, description, quantity, unit_price, discount, final_price, created_at
		 FROM order_lines
		 WHERE order_id = ?
		 ORDER BY id ASC`,
		orderID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.OrderStatus, from []domain.OrderStatus, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	var completedAt *time.Time
	if status == domain.StatusCompleted {
		completedAt = &at
	}

	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, updated_at = ?, completed_at = COALESCE(?, completed_at)
		 WHERE id = ? AND status IN ?`,
		status,
		at,
		completedAt,
		id,
		allowed,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
