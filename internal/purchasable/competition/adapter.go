package competition

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysettle/internal/clock"
	"github.com/smallbiznis/paysettle/internal/purchasable/domain"
	"gorm.io/gorm"
)

const (
	PayingStatusUnpaid    = "unpaid"
	PayingStatusPaid      = "paid"
	PayingStatusCancelled = "cancelled"
)

// Competition is the entry-fee bearing aggregate owned by the competitions service.
type Competition struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Name         string
	EntryFee     int64
	PayingStatus string
	PaidAt       *time.Time
	UpdatedAt    time.Time
}

func (Competition) TableName() string { return "competitions" }

type Adapter struct {
	db    *gorm.DB
	clock clock.Clock
}

func New(db *gorm.DB, clk clock.Clock) *Adapter {
	return &Adapter{db: db, clock: clk}
}

func (a *Adapter) Kind() domain.Kind { return domain.KindCompetition }

func (a *Adapter) Resolve(ctx context.Context, id snowflake.ID) (*domain.Item, error) {
	var row Competition
	err := a.db.WithContext(ctx).Raw(
		`SELECT id, name, entry_fee, paying_status, paid_at, updated_at
		 FROM competitions
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, domain.ErrItemNotFound
	}
	return &domain.Item{
		Kind:  domain.KindCompetition,
		ID:    row.ID,
		Name:  row.Name,
		Price: row.EntryFee,
	}, nil
}

// MarkPaid is idempotent: repeating it on a paid competition keeps the first paid_at.
func (a *Adapter) MarkPaid(ctx context.Context, id snowflake.ID) error {
	now := a.clock.Now()
	res := a.db.WithContext(ctx).Exec(
		`UPDATE competitions
		 SET paying_status = ?, paid_at = COALESCE(paid_at, ?), updated_at = ?
		 WHERE id = ?`,
		PayingStatusPaid,
		now,
		now,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// MarkCancelled never downgrades a competition that is already paid.
func (a *Adapter) MarkCancelled(ctx context.Context, id snowflake.ID) error {
	return a.db.WithContext(ctx).Exec(
		`UPDATE competitions
		 SET paying_status = ?, updated_at = ?
		 WHERE id = ? AND paying_status <> ?`,
		PayingStatusCancelled,
		a.clock.Now(),
		id,
		PayingStatusPaid,
	).Error
}
