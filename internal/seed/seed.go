package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	defaultBuyerName       = "Demo Buyer"
	defaultBuyerEmail      = "buyer@paysettle.local"
	defaultCompetitionName = "Demo Open"
	defaultEntryFee        = 150000
)

// DemoData identifies the rows a local checkout can be started with.
type DemoData struct {
	BuyerID       snowflake.ID
	CompetitionID snowflake.ID
	EntryFee      int64
}

// EnsureDemoData seeds one buyer and one unpaid competition for local
// development. Running it again returns the rows created the first time.
func EnsureDemoData(ctx context.Context, db *gorm.DB, node *snowflake.Node) (DemoData, error) {
	if db == nil || node == nil {
		return DemoData{}, errors.New("seed database handle and id node are required")
	}

	var data DemoData
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		buyerID, err := ensureBuyerTx(ctx, tx, node)
		if err != nil {
			return err
		}
		competitionID, fee, err := ensureCompetitionTx(ctx, tx, node)
		if err != nil {
			return err
		}
		data = DemoData{BuyerID: buyerID, CompetitionID: competitionID, EntryFee: fee}
		return nil
	})
	return data, err
}

func ensureBuyerTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (snowflake.ID, error) {
	var id int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT id FROM users WHERE email = ? LIMIT 1`,
		defaultBuyerEmail,
	).Scan(&id).Error; err != nil {
		return 0, err
	}
	if id != 0 {
		return snowflake.ID(id), nil
	}

	newID := node.Generate()
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO users (id, name, email) VALUES (?, ?, ?)`,
		newID, defaultBuyerName, defaultBuyerEmail,
	).Error; err != nil {
		return 0, err
	}
	return newID, nil
}

func ensureCompetitionTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (snowflake.ID, int64, error) {
	var row struct {
		ID       int64
		EntryFee int64
	}
	if err := tx.WithContext(ctx).Raw(
		`SELECT id, entry_fee FROM competitions WHERE name = ? LIMIT 1`,
		defaultCompetitionName,
	).Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	if row.ID != 0 {
		return snowflake.ID(row.ID), row.EntryFee, nil
	}

	newID := node.Generate()
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO competitions (id, name, entry_fee, paying_status) VALUES (?, ?, ?, 'unpaid')`,
		newID, defaultCompetitionName, defaultEntryFee,
	).Error; err != nil {
		return 0, 0, err
	}
	return newID, defaultEntryFee, nil
}
