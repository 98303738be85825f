package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysettle/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const paymentColumns = `id, order_id, order_code, payment_link_id, amount, fee, net_amount, status, method,
	external_transaction_id, checkout_url, qr_code, deep_link, expires_at, paid_at,
	last_event_fingerprint, raw_last_payload, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) NextOrderCode(ctx context.Context, db *gorm.DB) (int64, error) {
	var code int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(order_code), ?) + 1 FROM payments`,
		domain.FirstOrderCode-1,
	).Scan(&code).Error
	if err != nil {
		return 0, err
	}
	if code < domain.FirstOrderCode {
		code = domain.FirstOrderCode
	}
	return code, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.OrderID,
		payment.OrderCode,
		payment.PaymentLinkID,
		payment.Amount,
		payment.Fee,
		payment.NetAmount,
		payment.Status,
		payment.Method,
		payment.ExternalTransactionID,
		payment.CheckoutURL,
		payment.QRCode,
		payment.DeepLink,
		payment.ExpiresAt,
		payment.PaidAt,
		payment.LastEventFingerprint,
		jsonOrEmpty(payment.RawLastPayload),
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByOrderCode(ctx context.Context, db *gorm.DB, orderCode int64) (*domain.Payment, error) {
	return r.findOne(ctx, db, `order_code = ?`, orderCode)
}

func (r *repo) FindByPaymentLinkID(ctx context.Context, db *gorm.DB, paymentLinkID string) (*domain.Payment, error) {
	return r.findOne(ctx, db, `payment_link_id = ?`, paymentLinkID)
}

func (r *repo) FindPendingByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, db, `order_id = ? AND status = 'pending'`, orderID)
}

func (r *repo) ListStalePending(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 50
	}
	var codes []int64
	err := db.WithContext(ctx).Raw(
		`SELECT order_code
		 FROM payments
		 WHERE status = 'pending' AND created_at <= ?
		 ORDER BY created_at ASC, order_code ASC
		 LIMIT ?`,
		cutoff.UTC(), limit,
	).Scan(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE `+where+`
		 LIMIT 1`,
		args...,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) InsertSettlementEvent(ctx context.Context, db *gorm.DB, event *domain.SettlementEvent) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_settlement_events (id, payment_id, idempotency_key, source, status, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		event.ID,
		event.PaymentID,
		event.IdempotencyKey,
		event.Source,
		event.Status,
		jsonOrEmpty(event.Payload),
		event.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListSettlementEvents(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.SettlementEvent, error) {
	var events []domain.SettlementEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, idempotency_key, source, status, payload, received_at
		 FROM payment_settlement_events
		 WHERE payment_id = ?
		 ORDER BY received_at ASC, id ASC`,
		paymentID,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) ApplyTransition(ctx context.Context, db *gorm.DB, update domain.TransitionUpdate) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
			last_event_fingerprint = ?,
			raw_last_payload = ?,
			updated_at = ?,
			paid_at = COALESCE(?, paid_at),
			external_transaction_id = COALESCE(?, external_transaction_id),
			amount = COALESCE(?, amount),
			fee = COALESCE(?, fee),
			net_amount = COALESCE(?, net_amount)
		 WHERE id = ?
			AND status = 'pending'
			AND (last_event_fingerprint IS NULL OR last_event_fingerprint <> ?)`,
		update.Status,
		update.Fingerprint,
		jsonOrEmpty(update.Payload),
		update.At,
		update.PaidAt,
		update.ExternalTransactionID,
		update.Amount,
		update.Fee,
		update.NetAmount,
		update.PaymentID,
		update.Fingerprint,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func jsonOrEmpty(value datatypes.JSON) datatypes.JSON {
	if len(value) == 0 {
		return datatypes.JSON("{}")
	}
	return value
}
