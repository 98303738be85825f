package repository

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/paysettle/internal/order/domain"
	orderrepo "github.com/smallbiznis/paysettle/internal/order/repository"
	"github.com/smallbiznis/paysettle/internal/payment/domain"
	"github.com/smallbiznis/paysettle/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func seedOrder(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := orderrepo.Provide().Insert(context.Background(), db, &orderdomain.Order{
		ID:          1,
		OrderNumber: "2024060100001",
		BuyerID:     10,
		TotalAmount: 50000,
		Currency:    "VND",
		Status:      orderdomain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)
}

func newPayment(id, code int64) *domain.Payment {
	link := "pl_" + strconv.FormatInt(code, 10)
	return &domain.Payment{
		ID:            snowflake.ID(id),
		OrderID:       1,
		OrderCode:     code,
		PaymentLinkID: &link,
		Amount:        50000,
		NetAmount:     50000,
		Status:        domain.StatusPending,
		Method:        domain.MethodGateway,
		ExpiresAt:     now.Add(15 * time.Minute),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestNextOrderCodeStartsAtFirstCode(t *testing.T) {
	db := testutil.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	seedOrder(t, db)

	code, err := r.NextOrderCode(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, domain.FirstOrderCode, code)

	require.NoError(t, r.Insert(ctx, db, newPayment(1, code)))

	next, err := r.NextOrderCode(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, domain.FirstOrderCode+1, next)
}

func TestFindReturnsNilWhenMissing(t *testing.T) {
	db := testutil.OpenDB(t)
	r := Provide()
	ctx := context.Background()

	payment, err := r.FindByOrderCode(ctx, db, 424242)
	require.NoError(t, err)
	assert.Nil(t, payment)

	payment, err = r.FindByPaymentLinkID(ctx, db, "missing")
	require.NoError(t, err)
	assert.Nil(t, payment)
}

func TestOnlyOnePendingPaymentPerOrder(t *testing.T) {
	db := testutil.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	seedOrder(t, db)

	require.NoError(t, r.Insert(ctx, db, newPayment(1, 100001)))
	require.Error(t, r.Insert(ctx, db, newPayment(2, 100002)))

	pending, err := r.FindPendingByOrderID(ctx, db, 1)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, int64(100001), pending.OrderCode)
	assert.JSONEq(t, `{}`, string(pending.RawLastPayload))
}

func TestSettlementEventIdempotencyKey(t *testing.T) {
	db := testutil.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	seedOrder(t, db)
	require.NoError(t, r.Insert(ctx, db, newPayment(1, 100001)))

	event := &domain.SettlementEvent{
		ID:             11,
		PaymentID:      1,
		IdempotencyKey: "100001|PAID|50000",
		Source:         domain.SourceWebhook,
		Status:         "PAID",
		Payload:        datatypes.JSON(`{"status":"PAID"}`),
		ReceivedAt:     now,
	}
	inserted, err := r.InsertSettlementEvent(ctx, db, event)
	require.NoError(t, err)
	assert.True(t, inserted)

	event.ID = 12
	inserted, err = r.InsertSettlementEvent(ctx, db, event)
	require.NoError(t, err)
	assert.False(t, inserted)

	events, err := r.ListSettlementEvents(ctx, db, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "100001|PAID|50000", events[0].IdempotencyKey)
}

func TestApplyTransitionOnlyFromPending(t *testing.T) {
	db := testutil.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	seedOrder(t, db)
	require.NoError(t, r.Insert(ctx, db, newPayment(1, 100001)))

	paidAt := now.Add(time.Minute)
	reference := "FT123"
	applied, err := r.ApplyTransition(ctx, db, domain.TransitionUpdate{
		PaymentID:             1,
		Status:                domain.StatusPaid,
		Fingerprint:           "100001|PAID|50000",
		Payload:               datatypes.JSON(`{"status":"PAID"}`),
		At:                    paidAt,
		PaidAt:                &paidAt,
		ExternalTransactionID: &reference,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = r.ApplyTransition(ctx, db, domain.TransitionUpdate{
		PaymentID:   1,
		Status:      domain.StatusCancelled,
		Fingerprint: "100001|CANCELLED|0",
		At:          paidAt.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := r.FindByID(ctx, db, 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusPaid, stored.Status)
	require.NotNil(t, stored.ExternalTransactionID)
	assert.Equal(t, "FT123", *stored.ExternalTransactionID)
	require.NotNil(t, stored.PaidAt)
	assert.True(t, stored.PaidAt.Equal(paidAt))
	assert.Equal(t, int64(50000), stored.Amount)
}

func TestListStalePendingSkipsRecentAndSettled(t *testing.T) {
	db := testutil.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	seedOrder(t, db)

	paid := newPayment(1, 100001)
	paid.Status = domain.StatusPaid
	require.NoError(t, r.Insert(ctx, db, paid))
	require.NoError(t, r.Insert(ctx, db, newPayment(2, 100002)))

	codes, err := r.ListStalePending(ctx, db, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, codes)

	codes, err = r.ListStalePending(ctx, db, now.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{100002}, codes)
}
