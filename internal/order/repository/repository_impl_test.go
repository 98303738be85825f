package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/paysettle/internal/order/domain"
	"github.com/smallbiznis/paysettle/internal/testutil"
)

func TestUpdateStatusOnlyFromAllowedStates(t *testing.T) {
	db := testutil.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	order := &domain.Order{
		ID:          1,
		OrderNumber: "2024060100001",
		BuyerID:     10,
		TotalAmount: 1000,
		Currency:    "VND",
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.Insert(ctx, db, order); err != nil {
		t.Fatalf("insert: %v", err)
	}

	updated, err := r.UpdateStatus(ctx, db, order.ID, domain.StatusCompleted, domain.OpenStatuses, now.Add(time.Minute))
	if err != nil || !updated {
		t.Fatalf("expected completion, updated=%v err=%v", updated, err)
	}

	updated, err = r.UpdateStatus(ctx, db, order.ID, domain.StatusCancelled, domain.OpenStatuses, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated {
		t.Fatalf("completed order must not move to cancelled")
	}

	stored, err := r.FindByID(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != domain.StatusCompleted || stored.CompletedAt == nil {
		t.Fatalf("unexpected stored order: %+v", stored)
	}

	latest, err := r.LatestOrderNumber(ctx, db, "20240601")
	if err != nil || latest != "2024060100001" {
		t.Fatalf("latest = %q, err=%v", latest, err)
	}
	latest, err = r.LatestOrderNumber(ctx, db, "20240602")
	if err != nil || latest != "" {
		t.Fatalf("expected empty latest for new day, got %q err=%v", latest, err)
	}
}
