package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/smallbiznis/paysettle/internal/events"
	obscontext "github.com/smallbiznis/paysettle/internal/observability/context"
	orderdomain "github.com/smallbiznis/paysettle/internal/order/domain"
	"github.com/smallbiznis/paysettle/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var eventTypes = map[domain.Status]string{
	domain.StatusPaid:      events.TypePaymentPaid,
	domain.StatusCancelled: events.TypePaymentCancelled,
	domain.StatusExpired:   events.TypePaymentExpired,
	domain.StatusFailed:    events.TypePaymentFailed,
}

// errAlreadyTerminal rolls back the settlement event of a no-op transition.
var errAlreadyTerminal = errors.New("payment_already_terminal")

// transition is the only writer of payment status. The event insert and the
// conditional update run in one transaction, so concurrent deliveries of the
// same result apply at most once and terminal payments are never changed.
func (s *Service) transition(ctx context.Context, payment *domain.Payment, event domain.CallbackEvent) (*domain.SettlementResult, error) {
	if event.OrderCode == 0 {
		event.OrderCode = payment.OrderCode
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.clock.Now().UTC()
	}

	result := &domain.SettlementResult{
		PaymentID:      payment.ID,
		OrderID:        payment.OrderID,
		OrderCode:      payment.OrderCode,
		PreviousStatus: payment.Status,
		Status:         payment.Status,
		Amount:         payment.Amount,
	}
	log := s.log.With(
		zap.Int64("order_code", payment.OrderCode),
		zap.String("source", string(event.Source)),
		zap.String("raw_status", event.RawStatus),
	)

	target, ok := event.Status.PaymentStatus()
	if !ok {
		result.Outcome = domain.OutcomeIgnored
		s.obsMetrics.RecordTransition(ctx, string(event.Source), "unmapped", string(result.Outcome))
		log.Info("gateway status acknowledged without transition")
		return result, nil
	}

	fingerprint := domain.Fingerprint(event)
	at := event.ReceivedAt.UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertSettlementEvent(ctx, tx, &domain.SettlementEvent{
			ID:             s.genID.Generate(),
			PaymentID:      payment.ID,
			IdempotencyKey: fingerprint,
			Source:         event.Source,
			Status:         string(event.Status),
			Payload:        datatypes.JSON(event.Payload),
			ReceivedAt:     at,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result.Outcome = domain.OutcomeReplayed
			return nil
		}

		update := domain.TransitionUpdate{
			PaymentID:   payment.ID,
			Status:      target,
			Fingerprint: fingerprint,
			Payload:     datatypes.JSON(event.Payload),
			At:          at,
		}
		if target == domain.StatusPaid {
			update.PaidAt = &at
			update.ExternalTransactionID = optionalString(event.ExternalTransactionID)
			if event.HasAmount {
				amount, fee, net := event.Amount, event.Fee, event.NetAmount
				update.Amount = &amount
				update.Fee = &fee
				update.NetAmount = &net
				if amount != payment.Amount {
					log.Warn("settled amount differs from payment amount",
						zap.Int64("expected", payment.Amount),
						zap.Int64("settled", amount),
					)
				}
			}
		}

		applied, err := s.repo.ApplyTransition(ctx, tx, update)
		if err != nil {
			return err
		}
		if !applied {
			return errAlreadyTerminal
		}

		switch target {
		case domain.StatusPaid:
			_, err = s.orders.UpdateStatus(ctx, tx, payment.OrderID, orderdomain.StatusCompleted, orderdomain.OpenStatuses, at)
		case domain.StatusCancelled:
			_, err = s.orders.UpdateStatus(ctx, tx, payment.OrderID, orderdomain.StatusCancelled, orderdomain.OpenStatuses, at)
		}
		if err != nil {
			return err
		}

		result.Outcome = domain.OutcomeApplied
		result.Status = target
		if event.HasAmount && target == domain.StatusPaid {
			result.Amount = event.Amount
		}
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyTerminal):
		result.Outcome = domain.OutcomeNoop
	case err != nil:
		log.Error("settlement transition failed", zap.Error(err))
		return nil, err
	}

	if result.Outcome != domain.OutcomeApplied {
		current, err := s.repo.FindByID(ctx, s.db, payment.ID)
		if err != nil {
			return nil, err
		}
		if current != nil {
			result.Status = current.Status
		}
	}
	s.obsMetrics.RecordTransition(ctx, string(event.Source), string(event.Status), string(result.Outcome))

	switch {
	case result.Outcome == domain.OutcomeApplied:
		log.Info("payment settled",
			zap.String("previous_status", string(result.PreviousStatus)),
			zap.String("status", string(result.Status)),
			zap.String("fingerprint", fingerprint),
		)
		s.propagate(ctx, payment, target, result)
		s.publish(ctx, payment, event, result)
	case event.Source == domain.SourceResync && target == domain.StatusPaid && result.Status == domain.StatusPaid:
		// Reconciliation heals a dependent aggregate missed after an earlier settlement.
		s.propagate(ctx, payment, domain.StatusPaid, result)
	default:
		log.Info("settlement acknowledged without change",
			zap.String("outcome", string(result.Outcome)),
			zap.String("status", string(result.Status)),
		)
	}
	return result, nil
}

// propagate updates the aggregates an order's lines refer to. Failures are
// logged and reported on result; they never fail the settlement.
func (s *Service) propagate(ctx context.Context, payment *domain.Payment, status domain.Status, result *domain.SettlementResult) {
	if status != domain.StatusPaid && status != domain.StatusCancelled {
		return
	}

	lines, err := s.orders.ListLines(ctx, s.db, payment.OrderID)
	if err != nil {
		s.log.Error("dependent aggregate lookup failed",
			zap.Int64("order_code", payment.OrderCode),
			zap.Error(err),
		)
		result.DependentSyncErr = err
		return
	}

	var errs []error
	for _, line := range lines {
		var err error
		if status == domain.StatusPaid {
			err = s.items.MarkPaid(ctx, line.ItemKind, line.ItemID)
		} else {
			err = s.items.MarkCancelled(ctx, line.ItemKind, line.ItemID)
		}
		if err == nil {
			continue
		}
		syncErr := &domain.DependentAggregateSyncError{
			Kind:   line.ItemKind,
			ItemID: line.ItemID,
			Status: status,
			Err:    err,
		}
		s.obsMetrics.RecordDependentSyncFailure(ctx, string(line.ItemKind))
		s.log.Error("dependent aggregate sync failed",
			zap.Int64("order_code", payment.OrderCode),
			zap.String("item_kind", string(line.ItemKind)),
			zap.String("item_id", line.ItemID.String()),
			zap.Error(syncErr),
		)
		errs = append(errs, syncErr)
	}
	result.DependentSyncErr = errors.Join(errs...)
}

func (s *Service) publish(ctx context.Context, payment *domain.Payment, event domain.CallbackEvent, result *domain.SettlementResult) {
	eventType, ok := eventTypes[result.Status]
	if !ok {
		return
	}
	evt, err := events.NewEvent(eventType, "payment", strconv.FormatInt(payment.OrderCode, 10), event.ReceivedAt, map[string]any{
		"payment_id":              payment.ID.String(),
		"order_id":                payment.OrderID.String(),
		"order_code":              payment.OrderCode,
		"status":                  result.Status,
		"previous_status":         result.PreviousStatus,
		"amount":                  result.Amount,
		"fee":                     event.Fee,
		"net_amount":              event.NetAmount,
		"external_transaction_id": event.ExternalTransactionID,
		"source":                  event.Source,
	})
	if err != nil {
		s.log.Warn("settlement event encoding failed", zap.Error(err))
		return
	}
	evt.CorrelationID = obscontext.RequestIDFromContext(ctx)
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn("settlement event publish failed",
			zap.Int64("order_code", payment.OrderCode),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}
