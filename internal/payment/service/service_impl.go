package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	buyerdomain "github.com/smallbiznis/paysettle/internal/buyer/domain"
	"github.com/smallbiznis/paysettle/internal/clock"
	"github.com/smallbiznis/paysettle/internal/config"
	"github.com/smallbiznis/paysettle/internal/events"
	"github.com/smallbiznis/paysettle/internal/gateway"
	obsmetrics "github.com/smallbiznis/paysettle/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/paysettle/internal/order/domain"
	"github.com/smallbiznis/paysettle/internal/payment/callback"
	"github.com/smallbiznis/paysettle/internal/payment/domain"
	"github.com/smallbiznis/paysettle/internal/purchasable"
	"github.com/smallbiznis/paysettle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxOrderCodeAttempts = 5

// Locker serializes reconciliations of one order code across replicas.
type Locker interface {
	Acquire(ctx context.Context, orderCode int64) (string, bool, error)
	Release(ctx context.Context, orderCode int64, token string) error
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Orders     orderdomain.Repository
	Buyers     buyerdomain.Resolver `optional:"true"`
	Items      *purchasable.Registry
	Gateway    domain.Gateway
	Statuses   *callback.StatusTable
	Settings   *config.SettlementConfigHolder `optional:"true"`
	Clock      clock.Clock
	Locker     Locker              `optional:"true"`
	Publisher  events.Publisher    `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	orders     orderdomain.Repository
	buyers     buyerdomain.Resolver
	items      *purchasable.Registry
	gateway    domain.Gateway
	statuses   *callback.StatusTable
	settings   *config.SettlementConfigHolder
	clock      clock.Clock
	locker     Locker
	publisher  events.Publisher
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.settlement"),
		genID:      p.GenID,
		repo:       p.Repo,
		orders:     p.Orders,
		buyers:     p.Buyers,
		items:      p.Items,
		gateway:    p.Gateway,
		statuses:   p.Statuses,
		settings:   p.Settings,
		clock:      clk,
		locker:     p.Locker,
		publisher:  publisher,
		obsMetrics: p.ObsMetrics,
	}
}

// Checkout issues a checkout link for an order. A live pending link is
// returned as is. A pending link past its expiry is checked with the gateway
// first, and a new payment is opened only once the old one has ended.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(req.OrderID))
	if err != nil || orderID <= 0 {
		return nil, orderdomain.ErrInvalidID
	}

	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	switch order.Status {
	case orderdomain.StatusCompleted:
		return nil, domain.ErrOrderAlreadyPaid
	case orderdomain.StatusCancelled, orderdomain.StatusRefunded:
		return nil, domain.ErrOrderNotPayable
	}
	if order.TotalAmount <= 0 {
		return nil, gateway.ErrInvalidAmount
	}

	now := s.clock.Now().UTC()
	existing, err := s.repo.FindPendingByOrderID(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		reuse := existing.ExpiresAt.After(now)
		if !reuse {
			status, err := s.settleStale(ctx, existing, now)
			if err != nil {
				return nil, err
			}
			switch status {
			case domain.StatusPending:
				reuse = true
			case domain.StatusPaid:
				return nil, domain.ErrOrderAlreadyPaid
			case domain.StatusCancelled:
				return nil, domain.ErrOrderNotPayable
			}
		}
		if reuse {
			s.obsMetrics.RecordCheckoutLink(ctx, "reused")
			return checkoutResult(existing, true, false), nil
		}
	}

	lines, err := s.orders.ListLines(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	linkReq := gateway.CheckoutRequest{
		Amount:      order.TotalAmount,
		Description: checkoutDescription(order, lines),
	}
	for _, line := range lines {
		linkReq.Items = append(linkReq.Items, gateway.Item{
			Name:     line.Description,
			Quantity: line.Quantity,
			Price:    line.UnitPrice,
		})
	}
	if s.buyers != nil {
		if buyer, err := s.buyers.Resolve(ctx, order.BuyerID); err == nil && buyer != nil {
			linkReq.BuyerName = buyer.Name
			linkReq.BuyerEmail = buyer.Email
		}
	}

	for attempt := 1; attempt <= maxOrderCodeAttempts; attempt++ {
		code, err := s.repo.NextOrderCode(ctx, s.db)
		if err != nil {
			return nil, err
		}
		linkReq.OrderCode = code

		link, err := s.gateway.RequestCheckoutLink(ctx, linkReq)
		if err != nil {
			return nil, err
		}

		payment := &domain.Payment{
			ID:            s.genID.Generate(),
			OrderID:       order.ID,
			OrderCode:     code,
			PaymentLinkID: optionalString(link.PaymentLinkID),
			Amount:        order.TotalAmount,
			NetAmount:     order.TotalAmount,
			Status:        domain.StatusPending,
			Method:        domain.MethodGateway,
			CheckoutURL:   link.CheckoutURL,
			QRCode:        link.QRCode,
			DeepLink:      link.DeepLink,
			ExpiresAt:     link.ExpiresAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err = s.repo.Insert(ctx, s.db, payment)
		if err == nil {
			mode := "live"
			if link.Mock {
				mode = "mock"
			}
			s.obsMetrics.RecordCheckoutLink(ctx, mode)
			s.log.Info("checkout link issued",
				zap.String("order_id", order.ID.String()),
				zap.Int64("order_code", code),
				zap.Int64("amount", payment.Amount),
				zap.Bool("mock", link.Mock),
			)
			return checkoutResult(payment, false, link.Mock), nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}

		// The link just issued is never stored; its id is logged so it can be
		// traced if a buyer reaches it anyway.
		abandoned := []zap.Field{
			zap.Int64("order_code", code),
			zap.String("payment_link_id", link.PaymentLinkID),
			zap.Int("attempt", attempt),
		}

		// A concurrent checkout may have claimed the pending slot first.
		winner, findErr := s.repo.FindPendingByOrderID(ctx, s.db, order.ID)
		if findErr == nil && winner != nil {
			s.log.Warn("checkout link abandoned, order already has a pending payment",
				append(abandoned, zap.Int64("winner_order_code", winner.OrderCode))...,
			)
			return checkoutResult(winner, true, false), nil
		}
		s.log.Warn("checkout link abandoned after order code collision, retrying", abandoned...)
	}
	return nil, domain.ErrOrderCodeConflict
}

// settleStale decides what became of a pending payment whose link is past its
// local expiry. Only the gateway may end a live payment; a payment can be
// expired locally only when no gateway credentials are configured. The
// returned status is the payment's status once the gateway answer is applied.
func (s *Service) settleStale(ctx context.Context, payment *domain.Payment, now time.Time) (domain.Status, error) {
	info, err := s.gateway.GetPaymentInfo(ctx, payment.OrderCode)
	switch {
	case errors.Is(err, gateway.ErrNotConfigured):
		result, err := s.expire(ctx, payment, now)
		if err != nil {
			return "", err
		}
		return result.Status, nil
	case err != nil:
		s.log.Warn("stale checkout link could not be checked",
			zap.Int64("order_code", payment.OrderCode),
			zap.Error(err),
		)
		return "", err
	case info == nil:
		return "", &gateway.Error{Op: "get_payment_info", Err: gateway.ErrUnexpectedResponse}
	}

	event := callback.FromPaymentInfo(info, s.statuses)
	event.OrderCode = payment.OrderCode
	event.Source = domain.SourceCheckout
	event.ReceivedAt = now

	result, err := s.transition(ctx, payment, event)
	if err != nil {
		return "", err
	}
	s.log.Info("stale checkout link checked",
		zap.Int64("order_code", payment.OrderCode),
		zap.String("gateway_status", info.Status),
		zap.String("status", string(result.Status)),
	)
	return result.Status, nil
}

func (s *Service) expire(ctx context.Context, payment *domain.Payment, now time.Time) (*domain.SettlementResult, error) {
	return s.transition(ctx, payment, domain.CallbackEvent{
		OrderCode:  payment.OrderCode,
		RawStatus:  string(domain.CanonicalExpired),
		Status:     domain.CanonicalExpired,
		Amount:     payment.Amount,
		Payload:    []byte(`{"reason":"checkout_link_expired"}`),
		Source:     domain.SourceCheckout,
		ReceivedAt: now,
	})
}

// HandleWebhook verifies and applies a gateway callback. Deliveries without a
// signature are still processed unless signatures are required; bodies
// without a code or status are treated as verification pings.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.SettlementResult, error) {
	if len(payload) == 0 {
		s.obsMetrics.RecordWebhookRejected(ctx, "empty_payload")
		return nil, domain.ErrInvalidPayload
	}

	signature = strings.TrimSpace(signature)
	if signature != "" {
		if err := s.gateway.VerifyCallback(payload, signature); err != nil {
			s.obsMetrics.RecordWebhookRejected(ctx, "signature")
			s.log.Warn("payment webhook signature rejected",
				zap.Error(err),
				zap.ByteString("payload", payload),
			)
			return nil, domain.ErrInvalidSignature
		}
	}

	event, err := callback.Normalize(payload, s.statuses)
	if err != nil {
		s.obsMetrics.RecordWebhookRejected(ctx, "invalid_payload")
		return nil, err
	}
	event.Source = domain.SourceWebhook
	event.Signature = signature
	event.ReceivedAt = s.clock.Now().UTC()

	if signature == "" {
		if event.IsPing() {
			s.log.Info("payment webhook verification ping acknowledged")
			return &domain.SettlementResult{Outcome: domain.OutcomeIgnored}, nil
		}
		if s.settings.Get().RequireSignature {
			s.obsMetrics.RecordWebhookRejected(ctx, "missing_signature")
			s.log.Warn("payment webhook without signature rejected", zap.Int64("order_code", event.OrderCode))
			return nil, domain.ErrInvalidSignature
		}
		s.log.Warn("payment webhook without signature processed",
			zap.Int64("order_code", event.OrderCode),
			zap.String("payment_link_id", event.PaymentLinkID),
			zap.String("raw_status", event.RawStatus),
		)
	}

	if !event.HasCorrelation() {
		s.obsMetrics.RecordWebhookRejected(ctx, "missing_order_code")
		return nil, domain.ErrMissingCorrelationCode
	}

	payment, err := s.locate(ctx, event)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			s.obsMetrics.RecordWebhookRejected(ctx, "unknown_payment")
		}
		return nil, err
	}
	return s.transition(ctx, payment, event)
}

// HandleRedirect applies the status carried by a browser return or cancel redirect.
func (s *Service) HandleRedirect(ctx context.Context, req domain.RedirectRequest, cancelled bool) (*domain.SettlementResult, error) {
	event, err := callback.FromQuery(req, cancelled, s.statuses)
	if err != nil {
		return nil, err
	}
	event.Source = domain.SourceRedirect
	event.ReceivedAt = s.clock.Now().UTC()

	if !event.HasCorrelation() {
		return nil, domain.ErrMissingCorrelationCode
	}
	payment, err := s.locate(ctx, event)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, payment, event)
}

// Resync polls the gateway for orderCode and applies what it reports.
func (s *Service) Resync(ctx context.Context, orderCode int64) (*domain.ResyncResult, error) {
	if orderCode <= 0 {
		return nil, domain.ErrInvalidOrderCode
	}

	payment, err := s.repo.FindByOrderCode(ctx, s.db, orderCode)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}

	if s.locker != nil {
		token, ok, err := s.locker.Acquire(ctx, orderCode)
		switch {
		case err != nil:
			s.log.Warn("resync lock unavailable, continuing unlocked",
				zap.Int64("order_code", orderCode),
				zap.Error(err),
			)
		case !ok:
			return nil, domain.ErrResyncInProgress
		default:
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), orderCode, token); err != nil {
					s.log.Warn("resync lock release failed", zap.Int64("order_code", orderCode), zap.Error(err))
				}
			}()
		}
	}

	info, err := s.gateway.GetPaymentInfo(ctx, orderCode)
	if err != nil {
		return nil, err
	}

	event := callback.FromPaymentInfo(info, s.statuses)
	event.OrderCode = orderCode
	event.Source = domain.SourceResync
	event.ReceivedAt = s.clock.Now().UTC()

	result, err := s.transition(ctx, payment, event)
	if err != nil {
		return nil, err
	}

	s.log.Info("payment resynced",
		zap.Int64("order_code", orderCode),
		zap.String("previous_status", string(payment.Status)),
		zap.String("new_status", string(result.Status)),
		zap.String("gateway_status", info.Status),
	)
	return &domain.ResyncResult{
		OrderCode:      orderCode,
		PreviousStatus: payment.Status,
		NewStatus:      result.Status,
	}, nil
}

func (s *Service) GetByOrderCode(ctx context.Context, orderCode int64) (*domain.Payment, error) {
	if orderCode <= 0 {
		return nil, domain.ErrInvalidOrderCode
	}
	payment, err := s.repo.FindByOrderCode(ctx, s.db, orderCode)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) ListEvents(ctx context.Context, orderCode int64) ([]domain.SettlementEvent, error) {
	payment, err := s.GetByOrderCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListSettlementEvents(ctx, s.db, payment.ID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.SettlementEvent{}
	}
	return events, nil
}

func (s *Service) locate(ctx context.Context, event domain.CallbackEvent) (*domain.Payment, error) {
	if event.OrderCode > 0 {
		payment, err := s.repo.FindByOrderCode(ctx, s.db, event.OrderCode)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}
	if linkID := strings.TrimSpace(event.PaymentLinkID); linkID != "" {
		payment, err := s.repo.FindByPaymentLinkID(ctx, s.db, linkID)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func checkoutDescription(order *orderdomain.Order, lines []orderdomain.OrderLine) string {
	if len(lines) == 1 && strings.TrimSpace(lines[0].Description) != "" {
		return lines[0].Description
	}
	return "Order " + order.OrderNumber
}

func checkoutResult(payment *domain.Payment, reused, mock bool) *domain.CheckoutResult {
	result := &domain.CheckoutResult{
		OrderID:     payment.OrderID,
		OrderCode:   payment.OrderCode,
		CheckoutURL: payment.CheckoutURL,
		QRCode:      payment.QRCode,
		DeepLink:    payment.DeepLink,
		Amount:      payment.Amount,
		ExpiresAt:   payment.ExpiresAt,
		Reused:      reused,
		Mock:        mock,
	}
	if payment.PaymentLinkID != nil {
		result.PaymentLinkID = *payment.PaymentLinkID
		if strings.HasPrefix(result.PaymentLinkID, "mock-") {
			result.Mock = true
		}
	}
	return result
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
