package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	buyerdomain "github.com/smallbiznis/paysettle/internal/buyer/domain"
	"github.com/smallbiznis/paysettle/internal/clock"
	"github.com/smallbiznis/paysettle/internal/order/domain"
	"github.com/smallbiznis/paysettle/internal/purchasable"
	purchasabledomain "github.com/smallbiznis/paysettle/internal/purchasable/domain"
	"github.com/smallbiznis/paysettle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultCurrency        = "VND"
	maxOrderNumberAttempts = 5
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Buyers buyerdomain.Resolver
	Items  *purchasable.Registry
	Clock  clock.Clock
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	buyers buyerdomain.Resolver
	items  *purchasable.Registry
	clock  clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("order.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		buyers: p.Buyers,
		items:  p.Items,
		clock:  clk,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	buyerID, err := snowflake.ParseString(strings.TrimSpace(req.BuyerID))
	if err != nil || buyerID <= 0 {
		return domain.Order{}, domain.ErrInvalidBuyer
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != 3 {
		return domain.Order{}, domain.ErrInvalidCurrency
	}

	if len(req.Lines) == 0 {
		return domain.Order{}, domain.ErrInvalidLines
	}

	if _, err := s.buyers.Resolve(ctx, buyerID); err != nil {
		return domain.Order{}, err
	}

	now := s.clock.Now().UTC()
	order := domain.Order{
		ID:        s.genID.Generate(),
		BuyerID:   buyerID,
		Currency:  currency,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, input := range req.Lines {
		line, err := s.buildLine(ctx, order.ID, input)
		if err != nil {
			return domain.Order{}, err
		}
		line.CreatedAt = now
		order.Lines = append(order.Lines, line)
		order.TotalAmount += line.FinalPrice
	}

	prefix := domain.OrderNumberPrefix(now)
	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			latest, err := s.repo.LatestOrderNumber(ctx, tx, prefix)
			if err != nil {
				return err
			}
			number, err := domain.NextOrderNumber(prefix, latest)
			if err != nil {
				return err
			}
			order.OrderNumber = number
			return s.repo.Insert(ctx, tx, &order)
		})
		if err == nil {
			s.log.Info("order created",
				zap.String("order_id", order.ID.String()),
				zap.String("order_number", order.OrderNumber),
				zap.Int64("total_amount", order.TotalAmount),
				zap.Int("lines", len(order.Lines)),
			)
			return order, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return domain.Order{}, err
		}
		s.log.Warn("order number collision, retrying",
			zap.String("order_number", order.OrderNumber),
			zap.Int("attempt", attempt),
		)
	}

	return domain.Order{}, domain.ErrOrderNumberConflict
}

func (s *Service) buildLine(ctx context.Context, orderID snowflake.ID, input domain.CreateOrderLine) (domain.OrderLine, error) {
	kind, err := purchasabledomain.ParseKind(input.ItemKind)
	if err != nil || !s.items.Supports(kind) {
		return domain.OrderLine{}, domain.ErrInvalidItem
	}
	itemID, err := snowflake.ParseString(strings.TrimSpace(input.ItemID))
	if err != nil || itemID <= 0 {
		return domain.OrderLine{}, domain.ErrInvalidItem
	}
	if input.Quantity < 1 {
		return domain.OrderLine{}, domain.ErrInvalidQuantity
	}
	if input.Discount < 0 {
		return domain.OrderLine{}, domain.ErrInvalidDiscount
	}

	item, err := s.items.Resolve(ctx, kind, itemID)
	if err != nil {
		return domain.OrderLine{}, err
	}
	if item.Price < 0 {
		return domain.OrderLine{}, domain.ErrInvalidPrice
	}

	gross := int64(input.Quantity) * item.Price
	if input.Discount > gross {
		return domain.OrderLine{}, domain.ErrInvalidDiscount
	}

	return domain.OrderLine{
		ID:          s.genID.Generate(),
		OrderID:     orderID,
		ItemKind:    kind,
		ItemID:      itemID,
		Description: item.Name,
		Quantity:    input.Quantity,
		UnitPrice:   item.Price,
		Discount:    input.Discount,
		FinalPrice:  gross - input.Discount,
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orderID <= 0 {
		return domain.Order{}, domain.ErrInvalidID
	}

	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	lines, err := s.repo.ListLines(ctx, s.db, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines
	return *order, nil
}
