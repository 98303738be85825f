// Package receipt renders PDF receipts for settled payments.
package receipt

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gosimple/slug"
	buyerdomain "github.com/smallbiznis/paysettle/internal/buyer/domain"
	"github.com/smallbiznis/paysettle/internal/config"
	orderdomain "github.com/smallbiznis/paysettle/internal/order/domain"
	paymentdomain "github.com/smallbiznis/paysettle/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrPaymentNotPaid = errors.New("payment_not_paid")

const dateLayout = "2006-01-02 15:04 MST"

// Document is a rendered receipt ready to be served.
type Document struct {
	Filename string
	Content  []byte
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Payments paymentdomain.Repository
	Orders   orderdomain.Repository
	Buyers   buyerdomain.Resolver `optional:"true"`
	Config   config.Config
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	payments paymentdomain.Repository
	orders   orderdomain.Repository
	buyers   buyerdomain.Resolver
	merchant string
}

func NewService(p Params) *Service {
	merchant := p.Config.AppName
	if merchant == "" {
		merchant = "paysettle"
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("receipt.service"),
		payments: p.Payments,
		orders:   p.Orders,
		buyers:   p.Buyers,
		merchant: merchant,
	}
}

// Build renders the receipt of the paid payment identified by orderCode.
func (s *Service) Build(ctx context.Context, orderCode int64) (*Document, error) {
	if orderCode <= 0 {
		return nil, paymentdomain.ErrInvalidOrderCode
	}
	payment, err := s.payments.FindByOrderCode(ctx, s.db, orderCode)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	if payment.Status != paymentdomain.StatusPaid {
		return nil, ErrPaymentNotPaid
	}

	order, err := s.orders.FindByID(ctx, s.db, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	lines, err := s.orders.ListLines(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}

	data := Data{
		MerchantName:  s.merchant,
		OrderNumber:   order.OrderNumber,
		OrderCode:     strconv.FormatInt(payment.OrderCode, 10),
		PaymentMethod: payment.Method,
		Subtotal:      FormatAmount(order.TotalAmount, order.Currency),
		Fee:           FormatAmount(payment.Fee, order.Currency),
		Total:         FormatAmount(payment.Amount, order.Currency),
	}
	if payment.ExternalTransactionID != nil {
		data.Reference = *payment.ExternalTransactionID
	}
	paidAt := payment.UpdatedAt
	if payment.PaidAt != nil {
		paidAt = *payment.PaidAt
	}
	data.DatePaid = paidAt.In(time.UTC).Format(dateLayout)

	if s.buyers != nil {
		buyer, err := s.buyers.Resolve(ctx, order.BuyerID)
		switch {
		case err == nil && buyer != nil:
			data.BuyerName = buyer.Name
			data.BuyerEmail = buyer.Email
		case err != nil:
			s.log.Warn("receipt buyer lookup failed", zap.Int64("order_code", orderCode), zap.Error(err))
		}
	}

	for _, line := range lines {
		data.Items = append(data.Items, Item{
			Description: line.Description,
			Qty:         line.Quantity,
			UnitPrice:   FormatAmount(line.UnitPrice, order.Currency),
			Discount:    FormatAmount(line.Discount, order.Currency),
			Amount:      FormatAmount(line.FinalPrice, order.Currency),
		})
	}

	content, err := render(data)
	if err != nil {
		s.log.Error("receipt render failed", zap.Int64("order_code", orderCode), zap.Error(err))
		return nil, err
	}
	return &Document{
		Filename: Filename(order.OrderNumber, data.BuyerName),
		Content:  content,
	}, nil
}

// Filename is the download name of a receipt, e.g. receipt-2024060100001-linh.pdf.
func Filename(orderNumber, buyerName string) string {
	return slug.Make("receipt "+orderNumber+" "+buyerName) + ".pdf"
}
