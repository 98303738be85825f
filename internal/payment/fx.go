package payment

import (
	"github.com/smallbiznis/paysettle/internal/gateway"
	"github.com/smallbiznis/paysettle/internal/payment/callback"
	"github.com/smallbiznis/paysettle/internal/payment/domain"
	"github.com/smallbiznis/paysettle/internal/payment/repository"
	paymentservice "github.com/smallbiznis/paysettle/internal/payment/service"
	"github.com/smallbiznis/paysettle/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(callback.NewStatusTable),
	fx.Provide(func(c *gateway.Client) domain.Gateway { return c }),
	fx.Provide(func(l *ratelimit.ResyncLock) paymentservice.Locker {
		if l == nil {
			return nil
		}
		return l
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(func(s *paymentservice.Service) domain.Service { return s }),
)
