package scheduler

import (
	"context"

	"github.com/smallbiznis/paysettle/internal/gateway"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

// NewScheduler starts the sweep unless it is disabled or there is no gateway
// to poll.
func NewScheduler(lc fx.Lifecycle, cfg Config, client *gateway.Client, sched *Scheduler, log *zap.Logger) {
	if !cfg.Enabled {
		return
	}
	if !client.Configured() {
		log.Info("reconciliation sweep disabled: gateway credentials are not configured")
		return
	}

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
