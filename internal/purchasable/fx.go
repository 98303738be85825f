package purchasable

import (
	"github.com/smallbiznis/paysettle/internal/purchasable/competition"
	"go.uber.org/fx"
)

var Module = fx.Module("purchasable",
	fx.Provide(competition.New),
	fx.Provide(func(c *competition.Adapter) *Registry {
		return NewRegistry(c)
	}),
)
