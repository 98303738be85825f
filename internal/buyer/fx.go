package buyer

import (
	"github.com/smallbiznis/paysettle/internal/buyer/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("buyer",
	fx.Provide(repository.Provide),
)
