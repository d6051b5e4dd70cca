package planner

import "go.uber.org/fx"

var Module = fx.Module("checkout.planner",
	fx.Provide(NewFromParams),
)
