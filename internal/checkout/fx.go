package checkout

import (
	"github.com/smallbiznis/directdebit/internal/checkout/orchestrator"
	"github.com/smallbiznis/directdebit/internal/checkout/planner"
	"github.com/smallbiznis/directdebit/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	planner.Module,
	orchestrator.Module,
	fx.Provide(service.NewService),
)
