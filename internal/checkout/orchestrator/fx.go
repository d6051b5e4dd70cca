package orchestrator

import (
	instalmentservice "github.com/smallbiznis/directdebit/internal/instalment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.orchestrator",
	fx.Provide(func(svc *instalmentservice.Service) TaskQueue { return svc }),
	fx.Provide(New),
)
