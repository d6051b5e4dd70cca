package instalment

import (
	"github.com/smallbiznis/directdebit/internal/instalment/repository"
	"github.com/smallbiznis/directdebit/internal/instalment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("instalment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.PolicyFromConfig),
	fx.Provide(service.NewService),
)
