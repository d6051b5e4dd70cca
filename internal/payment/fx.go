package payment

import (
	"github.com/smallbiznis/directdebit/internal/payment/repository"
	paymentservice "github.com/smallbiznis/directdebit/internal/payment/service"
	"github.com/smallbiznis/directdebit/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
