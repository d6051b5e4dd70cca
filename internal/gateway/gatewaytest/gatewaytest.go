// Package gatewaytest builds registries backed by a fake processor.
package gatewaytest

import (
	"testing"

	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/internal/gateway"
	"github.com/smallbiznis/directdebit/internal/gocardless"
	"go.uber.org/zap"
)

const (
	OnsiteID   = "gocardless"
	RedirectID = "gocardless-redirect"
	Secret     = "whsec_test"
)

// Onsite is a sandbox gateway that charges existing mandates.
func Onsite() config.GatewaySettings {
	return config.GatewaySettings{
		ID:            OnsiteID,
		Plugin:        config.PluginOnsite,
		Mode:          config.ModeSandbox,
		AccessToken:   "sandbox_token",
		WebhookSecret: Secret,
		Description:   "Direct debit",
	}
}

// Redirect is a sandbox gateway that sets mandates up through a redirect flow.
func Redirect() config.GatewaySettings {
	settings := Onsite()
	settings.ID = RedirectID
	settings.Plugin = config.PluginRedirect
	return settings
}

func NewRegistry(t testing.TB, client gocardless.Client, gateways ...config.GatewaySettings) *gateway.Registry {
	t.Helper()
	if len(gateways) == 0 {
		gateways = []config.GatewaySettings{Onsite(), Redirect()}
	}
	holder, err := config.NewStaticGatewayConfigHolder(gateways...)
	if err != nil {
		t.Fatalf("gateway config: %v", err)
	}
	return gateway.NewRegistry(gateway.Params{
		Holder: holder,
		Log:    zap.NewNop(),
		Factory: func(config.GatewaySettings) (gocardless.Client, error) {
			return client, nil
		},
	})
}
