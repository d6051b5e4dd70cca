package gateway

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/internal/gocardless"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrConfiguration marks a gateway that cannot be used as configured.
var ErrConfiguration = errors.New("configuration_error")

var (
	ErrGatewayNotConfigured = fmt.Errorf("%w: gateway not configured", ErrConfiguration)
	ErrMissingCredentials   = fmt.Errorf("%w: missing credentials", ErrConfiguration)
	ErrInvalidMode          = fmt.Errorf("%w: mode must be sandbox or live", ErrConfiguration)
)

// Gateway is a resolved gateway with a ready client.
type Gateway struct {
	Settings config.GatewaySettings
	Client   gocardless.Client
}

func (g *Gateway) ID() string { return g.Settings.ID }

func (g *Gateway) Sandbox() bool { return g.Settings.Mode == config.ModeSandbox }

func (g *Gateway) IsRedirect() bool { return g.Settings.Plugin == config.PluginRedirect }

// ClientFactory builds a processor client from gateway settings.
type ClientFactory func(settings config.GatewaySettings) (gocardless.Client, error)

func DefaultClientFactory(settings config.GatewaySettings) (gocardless.Client, error) {
	return gocardless.New(gocardless.Options{
		Environment: settings.Mode,
		AccessToken: settings.AccessToken,
		BaseURL:     settings.BaseURL,
	})
}

type Params struct {
	fx.In

	Holder  *config.GatewayConfigHolder
	Log     *zap.Logger
	Factory ClientFactory `optional:"true"`
}

type cachedClient struct {
	fingerprint string
	client      gocardless.Client
}

// Registry resolves gateway ids to clients, rebuilding them when the config reloads.
type Registry struct {
	holder  *config.GatewayConfigHolder
	log     *zap.Logger
	factory ClientFactory

	mu    sync.Mutex
	cache map[string]cachedClient
}

func NewRegistry(p Params) *Registry {
	factory := p.Factory
	if factory == nil {
		factory = DefaultClientFactory
	}
	return &Registry{
		holder:  p.Holder,
		log:     p.Log.Named("gateway.registry"),
		factory: factory,
		cache:   map[string]cachedClient{},
	}
}

// Settings returns gateway settings without building a client.
func (r *Registry) Settings(id string) (config.GatewaySettings, error) {
	if r == nil || r.holder == nil {
		return config.GatewaySettings{}, ErrGatewayNotConfigured
	}
	settings, ok := r.holder.Get().Find(id)
	if !ok {
		return config.GatewaySettings{}, fmt.Errorf("%w: %q", ErrGatewayNotConfigured, id)
	}
	return settings, nil
}

func (r *Registry) Resolve(id string) (*Gateway, error) {
	settings, err := r.Settings(id)
	if err != nil {
		return nil, err
	}

	switch settings.Mode {
	case config.ModeSandbox, config.ModeLive:
	default:
		return nil, fmt.Errorf("%w: gateway %q", ErrInvalidMode, settings.ID)
	}
	if settings.AccessToken == "" {
		return nil, fmt.Errorf("%w: gateway %q: %w", ErrMissingCredentials, settings.ID, gocardless.ErrMissingAccessToken)
	}

	fingerprint := strings.Join([]string{settings.Mode, settings.AccessToken, settings.BaseURL}, "|")

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[settings.ID]; ok && cached.fingerprint == fingerprint {
		return &Gateway{Settings: settings, Client: cached.client}, nil
	}

	client, err := r.factory(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway %q: %w", ErrConfiguration, settings.ID, err)
	}
	r.cache[settings.ID] = cachedClient{fingerprint: fingerprint, client: client}
	r.log.Info("gateway client ready",
		zap.String("gateway_id", settings.ID),
		zap.String("mode", settings.Mode),
	)
	return &Gateway{Settings: settings, Client: client}, nil
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
