package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	PluginOnsite   = "onsite"
	PluginRedirect = "redirect"

	ModeSandbox = "sandbox"
	ModeLive    = "live"
)

// GatewaySettings is one configured direct debit gateway.
type GatewaySettings struct {
	ID            string            `mapstructure:"id"`
	Plugin        string            `mapstructure:"plugin"`
	Mode          string            `mapstructure:"mode"`
	AccessToken   string            `mapstructure:"access_token"`
	WebhookSecret string            `mapstructure:"webhook_secret"`
	Description   string            `mapstructure:"description"`
	BaseURL       string            `mapstructure:"base_url"`
	Instalments   *InstalmentPolicy `mapstructure:"instalments"`
}

// InstalmentPolicy splits qualifying orders into an instalment schedule.
type InstalmentPolicy struct {
	Count        int    `mapstructure:"count"`
	IntervalUnit string `mapstructure:"interval_unit"`
	Interval     int    `mapstructure:"interval"`
	MinTotal     string `mapstructure:"min_total"`
	DayOfMonth   int    `mapstructure:"day_of_month"`
}

type GatewayConfig struct {
	Gateways []GatewaySettings `mapstructure:"gateways"`
}

// Find returns the gateway with the given id.
func (c GatewayConfig) Find(id string) (GatewaySettings, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, gw := range c.Gateways {
		if gw.ID == id {
			return gw, true
		}
	}
	return GatewaySettings{}, false
}

type GatewayConfigHolder struct {
	current atomic.Value // holds GatewayConfig
}

// NewStaticGatewayConfigHolder serves a fixed gateway list without file watching.
func NewStaticGatewayConfigHolder(gateways ...GatewaySettings) (*GatewayConfigHolder, error) {
	cfg := normalizeGatewayConfig(GatewayConfig{Gateways: gateways})
	if err := validateGatewayConfig(cfg); err != nil {
		return nil, err
	}
	holder := &GatewayConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

// NewGatewayConfigHolder loads gateways.yml and reloads it on change.
func NewGatewayConfigHolder(cfg Config) (*GatewayConfigHolder, error) {
	v := viper.New()

	if cfg.GatewayConfigPath != "" {
		v.SetConfigFile(cfg.GatewayConfigPath)
	} else {
		v.SetConfigName("gateways")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/directdebit")
		v.AddConfigPath(".")
	}

	holder := &GatewayConfigHolder{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
		log.Printf("[gateway-config] no gateway config found, starting with none")
		holder.current.Store(GatewayConfig{})
		return holder, nil
	}

	loaded, err := readGatewayConfig(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(loaded)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readGatewayConfig(v)
		if err != nil {
			log.Printf("[gateway-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[gateway-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *GatewayConfigHolder) Get() GatewayConfig {
	return h.current.Load().(GatewayConfig)
}

func readGatewayConfig(v *viper.Viper) (GatewayConfig, error) {
	var cfg GatewayConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return GatewayConfig{}, err
	}
	cfg = normalizeGatewayConfig(cfg)
	applySecretOverrides(&cfg)
	if err := validateGatewayConfig(cfg); err != nil {
		return GatewayConfig{}, err
	}
	return cfg, nil
}

func normalizeGatewayConfig(cfg GatewayConfig) GatewayConfig {
	out := GatewayConfig{Gateways: make([]GatewaySettings, 0, len(cfg.Gateways))}
	for _, gw := range cfg.Gateways {
		gw.ID = strings.ToLower(strings.TrimSpace(gw.ID))
		gw.Plugin = strings.ToLower(strings.TrimSpace(gw.Plugin))
		gw.Mode = strings.ToLower(strings.TrimSpace(gw.Mode))
		gw.AccessToken = strings.TrimSpace(gw.AccessToken)
		gw.WebhookSecret = strings.TrimSpace(gw.WebhookSecret)
		gw.BaseURL = strings.TrimRight(strings.TrimSpace(gw.BaseURL), "/")
		out.Gateways = append(out.Gateways, gw)
	}
	return out
}

// Secrets may come from DIRECTDEBIT_<ID>_ACCESS_TOKEN and DIRECTDEBIT_<ID>_WEBHOOK_SECRET.
func applySecretOverrides(cfg *GatewayConfig) {
	for i := range cfg.Gateways {
		prefix := "DIRECTDEBIT_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(cfg.Gateways[i].ID)) + "_"
		if token := strings.TrimSpace(os.Getenv(prefix + "ACCESS_TOKEN")); token != "" {
			cfg.Gateways[i].AccessToken = token
		}
		if secret := strings.TrimSpace(os.Getenv(prefix + "WEBHOOK_SECRET")); secret != "" {
			cfg.Gateways[i].WebhookSecret = secret
		}
	}
}

// Credentials and mode are checked when a client is built, so one broken gateway does not block the rest.
func validateGatewayConfig(cfg GatewayConfig) error {
	seen := map[string]struct{}{}
	for _, gw := range cfg.Gateways {
		if gw.ID == "" {
			return errors.New("gateways[].id cannot be empty")
		}
		if _, ok := seen[gw.ID]; ok {
			return fmt.Errorf("duplicate gateway id %q", gw.ID)
		}
		seen[gw.ID] = struct{}{}
		switch gw.Plugin {
		case PluginOnsite, PluginRedirect:
		default:
			return fmt.Errorf("gateway %q: unsupported plugin %q", gw.ID, gw.Plugin)
		}
		if gw.Instalments != nil && gw.Instalments.Count < 2 {
			return fmt.Errorf("gateway %q: instalments.count must be at least 2", gw.ID)
		}
		if gw.Instalments != nil && strings.TrimSpace(gw.Instalments.MinTotal) != "" {
			minTotal, err := decimal.NewFromString(strings.TrimSpace(gw.Instalments.MinTotal))
			if err != nil || minTotal.IsNegative() {
				return fmt.Errorf("gateway %q: instalments.min_total %q is not a non-negative decimal", gw.ID, gw.Instalments.MinTotal)
			}
		}
	}
	return nil
}
