package metricspush

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/directdebit/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewFromConfig),
	fx.Invoke(register),
)

// NewFromConfig returns nil when no exporter is configured. A bad target is
// logged and disabled rather than failing startup.
func NewFromConfig(cfg config.Config, log *zap.Logger) *Exporter {
	exp, err := NewExporter(Settings{
		Exporter:       cfg.MetricsPush.Exporter,
		Endpoint:       cfg.MetricsPush.Endpoint,
		AuthToken:      cfg.MetricsPush.AuthToken,
		Interval:       cfg.MetricsPush.Interval,
		ServiceName:    cfg.AppName,
		ServiceVersion: cfg.AppVersion,
		Environment:    cfg.Environment,
	}, prometheus.DefaultGatherer, log)
	if err != nil {
		log.Warn("metrics push disabled", zap.Error(err))
		return nil
	}
	return exp
}

func register(lc fx.Lifecycle, exp *Exporter, log *zap.Logger) {
	if exp == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics push",
				zap.String("exporter", exp.settings.Exporter),
				zap.Duration("interval", exp.settings.Interval),
			)
			exp.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return exp.Stop(ctx)
		},
	})
}
