package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	checkoutservice "github.com/smallbiznis/directdebit/internal/checkout/service"
	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/internal/gateway"
	mandatedomain "github.com/smallbiznis/directdebit/internal/mandate/domain"
	obsmiddleware "github.com/smallbiznis/directdebit/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/directdebit/internal/observability/metrics"
	obstracing "github.com/smallbiznis/directdebit/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/directdebit/internal/payment/domain"
	"github.com/smallbiznis/directdebit/internal/payment/webhook"
	"github.com/smallbiznis/directdebit/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Log:             log.Named("http"),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(obsmetrics.GinMiddleware(httpMetrics))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.String("addr", srv.Addr), zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	gateways       *gateway.Registry
	checkoutSvc    *checkoutservice.Service
	mandateSvc     mandatedomain.Service
	paymentSvc     paymentdomain.Service
	webhookSvc     *webhook.Service
	webhookLimiter *ratelimit.WebhookLimiter
	instruments    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	Gateways       *gateway.Registry
	CheckoutSvc    *checkoutservice.Service
	MandateSvc     mandatedomain.Service
	PaymentSvc     paymentdomain.Service
	WebhookSvc     *webhook.Service
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
	Instruments    *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		gateways:       p.Gateways,
		checkoutSvc:    p.CheckoutSvc,
		mandateSvc:     p.MandateSvc,
		paymentSvc:     p.PaymentSvc,
		webhookSvc:     p.WebhookSvc,
		webhookLimiter: p.WebhookLimiter,
		instruments:    p.Instruments,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Checkout --------
	api.POST("/gateways/:gateway/payments", s.CreatePayment)
	api.POST("/gateways/:gateway/redirect-flows", s.BeginRedirectFlow)
	api.POST("/gateways/:gateway/redirect-flows/:flow/complete", s.CompleteRedirectFlow)
	api.POST("/gateways/:gateway/bank-details-lookups", s.LookupBankDetails)

	// -------- Payments --------
	api.GET("/orders/:order/payments", s.ListOrderPayments)

	// -------- Mandates --------
	api.GET("/mandates/:id", s.GetMandateByID)
	api.GET("/mandates/:id/description", s.DescribeMandate)
	api.POST("/mandates/:id/refresh", s.RefreshMandate)
}

func (s *Server) registerWebhookRoutes() {
	hooks := s.engine.Group("/webhooks")

	hooks.POST("/gocardless/:gateway", s.HandleGoCardlessWebhook)
}
