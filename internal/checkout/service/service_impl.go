package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/checkout/domain"
	"github.com/smallbiznis/directdebit/internal/checkout/orchestrator"
	"github.com/smallbiznis/directdebit/internal/checkout/planner"
	"github.com/smallbiznis/directdebit/internal/gateway"
	"github.com/smallbiznis/directdebit/internal/gocardless"
	mandatedomain "github.com/smallbiznis/directdebit/internal/mandate/domain"
	"github.com/smallbiznis/directdebit/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Gateways     *gateway.Registry
	Planner      *planner.Planner
	Orchestrator *orchestrator.Orchestrator
	Mandates     mandatedomain.Service
}

type Service struct {
	log          *zap.Logger
	gateways     *gateway.Registry
	planner      *planner.Planner
	orchestrator *orchestrator.Orchestrator
	mandates     mandatedomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		log:          p.Log.Named("checkout.service"),
		gateways:     p.Gateways,
		planner:      p.Planner,
		orchestrator: p.Orchestrator,
		mandates:     p.Mandates,
	}
}

type CreatePaymentRequest struct {
	GatewayID string
	Order     domain.Order
	MandateID snowflake.ID
}

type BeginRedirectRequest struct {
	GatewayID          string
	Order              domain.Order
	SessionToken       string
	SuccessRedirectURL string
	Scheme             string
	Customer           mandatedomain.Customer
}

type CompleteRedirectRequest struct {
	GatewayID    string
	FlowID       string
	SessionToken string
	Order        domain.Order
}

type Result struct {
	Mandate *mandatedomain.Mandate `json:"mandate"`
	orchestrator.Result
}

// CreatePayment charges an existing mandate for the order.
func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (Result, error) {
	gw, err := s.gateways.Resolve(req.GatewayID)
	if err != nil {
		return Result{}, err
	}
	ctx = ctxlogger.ContextWithGateway(ctx, gw.ID())

	if req.MandateID == 0 {
		return Result{}, domain.Decline(domain.MissingMandateMessage, domain.ErrMissingMandate)
	}
	mandate, err := s.mandates.Get(ctx, req.MandateID)
	if err != nil {
		if errors.Is(err, mandatedomain.ErrNotFound) {
			return Result{}, domain.Decline(domain.MissingMandateMessage, err)
		}
		return Result{}, err
	}
	if req.Order.OwnerID != "" && mandate.OwnerID != req.Order.OwnerID {
		return Result{}, domain.Decline(mandatedomain.InvalidDescription, mandatedomain.ErrInvalidOwner)
	}

	return s.charge(ctx, gw, req.Order, mandate)
}

// BeginRedirect starts the hosted mandate setup for a redirect gateway.
func (s *Service) BeginRedirect(ctx context.Context, req BeginRedirectRequest) (mandatedomain.RedirectFlow, error) {
	gw, err := s.gateways.Resolve(req.GatewayID)
	if err != nil {
		return mandatedomain.RedirectFlow{}, err
	}
	if !gw.IsRedirect() {
		return mandatedomain.RedirectFlow{}, fmt.Errorf("%w: %s is not a redirect gateway", domain.ErrWrongPlugin, gw.ID())
	}
	number := req.Order.Number
	if number == "" {
		number = req.Order.ID
	}

	flow, err := s.mandates.BeginRedirectFlow(ctx, mandatedomain.BeginRedirectRequest{
		GatewayID:          gw.ID(),
		OrderID:            req.Order.ID,
		Description:        "Payment for " + number,
		SessionToken:       req.SessionToken,
		SuccessRedirectURL: req.SuccessRedirectURL,
		Scheme:             req.Scheme,
		Customer:           req.Customer,
	})
	if err != nil {
		return mandatedomain.RedirectFlow{}, s.declineRemote(err)
	}
	return flow, nil
}

// CompleteRedirect turns the completed flow into a mandate and charges it.
func (s *Service) CompleteRedirect(ctx context.Context, req CompleteRedirectRequest) (Result, error) {
	gw, err := s.gateways.Resolve(req.GatewayID)
	if err != nil {
		return Result{}, err
	}
	if !gw.IsRedirect() {
		return Result{}, fmt.Errorf("%w: %s is not a redirect gateway", domain.ErrWrongPlugin, gw.ID())
	}
	ctx = ctxlogger.ContextWithGateway(ctx, gw.ID())

	mandate, err := s.mandates.CreateFromRedirectFlow(ctx, mandatedomain.CompleteRedirectRequest{
		GatewayID:    gw.ID(),
		FlowID:       req.FlowID,
		SessionToken: req.SessionToken,
		OwnerID:      req.Order.OwnerID,
		OrderID:      req.Order.ID,
	})
	if err != nil {
		return Result{}, s.declineRemote(err)
	}
	return s.charge(ctx, gw, req.Order, mandate)
}

func (s *Service) charge(ctx context.Context, gw *gateway.Gateway, order domain.Order, mandate *mandatedomain.Mandate) (Result, error) {
	if err := s.mandates.AssertUsable(mandate, gw); err != nil {
		return Result{Mandate: mandate}, domain.Decline(mandatedomain.InvalidDescription, err)
	}

	plan, err := s.planner.Plan(ctx, order, gw.Settings)
	if err != nil {
		return Result{Mandate: mandate}, err
	}

	executed, err := s.orchestrator.Execute(ctx, orchestrator.Request{
		Gateway:         gw,
		Order:           order,
		MandateRemoteID: mandate.RemoteID,
		Currency:        gocardless.SchemeCurrency(mandate.Scheme),
		Plan:            plan,
	})
	result := Result{Mandate: mandate, Result: executed}
	if err != nil {
		return result, err
	}

	ctxlogger.WithContext(ctx, s.log).Info("checkout completed",
		zap.String("order_id", order.ID),
		zap.String("mandate_id", mandate.ID.String()),
		zap.Int("payments", len(executed.Payments)),
		zap.Int("queued_schedules", len(executed.QueuedSchedules)),
		zap.Int("skipped", executed.Skipped),
	)
	return result, nil
}

func (s *Service) declineRemote(err error) error {
	switch {
	case orchestrator.IsRemote(err):
		return orchestrator.Classify(err)
	case errors.Is(err, mandatedomain.ErrInvalidMandate),
		errors.Is(err, mandatedomain.ErrInvalidStatus),
		errors.Is(err, mandatedomain.ErrInvalidFlow),
		errors.Is(err, mandatedomain.ErrInvalidOwner):
		return domain.Decline(mandatedomain.InvalidDescription, err)
	default:
		return err
	}
}

