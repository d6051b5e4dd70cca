package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/clock"
	"github.com/smallbiznis/directdebit/internal/gateway"
	"github.com/smallbiznis/directdebit/internal/gocardless"
	instalmentservice "github.com/smallbiznis/directdebit/internal/instalment/service"
	mandatedomain "github.com/smallbiznis/directdebit/internal/mandate/domain"
	obsmetrics "github.com/smallbiznis/directdebit/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/directdebit/internal/payment/domain"
	"github.com/smallbiznis/directdebit/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrInvalidSignature is returned before any event is read or stored.
var ErrInvalidSignature = gocardless.ErrInvalidSignature

// Notification is published after a webhook changes a local payment.
type Notification struct {
	Name      string
	GatewayID string
	EventID   string
	Action    string
	Previous  paymentdomain.State
	Payment   paymentdomain.Payment
}

// Listener receives payment notifications in registration order.
type Listener func(ctx context.Context, n Notification)

// EventName is the notification name for a payment action.
func EventName(action string) string {
	return "directdebit.payment." + action
}

// Ack reports how one event in a delivery was handled.
type Ack struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        paymentdomain.Repository
	Payments    paymentdomain.Service
	Mandates    mandatedomain.Service
	Instalments *instalmentservice.Service
	Gateways    *gateway.Registry
	Clock       clock.Clock         `optional:"true"`
	Listeners   []Listener          `group:"directdebit.payment.listeners"`
	Instruments *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        paymentdomain.Repository
	payments    paymentdomain.Service
	mandates    mandatedomain.Service
	instalments *instalmentservice.Service
	gateways    *gateway.Registry
	clock       clock.Clock
	listeners   []Listener
	metrics     *obsmetrics.DirectDebitMetrics
	instruments *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	listeners := make([]Listener, 0, len(p.Listeners))
	for _, l := range p.Listeners {
		if l != nil {
			listeners = append(listeners, l)
		}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.webhook"),
		genID:       p.GenID,
		repo:        p.Repo,
		payments:    p.Payments,
		mandates:    p.Mandates,
		instalments: p.Instalments,
		gateways:    p.Gateways,
		clock:       clk,
		listeners:   listeners,
		metrics:     obsmetrics.DirectDebit(),
		instruments: p.Instruments,
	}
}

// Reconcile verifies a delivery and applies each event once. Events that
// fail are left unprocessed so a redelivery retries them.
func (s *Service) Reconcile(ctx context.Context, gatewayID string, body []byte, headers http.Header) ([]Ack, error) {
	settings, err := s.gateways.Settings(gatewayID)
	if err != nil {
		return nil, err
	}
	ctx = ctxlogger.ContextWithGateway(ctx, settings.ID)
	log := ctxlogger.WithContext(ctx, s.log)

	if err := gocardless.VerifySignature(body, headers, settings.WebhookSecret); err != nil {
		s.metrics.IncWebhookRejected("invalid_signature")
		log.Warn("webhook signature rejected")
		return nil, ErrInvalidSignature
	}

	events, err := gocardless.ParseEvents(body)
	if err != nil {
		s.metrics.IncWebhookRejected("invalid_payload")
		return nil, err
	}

	acks := make([]Ack, 0, len(events))
	var errs []error
	for _, evt := range events {
		status, err := s.handle(ctx, settings.ID, evt)
		if err != nil {
			log.Error("webhook event failed",
				zap.String("event_id", evt.ID),
				zap.String("resource_type", evt.ResourceType),
				zap.String("action", evt.Action),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("event %s: %w", evt.ID, err))
			status = paymentdomain.EventStatusError
		}
		s.metrics.IncWebhookEvent(evt.ResourceType, evt.Action, status)
		if evt.ResourceType == gocardless.ResourcePayments && status == paymentdomain.EventStatusProcessed {
			s.instruments.RecordPaymentEvent(ctx, settings.ID, evt.Action)
		}
		acks = append(acks, Ack{ID: evt.ID, Status: status})
	}
	return acks, errors.Join(errs...)
}

func (s *Service) handle(ctx context.Context, gatewayID string, evt gocardless.Event) (string, error) {
	record := &paymentdomain.WebhookEvent{
		ID:           s.genID.Generate(),
		GatewayID:    gatewayID,
		EventID:      evt.ID,
		ResourceType: evt.ResourceType,
		Action:       evt.Action,
		ResourceID:   resourceID(evt),
		Status:       paymentdomain.EventStatusReceived,
		Payload:      datatypes.JSON(evt.Raw),
		ReceivedAt:   s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return "", err
	}
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, gatewayID, evt.ID)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return "", fmt.Errorf("webhook event %s vanished after conflict", evt.ID)
		}
		if existing.ProcessedAt != nil {
			return paymentdomain.EventStatusAlreadyProcessed, nil
		}
		record = existing
	}

	var status string
	switch evt.ResourceType {
	case gocardless.ResourcePayments:
		status, err = s.applyPayment(ctx, gatewayID, evt)
	case gocardless.ResourceMandates:
		status, err = s.applyMandate(ctx, gatewayID, evt)
	case gocardless.ResourceInstalmentSchedules:
		status, err = s.wakeSchedule(ctx, gatewayID, evt)
	default:
		status = paymentdomain.EventStatusIgnored
	}
	if err != nil {
		return "", err
	}

	if err := s.repo.MarkEventProcessed(ctx, s.db, record.ID, status, s.clock.Now()); err != nil {
		return "", err
	}
	return status, nil
}

func (s *Service) applyPayment(ctx context.Context, gatewayID string, evt gocardless.Event) (string, error) {
	transition, ok := PaymentTransition(evt.Action)
	if !ok || evt.Links.Payment == "" {
		return paymentdomain.EventStatusIgnored, nil
	}

	current, err := s.payments.FindByRemoteID(ctx, gatewayID, evt.Links.Payment)
	if errors.Is(err, paymentdomain.ErrNotFound) {
		ctxlogger.WithContext(ctx, s.log).Info("webhook for unknown payment",
			zap.String("event_id", evt.ID),
			zap.String("remote_id", evt.Links.Payment),
		)
		return paymentdomain.EventStatusNotFound, nil
	}
	if err != nil {
		return "", err
	}

	if transition.Stale(current.RemoteState) {
		ctxlogger.WithContext(ctx, s.log).Info("stale payment webhook",
			zap.String("event_id", evt.ID),
			zap.String("action", evt.Action),
			zap.String("remote_state", current.RemoteState),
		)
		return paymentdomain.EventStatusUnchanged, nil
	}

	state := transition.State
	if state == "" {
		state = current.State
	}
	updated, changed, err := s.payments.ApplyRemoteState(ctx, gatewayID, current.RemoteID, state, transition.RemoteState)
	if errors.Is(err, paymentdomain.ErrNotFound) {
		return paymentdomain.EventStatusNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if !changed {
		return paymentdomain.EventStatusUnchanged, nil
	}

	s.notify(ctx, Notification{
		Name:      EventName(evt.Action),
		GatewayID: gatewayID,
		EventID:   evt.ID,
		Action:    evt.Action,
		Previous:  current.State,
		Payment:   *updated,
	})
	return paymentdomain.EventStatusProcessed, nil
}

func (s *Service) applyMandate(ctx context.Context, gatewayID string, evt gocardless.Event) (string, error) {
	status, ok := MandateStatus(evt.Action)
	if !ok || evt.Links.Mandate == "" {
		return paymentdomain.EventStatusIgnored, nil
	}
	changed, err := s.mandates.ApplyStatus(ctx, gatewayID, evt.Links.Mandate, status)
	if errors.Is(err, mandatedomain.ErrNotFound) {
		return paymentdomain.EventStatusNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if !changed {
		return paymentdomain.EventStatusUnchanged, nil
	}
	return paymentdomain.EventStatusProcessed, nil
}

func (s *Service) wakeSchedule(ctx context.Context, gatewayID string, evt gocardless.Event) (string, error) {
	if s.instalments == nil || evt.Links.InstalmentSchedule == "" {
		return paymentdomain.EventStatusIgnored, nil
	}
	woken, err := s.instalments.Wake(ctx, gatewayID, evt.Links.InstalmentSchedule)
	if err != nil {
		return "", err
	}
	if !woken {
		return paymentdomain.EventStatusNotFound, nil
	}
	return paymentdomain.EventStatusProcessed, nil
}

func (s *Service) notify(ctx context.Context, n Notification) {
	for _, l := range s.listeners {
		l(ctx, n)
	}
}

func resourceID(evt gocardless.Event) string {
	switch evt.ResourceType {
	case gocardless.ResourcePayments:
		return evt.Links.Payment
	case gocardless.ResourceMandates:
		return evt.Links.Mandate
	case gocardless.ResourceInstalmentSchedules:
		return evt.Links.InstalmentSchedule
	default:
		return ""
	}
}
