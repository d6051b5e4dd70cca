package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/directdebit/internal/checkout/domain"
	"github.com/smallbiznis/directdebit/internal/gateway"
	"github.com/smallbiznis/directdebit/internal/gocardless"
	instalmentdomain "github.com/smallbiznis/directdebit/internal/instalment/domain"
	obsmetrics "github.com/smallbiznis/directdebit/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/directdebit/internal/payment/domain"
	"github.com/smallbiznis/directdebit/pkg/log/ctxlogger"
	"github.com/smallbiznis/directdebit/pkg/money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TaskQueue accepts schedules that were not active at checkout.
type TaskQueue interface {
	Enqueue(ctx context.Context, req instalmentdomain.EnqueueRequest) (*instalmentdomain.Task, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Payments paymentdomain.Service
	Queue    TaskQueue
}

type Orchestrator struct {
	log      *zap.Logger
	payments paymentdomain.Service
	queue    TaskQueue
	tracer   trace.Tracer
	metrics  *obsmetrics.DirectDebitMetrics
}

func New(p Params) *Orchestrator {
	return &Orchestrator{
		log:      p.Log.Named("checkout.orchestrator"),
		payments: p.Payments,
		queue:    p.Queue,
		tracer:   otel.Tracer("directdebit/checkout"),
		metrics:  obsmetrics.DirectDebit(),
	}
}

type Request struct {
	Gateway         *gateway.Gateway
	Order           domain.Order
	MandateRemoteID string
	// Currency is the currency the mandate collects in; empty skips the check.
	Currency string
	Plan     domain.Plan
}

type Result struct {
	Payments        []paymentdomain.Payment `json:"payments"`
	QueuedSchedules []string                `json:"queued_schedules"`
	Skipped         int                     `json:"skipped"`
}

// Execute runs plan entries in order. The first remote failure stops execution;
// entries created before it stay in place and are reused on retry through
// their idempotency keys.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (Result, error) {
	if req.Gateway == nil || req.Gateway.Client == nil {
		return Result{}, errors.New("orchestrator: gateway is required")
	}
	if req.MandateRemoteID == "" {
		return Result{}, domain.Decline(domain.MissingMandateMessage, domain.ErrMissingMandate)
	}

	ctx, span := o.tracer.Start(ctx, "checkout.execute_plan", trace.WithAttributes(
		attribute.String("gateway_id", req.Gateway.ID()),
		attribute.String("order_id", req.Order.ID),
		attribute.Int("plan.entries", len(req.Plan.Entries)),
	))
	defer span.End()

	result := Result{Payments: []paymentdomain.Payment{}, QueuedSchedules: []string{}}
	for i, entry := range req.Plan.Entries {
		var err error
		switch entry.Kind {
		case domain.EntryPayment:
			err = o.executePayment(ctx, req, entry.Payment, &result)
		case domain.EntryInstalmentSchedule:
			err = o.executeSchedule(ctx, req, entry.Schedule, &result)
		default:
			err = fmt.Errorf("%w: unknown entry kind %q", domain.ErrInvalidPlan, entry.Kind)
		}
		if err != nil {
			o.metrics.IncPlanEntry(string(entry.Kind), obsmetrics.PlanEntryFailed)
			span.RecordError(err)
			ctxlogger.WithContext(ctx, o.log).Warn("plan execution stopped",
				zap.String("order_id", req.Order.ID),
				zap.Int("entry", i),
				zap.String("kind", string(entry.Kind)),
				zap.Error(err),
			)
			return result, err
		}
	}
	return result, nil
}

func (o *Orchestrator) executePayment(ctx context.Context, req Request, entry *domain.PaymentEntry, result *Result) error {
	if entry == nil {
		return domain.ErrInvalidPlan
	}
	currency, err := checkCurrency(req.Currency, entry.Price.Currency)
	if err != nil {
		return err
	}
	amount := entry.Price.MinorUnits()
	if amount <= 0 {
		result.Skipped++
		o.metrics.IncPlanEntry(string(domain.EntryPayment), obsmetrics.PlanEntrySkipped)
		return nil
	}

	remote, err := req.Gateway.Client.CreatePayment(ctx, gocardless.CreatePaymentParams{
		Amount:      amount,
		Currency:    currency,
		Description: entry.Description,
		Metadata:    entry.Metadata,
		Links:       gocardless.PaymentLinks{Mandate: req.MandateRemoteID},
	}, entry.IdempotencyKey)
	if err != nil {
		return Classify(err)
	}

	payment, _, err := o.payments.RecordRemote(ctx, req.Gateway.ID(), req.Order.ID, remote)
	if err != nil {
		return err
	}
	result.Payments = append(result.Payments, *payment)
	o.metrics.IncPlanEntry(string(domain.EntryPayment), obsmetrics.PlanEntryCreated)
	return nil
}

func (o *Orchestrator) executeSchedule(ctx context.Context, req Request, entry *domain.ScheduleEntry, result *Result) error {
	if entry == nil {
		return domain.ErrInvalidPlan
	}
	currency, err := checkCurrency(req.Currency, entry.Total.Currency)
	if err != nil {
		return err
	}
	total := entry.Total.MinorUnits()
	if total <= 0 {
		result.Skipped++
		o.metrics.IncPlanEntry(string(domain.EntryInstalmentSchedule), obsmetrics.PlanEntrySkipped)
		return nil
	}

	metadata := map[string]string{}
	for k, v := range entry.Metadata {
		metadata[k] = v
	}
	metadata["order"] = req.Order.ID

	client := req.Gateway.Client
	created, err := client.CreateInstalmentSchedule(ctx, gocardless.CreateInstalmentScheduleParams{
		Name:        entry.Name,
		TotalAmount: total,
		Currency:    currency,
		Instalments: gocardless.Instalments{
			Amounts:      entry.Instalments.Amounts,
			StartDate:    entry.Instalments.StartDate,
			IntervalUnit: entry.Instalments.IntervalUnit,
			Interval:     entry.Instalments.Interval,
			DayOfMonth:   entry.Instalments.DayOfMonth,
		},
		Metadata: metadata,
		Links:    gocardless.InstalmentScheduleLinks{Mandate: req.MandateRemoteID},
	}, entry.IdempotencyKey)
	if err != nil {
		return Classify(err)
	}

	// The creation response may not list the linked payments yet.
	schedule, err := client.GetInstalmentSchedule(ctx, created.ID)
	if err != nil {
		return Classify(err)
	}

	switch schedule.Status {
	case gocardless.ScheduleStatusActive, gocardless.ScheduleStatusCompleted:
		payments, err := o.payments.MaterializeSchedule(ctx, client, req.Gateway.ID(), req.Order.ID, schedule)
		if err != nil {
			if IsRemote(err) {
				return Classify(err)
			}
			return err
		}
		result.Payments = append(result.Payments, payments...)
		o.metrics.IncPlanEntry(string(domain.EntryInstalmentSchedule), obsmetrics.PlanEntryCreated)
		return nil
	case gocardless.ScheduleStatusCreationFailed, gocardless.ScheduleStatusCancelled, gocardless.ScheduleStatusErrored:
		return domain.Decline("The instalment schedule could not be created",
			fmt.Errorf("schedule %s is %s", schedule.ID, schedule.Status))
	}

	if o.queue == nil {
		return errors.New("orchestrator: instalment queue is not configured")
	}
	if _, err := o.queue.Enqueue(ctx, instalmentdomain.EnqueueRequest{
		GatewayID:       req.Gateway.ID(),
		OrderID:         req.Order.ID,
		ScheduleID:      schedule.ID,
		MandateRemoteID: req.MandateRemoteID,
		Currency:        currency,
	}); err != nil {
		return err
	}
	result.QueuedSchedules = append(result.QueuedSchedules, schedule.ID)
	o.metrics.IncPlanEntry(string(domain.EntryInstalmentSchedule), obsmetrics.PlanEntryQueued)
	return nil
}

// checkCurrency returns the normalized entry currency, declining when it is
// malformed or differs from the one the mandate collects in.
func checkCurrency(expected, actual string) (string, error) {
	currency, err := money.NormalizeCurrency(actual)
	if err != nil {
		return "", domain.Decline("The order currency is not supported", fmt.Errorf("currency %q: %w", actual, err))
	}
	if strings.TrimSpace(expected) == "" {
		return currency, nil
	}
	want, err := money.NormalizeCurrency(expected)
	if err != nil || want != currency {
		return "", domain.Decline("The order currency does not match the mandate",
			fmt.Errorf("currency %s, mandate collects %s", currency, expected))
	}
	return currency, nil
}

// Classify maps processor failures onto transient failures and hard declines.
// Rejected credentials are a configuration error, not a decline.
func Classify(err error) error {
	if gocardless.IsTransient(err) {
		return &domain.TransientError{Err: err}
	}
	if gocardless.IsAuthFailure(err) {
		return fmt.Errorf("%w: %w", gateway.ErrMissingCredentials, err)
	}
	reason := "The payment was declined"
	var apiErr *gocardless.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		reason = apiErr.Message
	}
	return domain.Decline(reason, err)
}

// IsRemote reports whether err came from the processor or the network.
func IsRemote(err error) bool {
	var apiErr *gocardless.APIError
	return gocardless.IsTransient(err) || errors.As(err, &apiErr)
}
