package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/directdebit/internal/checkout/domain"
	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PaymentKey is the idempotency key of an order's single payment.
func PaymentKey(orderID string) string {
	return "payment-for-order-" + orderID
}

// ScheduleKey is the idempotency key of an order's instalment schedule.
func ScheduleKey(orderID string) string {
	return "instalment-schedule-for-order-" + orderID
}

type Params struct {
	fx.In

	Log          *zap.Logger
	Transformers []domain.NamedTransformer `group:"checkout.transformers"`
}

type Planner struct {
	log          *zap.Logger
	names        []string
	transformers []domain.Transformer
}

// New builds a planner that applies transformers in order.
func New(log *zap.Logger, transformers ...domain.NamedTransformer) *Planner {
	p := &Planner{log: log.Named("checkout.planner")}
	for _, t := range transformers {
		if t.Transform == nil {
			continue
		}
		p.names = append(p.names, t.Name)
		p.transformers = append(p.transformers, t.Transform)
	}
	return p
}

// NewFromParams registers the built-in instalment split ahead of any grouped transformers.
func NewFromParams(p Params) *Planner {
	transformers := append([]domain.NamedTransformer{
		{Name: "instalment_split", Transform: InstalmentSplit},
	}, p.Transformers...)
	return New(p.Log, transformers...)
}

// Plan returns the remote operations needed to collect the order total.
// The result depends only on the order, the gateway settings and the transformers.
func (p *Planner) Plan(ctx context.Context, order domain.Order, gw config.GatewaySettings) (domain.Plan, error) {
	order, err := normalizeOrder(order)
	if err != nil {
		return domain.Plan{}, err
	}

	plan := domain.Plan{Entries: []domain.PlanEntry{
		domain.NewPaymentEntry(domain.PaymentEntry{
			Price:          order.Total,
			Description:    "Payment for " + order.Number,
			IdempotencyKey: PaymentKey(order.ID),
		}),
	}}

	for i, transform := range p.transformers {
		next, err := transform(ctx, order, gw, plan.Clone())
		if err != nil {
			return domain.Plan{}, fmt.Errorf("transformer %s: %w", p.names[i], err)
		}
		plan = next
	}

	for _, entry := range plan.Entries {
		if !entry.Valid() {
			return domain.Plan{}, fmt.Errorf("%w: malformed %q entry", domain.ErrInvalidPlan, entry.Kind)
		}
	}

	p.log.Debug("checkout plan ready",
		zap.String("order_id", order.ID),
		zap.String("gateway_id", gw.ID),
		zap.Int("entries", len(plan.Entries)),
	)
	return plan, nil
}

func normalizeOrder(order domain.Order) (domain.Order, error) {
	order.ID = strings.TrimSpace(order.ID)
	if order.ID == "" {
		return domain.Order{}, domain.ErrInvalidOrder
	}
	order.Number = strings.TrimSpace(order.Number)
	if order.Number == "" {
		order.Number = order.ID
	}
	currency, err := money.NormalizeCurrency(order.Total.Currency)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrInvalidOrder, err)
	}
	order.Total.Currency = currency
	return order, nil
}
