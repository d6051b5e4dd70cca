package planner

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/directdebit/internal/checkout/domain"
	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/pkg/money"
)

// InstalmentSplit replaces the order's default payment with an instalment
// schedule when the gateway has an instalment policy and the total reaches
// its minimum. Other entries are left untouched.
func InstalmentSplit(ctx context.Context, order domain.Order, gw config.GatewaySettings, plan domain.Plan) (domain.Plan, error) {
	policy := gw.Instalments
	if policy == nil || policy.Count < 2 {
		return plan, nil
	}
	if strings.TrimSpace(policy.MinTotal) != "" {
		// Config validation rejects malformed thresholds; never split on one.
		minTotal, err := decimal.NewFromString(strings.TrimSpace(policy.MinTotal))
		if err != nil || order.Total.Amount.LessThan(minTotal) {
			return plan, nil
		}
	}

	total := order.Total.MinorUnits()
	if total < int64(policy.Count) {
		return plan, nil
	}

	intervalUnit := policy.IntervalUnit
	if intervalUnit == "" {
		intervalUnit = "monthly"
	}
	interval := policy.Interval
	if interval <= 0 {
		interval = 1
	}

	out := domain.Plan{Entries: make([]domain.PlanEntry, 0, len(plan.Entries))}
	for _, entry := range plan.Entries {
		if entry.Kind != domain.EntryPayment || entry.Payment == nil || entry.Payment.IdempotencyKey != PaymentKey(order.ID) {
			out.Entries = append(out.Entries, entry)
			continue
		}
		out.Entries = append(out.Entries, domain.NewScheduleEntry(domain.ScheduleEntry{
			Total:       money.FromMinorUnits(total, order.Total.Currency),
			Name:        "Order " + order.Number,
			Description: "Instalments for " + order.Number,
			Instalments: domain.Instalments{
				Amounts:      money.Split(total, policy.Count),
				IntervalUnit: intervalUnit,
				Interval:     interval,
				DayOfMonth:   policy.DayOfMonth,
			},
			Metadata:       map[string]string{},
			IdempotencyKey: ScheduleKey(order.ID),
		}))
	}
	return out, nil
}
