package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/directdebit/internal/checkout/domain"
	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func order(total string) domain.Order {
	return domain.Order{ID: "1001", Number: "SO-1001", Total: money.MustPrice(total, "GBP")}
}

func TestDefaultPlanIsSinglePayment(t *testing.T) {
	p := New(zap.NewNop())

	plan, err := p.Plan(context.Background(), order("49.99"), config.GatewaySettings{ID: "gocardless"})
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)

	entry := plan.Entries[0]
	assert.Equal(t, domain.EntryPayment, entry.Kind)
	assert.Equal(t, int64(4999), entry.Payment.Price.MinorUnits())
	assert.Equal(t, "Payment for SO-1001", entry.Payment.Description)
	assert.Equal(t, "payment-for-order-1001", entry.Payment.IdempotencyKey)
}

func TestIdempotencyKeysDependOnlyOnOrderIdentity(t *testing.T) {
	p := NewFromParams(Params{Log: zap.NewNop()})
	gw := config.GatewaySettings{ID: "gocardless"}

	first, err := p.Plan(context.Background(), order("10.00"), gw)
	require.NoError(t, err)
	changed := order("99.00")
	changed.Number = "renamed"
	second, err := p.Plan(context.Background(), changed, gw)
	require.NoError(t, err)

	assert.Equal(t, first.Entries[0].Payment.IdempotencyKey, second.Entries[0].Payment.IdempotencyKey)
}

func TestTransformersRunInOrderOnCopies(t *testing.T) {
	var seen []string
	appendEntry := func(name string) domain.NamedTransformer {
		return domain.NamedTransformer{Name: name, Transform: func(ctx context.Context, o domain.Order, gw config.GatewaySettings, plan domain.Plan) (domain.Plan, error) {
			seen = append(seen, name)
			plan.Entries[0].Payment.Description = "mutated by " + name
			plan.Entries = append(plan.Entries, domain.NewPaymentEntry(domain.PaymentEntry{
				Price: money.MustPrice("1.00", "GBP"), Description: name,
			}))
			return plan, nil
		}}
	}
	p := New(zap.NewNop(), appendEntry("first"), appendEntry("second"))

	plan, err := p.Plan(context.Background(), order("5.00"), config.GatewaySettings{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, seen)
	require.Len(t, plan.Entries, 3)
	assert.Equal(t, "mutated by second", plan.Entries[0].Payment.Description)
	assert.Equal(t, "first", plan.Entries[1].Payment.Description)
	assert.Equal(t, "second", plan.Entries[2].Payment.Description)
}

func TestTransformerErrorAbortsPlanning(t *testing.T) {
	boom := errors.New("boom")
	p := New(zap.NewNop(), domain.NamedTransformer{Name: "broken", Transform: func(context.Context, domain.Order, config.GatewaySettings, domain.Plan) (domain.Plan, error) {
		return domain.Plan{}, boom
	}})
	_, err := p.Plan(context.Background(), order("5.00"), config.GatewaySettings{})
	assert.ErrorIs(t, err, boom)
}

func TestMalformedEntryIsRejected(t *testing.T) {
	p := New(zap.NewNop(), domain.NamedTransformer{Name: "bad", Transform: func(ctx context.Context, o domain.Order, gw config.GatewaySettings, plan domain.Plan) (domain.Plan, error) {
		plan.Entries = append(plan.Entries, domain.PlanEntry{Kind: domain.EntryInstalmentSchedule})
		return plan, nil
	}})
	_, err := p.Plan(context.Background(), order("5.00"), config.GatewaySettings{})
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)
}

func TestInvalidOrder(t *testing.T) {
	p := New(zap.NewNop())
	_, err := p.Plan(context.Background(), domain.Order{Total: money.MustPrice("1", "GBP")}, config.GatewaySettings{})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	bad := order("1.00")
	bad.Total.Currency = "pounds"
	_, err = p.Plan(context.Background(), bad, config.GatewaySettings{})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestInstalmentSplit(t *testing.T) {
	gw := config.GatewaySettings{ID: "gocardless", Instalments: &config.InstalmentPolicy{Count: 3, MinTotal: "50.00"}}
	p := NewFromParams(Params{Log: zap.NewNop()})

	small, err := p.Plan(context.Background(), order("49.99"), gw)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryPayment, small.Entries[0].Kind)

	plan, err := p.Plan(context.Background(), order("100.00"), gw)
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	schedule := plan.Entries[0].Schedule
	require.NotNil(t, schedule)
	assert.Equal(t, domain.EntryInstalmentSchedule, plan.Entries[0].Kind)
	assert.Equal(t, []int64{3334, 3333, 3333}, schedule.Instalments.Amounts)
	assert.Equal(t, int64(10000), schedule.Total.MinorUnits())
	assert.Equal(t, "monthly", schedule.Instalments.IntervalUnit)
	assert.Equal(t, 1, schedule.Instalments.Interval)
	assert.Equal(t, "instalment-schedule-for-order-1001", schedule.IdempotencyKey)
}

func TestMalformedMinTotalNeverSplits(t *testing.T) {
	gw := config.GatewaySettings{ID: "gocardless", Instalments: &config.InstalmentPolicy{Count: 3, MinTotal: "1,000"}}
	p := NewFromParams(Params{Log: zap.NewNop()})

	plan, err := p.Plan(context.Background(), order("100.00"), gw)
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	assert.Equal(t, domain.EntryPayment, plan.Entries[0].Kind)
}
