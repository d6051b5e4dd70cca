package domain

import (
	"context"
	"maps"
	"slices"

	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/pkg/money"
)

// Order is the caller-supplied view of the order being paid.
type Order struct {
	ID      string      `json:"id"`
	Number  string      `json:"number"`
	OwnerID string      `json:"owner_id"`
	Total   money.Price `json:"total"`
}

type EntryKind string

const (
	EntryPayment            EntryKind = "payment"
	EntryInstalmentSchedule EntryKind = "instalment_schedule"
)

type PaymentEntry struct {
	Price          money.Price
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Instalments describes the cadence of a schedule in minor units.
type Instalments struct {
	Amounts      []int64
	StartDate    string
	IntervalUnit string
	Interval     int
	DayOfMonth   int
}

type ScheduleEntry struct {
	Total          money.Price
	Name           string
	Description    string
	Instalments    Instalments
	Metadata       map[string]string
	IdempotencyKey string
}

// PlanEntry is a tagged variant: exactly one of Payment or Schedule is set, matching Kind.
type PlanEntry struct {
	Kind     EntryKind
	Payment  *PaymentEntry
	Schedule *ScheduleEntry
}

func NewPaymentEntry(entry PaymentEntry) PlanEntry {
	return PlanEntry{Kind: EntryPayment, Payment: &entry}
}

func NewScheduleEntry(entry ScheduleEntry) PlanEntry {
	return PlanEntry{Kind: EntryInstalmentSchedule, Schedule: &entry}
}

func (e PlanEntry) Valid() bool {
	switch e.Kind {
	case EntryPayment:
		return e.Payment != nil && e.Schedule == nil
	case EntryInstalmentSchedule:
		return e.Schedule != nil && e.Payment == nil
	default:
		return false
	}
}

// Plan is the ordered list of remote operations for one checkout. It is never stored.
type Plan struct {
	Entries []PlanEntry
}

// Clone deep-copies the plan so transformers cannot alias each other's state.
func (p Plan) Clone() Plan {
	out := Plan{Entries: make([]PlanEntry, 0, len(p.Entries))}
	for _, entry := range p.Entries {
		copied := PlanEntry{Kind: entry.Kind}
		if entry.Payment != nil {
			payment := *entry.Payment
			payment.Metadata = maps.Clone(payment.Metadata)
			copied.Payment = &payment
		}
		if entry.Schedule != nil {
			schedule := *entry.Schedule
			schedule.Instalments.Amounts = slices.Clone(schedule.Instalments.Amounts)
			schedule.Metadata = maps.Clone(schedule.Metadata)
			copied.Schedule = &schedule
		}
		out.Entries = append(out.Entries, copied)
	}
	return out
}

// Transformer receives a copy of the plan and returns the plan to continue with.
// Transformers run in registration order; an error aborts planning.
type Transformer func(ctx context.Context, order Order, gateway config.GatewaySettings, plan Plan) (Plan, error)

// NamedTransformer is the fx group value for checkout transformers.
type NamedTransformer struct {
	Name      string
	Transform Transformer
}
