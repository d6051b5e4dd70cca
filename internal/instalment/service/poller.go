package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/directdebit/internal/gateway"
	"github.com/smallbiznis/directdebit/internal/gocardless"
	"github.com/smallbiznis/directdebit/internal/instalment/domain"
	paymentdomain "github.com/smallbiznis/directdebit/internal/payment/domain"
)

// Poller re-fetches one schedule and decides what happens to its task.
type Poller struct {
	gateways *gateway.Registry
	payments paymentdomain.Service
}

func NewPoller(gateways *gateway.Registry, payments paymentdomain.Service) *Poller {
	return &Poller{gateways: gateways, payments: payments}
}

// Poll materializes the schedule's payments once it is active. Pending schedules
// return OutcomeRetry with a nil error; failed or cancelled schedules return
// OutcomeFailed wrapping ErrScheduleFailed.
func (p *Poller) Poll(ctx context.Context, task domain.Task) (domain.Outcome, error) {
	gw, err := p.gateways.Resolve(task.GatewayID)
	if err != nil {
		// Gateway config is hot-reloaded, so a broken entry may be fixed before the policy gives up.
		return domain.OutcomeRetry, err
	}

	schedule, err := gw.Client.GetInstalmentSchedule(ctx, task.ScheduleID)
	if err != nil {
		return remoteOutcome(err), fmt.Errorf("fetch instalment schedule: %w", err)
	}

	switch schedule.Status {
	case gocardless.ScheduleStatusActive, gocardless.ScheduleStatusCompleted:
		if _, err := p.payments.MaterializeSchedule(ctx, gw.Client, gw.ID(), task.OrderID, schedule); err != nil {
			if isRemote(err) {
				return remoteOutcome(err), err
			}
			return domain.OutcomeRetry, err
		}
		return domain.OutcomeDone, nil
	case gocardless.ScheduleStatusCreationFailed, gocardless.ScheduleStatusCancelled, gocardless.ScheduleStatusErrored:
		return domain.OutcomeFailed, fmt.Errorf("%w: schedule %s is %s", domain.ErrScheduleFailed, schedule.ID, schedule.Status)
	default:
		return domain.OutcomeRetry, nil
	}
}

func remoteOutcome(err error) domain.Outcome {
	if gocardless.IsTransient(err) {
		return domain.OutcomeRetry
	}
	return domain.OutcomeFailed
}

func isRemote(err error) bool {
	var apiErr *gocardless.APIError
	return gocardless.IsTransient(err) || errors.As(err, &apiErr)
}
