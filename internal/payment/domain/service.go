package domain

import (
	"context"

	"github.com/smallbiznis/directdebit/internal/gocardless"
)

type Service interface {
	// RecordRemote stores a remote payment in pending_capture. Known remote ids return the stored record and false.
	RecordRemote(ctx context.Context, gatewayID string, orderID string, remote gocardless.Payment) (*Payment, bool, error)
	// MaterializeSchedule fetches every payment linked to an active schedule and records each once.
	MaterializeSchedule(ctx context.Context, client gocardless.Client, gatewayID string, orderID string, schedule gocardless.InstalmentSchedule) ([]Payment, error)
	ApplyRemoteState(ctx context.Context, gatewayID string, remoteID string, state State, remoteState string) (*Payment, bool, error)
	FindByRemoteID(ctx context.Context, gatewayID string, remoteID string) (*Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
}
