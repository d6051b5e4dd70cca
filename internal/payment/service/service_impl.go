package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/clock"
	"github.com/smallbiznis/directdebit/internal/gocardless"
	paymentdomain "github.com/smallbiznis/directdebit/internal/payment/domain"
	"github.com/smallbiznis/directdebit/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  paymentdomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  paymentdomain.Repository
	clock clock.Clock
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) RecordRemote(ctx context.Context, gatewayID string, orderID string, remote gocardless.Payment) (*paymentdomain.Payment, bool, error) {
	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:              s.genID.Generate(),
		OrderID:         strings.TrimSpace(orderID),
		GatewayID:       gatewayID,
		Amount:          remote.Amount,
		Currency:        remote.Currency,
		State:           paymentdomain.StatePendingCapture,
		RemoteID:        remote.ID,
		RemoteState:     remote.Status,
		MandateRemoteID: remote.Links.Mandate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := payment.Validate(); err != nil {
		return nil, false, err
	}

	inserted, err := s.repo.InsertIfAbsent(ctx, s.db, payment)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		existing, err := s.repo.FindByRemoteID(ctx, s.db, gatewayID, payment.RemoteID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("payment %s vanished after conflict", payment.RemoteID)
		}
		return existing, false, nil
	}

	ctxlogger.WithContext(ctx, s.log).Info("payment recorded",
		zap.String("gateway_id", gatewayID),
		zap.String("order_id", payment.OrderID),
		zap.String("payment_id", payment.ID.String()),
		zap.String("remote_id", payment.RemoteID),
		zap.String("remote_state", payment.RemoteState),
	)
	return payment, true, nil
}

func (s *Service) MaterializeSchedule(
	ctx context.Context,
	client gocardless.Client,
	gatewayID string,
	orderID string,
	schedule gocardless.InstalmentSchedule,
) ([]paymentdomain.Payment, error) {
	out := make([]paymentdomain.Payment, 0, len(schedule.Links.Payments))
	for _, remoteID := range schedule.Links.Payments {
		existing, err := s.repo.FindByRemoteID(ctx, s.db, gatewayID, remoteID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			out = append(out, *existing)
			continue
		}

		remote, err := client.GetPayment(ctx, remoteID)
		if err != nil {
			return nil, fmt.Errorf("fetch schedule payment %s: %w", remoteID, err)
		}
		payment, _, err := s.RecordRemote(ctx, gatewayID, orderID, remote)
		if err != nil {
			return nil, err
		}
		out = append(out, *payment)
	}
	return out, nil
}

func (s *Service) ApplyRemoteState(
	ctx context.Context,
	gatewayID string,
	remoteID string,
	state paymentdomain.State,
	remoteState string,
) (*paymentdomain.Payment, bool, error) {
	if !state.Valid() {
		return nil, false, paymentdomain.ErrInvalidState
	}
	payment, err := s.FindByRemoteID(ctx, gatewayID, remoteID)
	if err != nil {
		return nil, false, err
	}

	now := s.clock.Now()
	changed, err := s.repo.UpdateState(ctx, s.db, payment.ID, state, remoteState, now)
	if err != nil {
		return nil, false, err
	}
	if changed {
		payment.State = state
		payment.RemoteState = remoteState
		payment.UpdatedAt = now
	}
	return payment, changed, nil
}

func (s *Service) FindByRemoteID(ctx context.Context, gatewayID string, remoteID string) (*paymentdomain.Payment, error) {
	payment, err := s.repo.FindByRemoteID(ctx, s.db, gatewayID, strings.TrimSpace(remoteID))
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrNotFound
	}
	return payment, nil
}

func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]paymentdomain.Payment, error) {
	return s.repo.ListByOrder(ctx, s.db, strings.TrimSpace(orderID))
}
