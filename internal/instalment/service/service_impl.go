package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/clock"
	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/internal/gateway"
	"github.com/smallbiznis/directdebit/internal/instalment/domain"
	obsmetrics "github.com/smallbiznis/directdebit/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/directdebit/internal/payment/domain"
	"github.com/smallbiznis/directdebit/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Gateways *gateway.Registry
	Payments paymentdomain.Service
	Policy   domain.Policy
	Clock    clock.Clock `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	poller  *Poller
	policy  domain.Policy
	clock   clock.Clock
	metrics *obsmetrics.DirectDebitMetrics
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("instalment.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		poller:  NewPoller(p.Gateways, p.Payments),
		policy:  p.Policy,
		clock:   clk,
		metrics: obsmetrics.DirectDebit(),
	}
}

// PolicyFromConfig builds the retry policy from poller settings. Non-positive
// delays fall back to the defaults.
func PolicyFromConfig(cfg config.Config) domain.Policy {
	policy := domain.Policy{
		MaxAttempts: cfg.Poller.MaxAttempts,
		BaseDelay:   cfg.Poller.BaseBackoff,
		MaxDelay:    cfg.Poller.MaxBackoff,
	}
	defaults := domain.DefaultPolicy()
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaults.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaults.MaxDelay
	}
	return policy
}

// Enqueue stores a pending poll task, due after the first backoff step. It is a no-op for known schedules.
func (s *Service) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.Task, error) {
	if strings.TrimSpace(req.GatewayID) == "" || strings.TrimSpace(req.ScheduleID) == "" || strings.TrimSpace(req.OrderID) == "" {
		return nil, domain.ErrInvalidTask
	}
	now := s.clock.Now()
	task := &domain.Task{
		ID:              s.genID.Generate(),
		GatewayID:       req.GatewayID,
		OrderID:         req.OrderID,
		ScheduleID:      req.ScheduleID,
		MandateRemoteID: req.MandateRemoteID,
		Currency:        strings.ToUpper(req.Currency),
		Status:          domain.StatusPending,
		NextAttemptAt:   now.Add(s.policy.Backoff(1)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	inserted, err := s.repo.Enqueue(ctx, s.db, task)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return s.repo.FindBySchedule(ctx, s.db, req.GatewayID, req.ScheduleID)
	}

	ctxlogger.WithContext(ctx, s.log).Info("instalment schedule poll queued",
		zap.String("gateway_id", task.GatewayID),
		zap.String("order_id", task.OrderID),
		zap.String("schedule_id", task.ScheduleID),
		zap.Time("next_attempt_at", task.NextAttemptAt),
	)
	return task, nil
}

// Wake makes the schedule's pending task due now, typically after a webhook.
func (s *Service) Wake(ctx context.Context, gatewayID string, scheduleID string) (bool, error) {
	return s.repo.WakeBySchedule(ctx, s.db, gatewayID, scheduleID, s.clock.Now())
}

func (s *Service) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]domain.Task, error) {
	now := s.clock.Now()
	return s.repo.ClaimDue(ctx, s.db, now, now.Add(lease), limit)
}

// Process polls one task and persists the outcome. The returned error is the
// poll error, or a storage error when the outcome could not be written.
func (s *Service) Process(ctx context.Context, task domain.Task) (domain.Outcome, error) {
	outcome, pollErr := s.poller.Poll(ctx, task)
	attempts := task.Attempts + 1
	now := s.clock.Now()
	log := ctxlogger.WithContext(ctx, s.log).With(
		zap.String("gateway_id", task.GatewayID),
		zap.String("schedule_id", task.ScheduleID),
		zap.Int("attempts", attempts),
	)

	if outcome == domain.OutcomeRetry && s.policy.Exhausted(attempts) {
		outcome = domain.OutcomeFailed
		if pollErr == nil {
			pollErr = domain.ErrScheduleFailed
		}
		log.Warn("instalment schedule poll attempts exhausted")
	}

	var storeErr error
	switch outcome {
	case domain.OutcomeDone:
		storeErr = s.repo.MarkDone(ctx, s.db, task.ID, attempts, now)
		log.Info("instalment schedule materialized")
	case domain.OutcomeFailed:
		storeErr = s.repo.MarkFailed(ctx, s.db, task.ID, attempts, errorText(pollErr), now)
		log.Error("instalment schedule poll failed", zap.Error(pollErr))
	default:
		next := now.Add(s.policy.Backoff(attempts))
		storeErr = s.repo.Reschedule(ctx, s.db, task.ID, attempts, next, errorText(pollErr), now)
		if pollErr != nil {
			log.Warn("instalment schedule poll will retry", zap.Error(pollErr), zap.Time("next_attempt_at", next))
		} else {
			log.Debug("instalment schedule not active yet", zap.Time("next_attempt_at", next))
		}
	}
	s.metrics.IncSchedulePoll(string(outcome))

	if storeErr != nil {
		return outcome, errors.Join(pollErr, storeErr)
	}
	if outcome == domain.OutcomeRetry {
		return outcome, nil
	}
	return outcome, pollErr
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
