package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/clock"
	"github.com/smallbiznis/directdebit/internal/gateway"
	"github.com/smallbiznis/directdebit/internal/gocardless"
	"github.com/smallbiznis/directdebit/internal/mandate/domain"
	obsmetrics "github.com/smallbiznis/directdebit/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/directdebit/pkg/db"
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
	Clock    clock.Clock `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	gateways *gateway.Registry
	clock    clock.Clock
	metrics  *obsmetrics.DirectDebitMetrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("mandate.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		gateways: p.Gateways,
		clock:    clk,
		metrics:  obsmetrics.DirectDebit(),
	}
}

func (s *Service) BeginRedirectFlow(ctx context.Context, req domain.BeginRedirectRequest) (domain.RedirectFlow, error) {
	gw, err := s.gateways.Resolve(req.GatewayID)
	if err != nil {
		return domain.RedirectFlow{}, err
	}
	if strings.TrimSpace(req.SessionToken) == "" || strings.TrimSpace(req.SuccessRedirectURL) == "" {
		return domain.RedirectFlow{}, domain.ErrInvalidFlow
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = gw.Settings.Description
	}

	flow, err := gw.Client.CreateRedirectFlow(ctx, gocardless.CreateRedirectFlowParams{
		Description:        description,
		SessionToken:       req.SessionToken,
		SuccessRedirectURL: req.SuccessRedirectURL,
		Scheme:             req.Scheme,
		PrefilledCustomer:  prefilledCustomer(req.Customer),
	})
	if err != nil {
		return domain.RedirectFlow{}, fmt.Errorf("create redirect flow: %w", err)
	}

	ctxlogger.WithContext(ctx, s.log).Info("redirect flow started",
		zap.String("gateway_id", gw.ID()),
		zap.String("order_id", req.OrderID),
		zap.String("flow_id", flow.ID),
	)
	return domain.RedirectFlow{FlowID: flow.ID, RedirectURL: flow.RedirectURL}, nil
}

func (s *Service) CreateFromRedirectFlow(ctx context.Context, req domain.CompleteRedirectRequest) (*domain.Mandate, error) {
	gw, err := s.gateways.Resolve(req.GatewayID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FlowID) == "" {
		return nil, domain.ErrInvalidFlow
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, domain.ErrInvalidOwner
	}

	flow, err := gw.Client.CompleteRedirectFlow(ctx, req.FlowID, req.SessionToken)
	if gocardless.IsInvalidState(err) {
		// Already completed, e.g. the customer reloaded the return page.
		flow, err = gw.Client.GetRedirectFlow(ctx, req.FlowID)
	}
	if gocardless.IsNotFound(err) {
		return nil, fmt.Errorf("%w: redirect flow %s is unknown to the processor", domain.ErrInvalidFlow, req.FlowID)
	}
	if err != nil {
		return nil, fmt.Errorf("complete redirect flow: %w", err)
	}
	remoteID := strings.TrimSpace(flow.Links.Mandate)
	if remoteID == "" {
		return nil, domain.ErrInvalidMandate
	}

	existing, err := s.repo.FindByRemoteID(ctx, s.db, gw.ID(), remoteID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	remote, err := gw.Client.GetMandate(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("fetch mandate: %w", err)
	}
	status, ok := domain.ParseStatus(remote.Status)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, remote.Status)
	}

	now := s.clock.Now()
	mandate := &domain.Mandate{
		ID:                  s.genID.Generate(),
		OwnerID:             strings.TrimSpace(req.OwnerID),
		InitOrderID:         strings.TrimSpace(req.OrderID),
		GatewayID:           gw.ID(),
		RemoteID:            remoteID,
		Scheme:              remote.Scheme,
		Status:              status,
		RemoteCustomerID:    firstNonEmpty(flow.Links.Customer, remote.Links.Customer),
		RemoteBankAccountID: firstNonEmpty(flow.Links.CustomerBankAccount, remote.Links.CustomerBankAccount),
		Sandbox:             gw.Sandbox(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Insert(ctx, s.db, mandate); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			// Lost a race with a concurrent completion of the same flow.
			return s.repo.FindByRemoteID(ctx, s.db, gw.ID(), remoteID)
		}
		return nil, err
	}

	s.metrics.IncMandate(mandate.Scheme)
	ctxlogger.WithContext(ctx, s.log).Info("mandate created",
		zap.String("gateway_id", gw.ID()),
		zap.String("mandate_id", mandate.ID.String()),
		zap.String("remote_id", remoteID),
		zap.String("status", string(status)),
	)
	return mandate, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Mandate, error) {
	mandate, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if mandate == nil {
		return nil, domain.ErrNotFound
	}
	return mandate, nil
}

func (s *Service) GetByRemoteID(ctx context.Context, gatewayID string, remoteID string) (*domain.Mandate, error) {
	mandate, err := s.repo.FindByRemoteID(ctx, s.db, strings.ToLower(strings.TrimSpace(gatewayID)), strings.TrimSpace(remoteID))
	if err != nil {
		return nil, err
	}
	if mandate == nil {
		return nil, domain.ErrNotFound
	}
	return mandate, nil
}

func (s *Service) Refresh(ctx context.Context, id snowflake.ID) (*domain.Mandate, error) {
	mandate, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateways.Resolve(mandate.GatewayID)
	if err != nil {
		return nil, err
	}

	remote, err := gw.Client.GetMandate(ctx, mandate.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("fetch mandate: %w", err)
	}
	status, ok := domain.ParseStatus(remote.Status)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, remote.Status)
	}
	scheme := remote.Scheme
	if scheme == "" {
		scheme = mandate.Scheme
	}

	now := s.clock.Now()
	changed, err := s.repo.UpdateRemote(ctx, s.db, mandate.ID, status, scheme, now)
	if err != nil {
		return nil, err
	}
	if changed {
		mandate.Status = status
		mandate.Scheme = scheme
		mandate.UpdatedAt = now
	}
	return mandate, nil
}

func (s *Service) ApplyStatus(ctx context.Context, gatewayID string, remoteID string, status domain.Status) (bool, error) {
	if _, ok := domain.ParseStatus(string(status)); !ok {
		return false, domain.ErrInvalidStatus
	}
	mandate, err := s.GetByRemoteID(ctx, gatewayID, remoteID)
	if err != nil {
		return false, err
	}
	return s.repo.UpdateStatus(ctx, s.db, mandate.ID, status, s.clock.Now())
}

// Describe returns "holder, bank, account number ending NN" for display.
func (s *Service) Describe(ctx context.Context, id snowflake.ID) (string, error) {
	mandate, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	gw, err := s.gateways.Resolve(mandate.GatewayID)
	if err != nil {
		return "", err
	}

	accountID := mandate.RemoteBankAccountID
	if accountID == "" {
		remote, err := gw.Client.GetMandate(ctx, mandate.RemoteID)
		if err != nil {
			s.logDescribeFailure(ctx, mandate, err)
			return domain.InvalidDescription, nil
		}
		accountID = remote.Links.CustomerBankAccount
	}
	if accountID == "" {
		return "", nil
	}

	account, err := gw.Client.GetCustomerBankAccount(ctx, accountID)
	if err != nil {
		s.logDescribeFailure(ctx, mandate, err)
		return domain.InvalidDescription, nil
	}
	return fmt.Sprintf("%s, %s, account number ending %s",
		account.AccountHolderName,
		account.BankName,
		account.AccountNumberEnding,
	), nil
}

func (s *Service) logDescribeFailure(ctx context.Context, mandate *domain.Mandate, err error) {
	ctxlogger.WithContext(ctx, s.log).Warn("describe mandate failed",
		zap.String("mandate_id", mandate.ID.String()),
		zap.String("remote_id", mandate.RemoteID),
		zap.Error(err),
	)
}

// AssertUsable rejects mandates from the other environment or in a terminal status.
func (s *Service) AssertUsable(mandate *domain.Mandate, gw *gateway.Gateway) error {
	if mandate == nil || mandate.RemoteID == "" {
		return domain.ErrInvalidMandate
	}
	if gw == nil {
		return errors.New("gateway is required")
	}
	if mandate.GatewayID != gw.ID() || mandate.Sandbox != gw.Sandbox() {
		return domain.ErrEnvironmentMismatch
	}
	if mandate.Status.Terminal() {
		return fmt.Errorf("%w: %s", domain.ErrMandateInactive, mandate.Status)
	}
	return nil
}

func prefilledCustomer(c domain.Customer) *gocardless.PrefilledCustomer {
	if c == (domain.Customer{}) {
		return nil
	}
	return &gocardless.PrefilledCustomer{
		GivenName:    c.GivenName,
		FamilyName:   c.FamilyName,
		CompanyName:  c.CompanyName,
		Email:        c.Email,
		AddressLine1: c.AddressLine1,
		AddressLine2: c.AddressLine2,
		City:         c.City,
		Region:       c.Region,
		PostalCode:   c.PostalCode,
		CountryCode:  c.CountryCode,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
