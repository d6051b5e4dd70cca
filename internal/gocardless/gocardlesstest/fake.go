// Package gocardlesstest provides an in-memory processor for tests.
package gocardlesstest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/smallbiznis/directdebit/internal/gocardless"
)

// Fake stores resources in maps. Set Err* fields to force failures.
type Fake struct {
	mu sync.Mutex

	Payments     map[string]gocardless.Payment
	Mandates     map[string]gocardless.Mandate
	Schedules    map[string]gocardless.InstalmentSchedule
	Flows        map[string]gocardless.RedirectFlow
	BankAccounts map[string]gocardless.CustomerBankAccount

	// ScheduleStatusOnCreate is the status new schedules start in; defaults to pending.
	ScheduleStatusOnCreate string

	ErrCreatePayment  error
	ErrCreateSchedule error
	ErrGetSchedule    error
	ErrGetMandate     error
	ErrCompleteFlow   error
	ErrBankAccount    error

	CreatedPayments   []gocardless.CreatePaymentParams
	CreatedSchedules  []gocardless.CreateInstalmentScheduleParams
	IdempotencyKeys   []string
	ScheduleFetches   int
	PaymentFetches    int
	CompleteFlowCalls int

	byKey map[string]string
	seq   int
}

var _ gocardless.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Payments:     map[string]gocardless.Payment{},
		Mandates:     map[string]gocardless.Mandate{},
		Schedules:    map[string]gocardless.InstalmentSchedule{},
		Flows:        map[string]gocardless.RedirectFlow{},
		BankAccounts: map[string]gocardless.CustomerBankAccount{},
		byKey:        map[string]string{},
	}
}

func NotFound(resource string) error {
	return &gocardless.APIError{StatusCode: http.StatusNotFound, Type: gocardless.ErrorTypeInvalidAPIUsage, Message: resource + " not found"}
}

func Outage() error {
	return &gocardless.APIError{StatusCode: http.StatusServiceUnavailable, Type: gocardless.ErrorTypeGoCardless, Message: "service unavailable"}
}

func Rejected(message string) error {
	return &gocardless.APIError{StatusCode: http.StatusUnprocessableEntity, Type: gocardless.ErrorTypeValidationFailed, Message: message}
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%04d", prefix, f.seq)
}

// SetScheduleStatus moves a schedule to status, creating linked payments when it activates.
func (f *Fake) SetScheduleStatus(id string, status string, amounts ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setScheduleStatus(id, status, amounts)
}

func (f *Fake) setScheduleStatus(id string, status string, amounts []int64) {
	schedule := f.Schedules[id]
	schedule.Status = status
	if status == gocardless.ScheduleStatusActive && len(schedule.Links.Payments) == 0 {
		for _, amount := range amounts {
			pid := f.nextID("PM")
			f.Payments[pid] = gocardless.Payment{
				ID:       pid,
				Amount:   amount,
				Currency: schedule.Currency,
				Status:   gocardless.PaymentStatusPendingSubmission,
				Links:    gocardless.PaymentLinks{Mandate: schedule.Links.Mandate, InstalmentSchedule: id},
			}
			schedule.Links.Payments = append(schedule.Links.Payments, pid)
		}
	}
	f.Schedules[id] = schedule
}

func (f *Fake) CreatePayment(ctx context.Context, params gocardless.CreatePaymentParams, idempotencyKey string) (gocardless.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreatedPayments = append(f.CreatedPayments, params)
	f.IdempotencyKeys = append(f.IdempotencyKeys, idempotencyKey)
	if f.ErrCreatePayment != nil {
		return gocardless.Payment{}, f.ErrCreatePayment
	}
	if id, ok := f.byKey["payment:"+idempotencyKey]; ok && idempotencyKey != "" {
		return f.Payments[id], nil
	}
	payment := gocardless.Payment{
		ID:          f.nextID("PM"),
		Amount:      params.Amount,
		Currency:    params.Currency,
		Description: params.Description,
		Status:      gocardless.PaymentStatusPendingSubmission,
		Metadata:    params.Metadata,
		Links:       params.Links,
	}
	f.Payments[payment.ID] = payment
	if idempotencyKey != "" {
		f.byKey["payment:"+idempotencyKey] = payment.ID
	}
	return payment, nil
}

func (f *Fake) GetPayment(ctx context.Context, id string) (gocardless.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PaymentFetches++
	payment, ok := f.Payments[id]
	if !ok {
		return gocardless.Payment{}, NotFound("payment")
	}
	return payment, nil
}

func (f *Fake) GetMandate(ctx context.Context, id string) (gocardless.Mandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrGetMandate != nil {
		return gocardless.Mandate{}, f.ErrGetMandate
	}
	mandate, ok := f.Mandates[id]
	if !ok {
		return gocardless.Mandate{}, NotFound("mandate")
	}
	return mandate, nil
}

func (f *Fake) CreateInstalmentSchedule(ctx context.Context, params gocardless.CreateInstalmentScheduleParams, idempotencyKey string) (gocardless.InstalmentSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreatedSchedules = append(f.CreatedSchedules, params)
	f.IdempotencyKeys = append(f.IdempotencyKeys, idempotencyKey)
	if f.ErrCreateSchedule != nil {
		return gocardless.InstalmentSchedule{}, f.ErrCreateSchedule
	}
	if id, ok := f.byKey["schedule:"+idempotencyKey]; ok && idempotencyKey != "" {
		return f.Schedules[id], nil
	}
	status := f.ScheduleStatusOnCreate
	if status == "" {
		status = gocardless.ScheduleStatusPending
	}
	schedule := gocardless.InstalmentSchedule{
		ID:          f.nextID("IS"),
		Name:        params.Name,
		Currency:    params.Currency,
		TotalAmount: params.TotalAmount,
		Status:      gocardless.ScheduleStatusPending,
		Metadata:    params.Metadata,
		Links:       gocardless.InstalmentScheduleLinks{Mandate: params.Links.Mandate},
	}
	f.Schedules[schedule.ID] = schedule
	if idempotencyKey != "" {
		f.byKey["schedule:"+idempotencyKey] = schedule.ID
	}
	if status != gocardless.ScheduleStatusPending {
		f.setScheduleStatus(schedule.ID, status, params.Instalments.Amounts)
	}
	// The creation response never carries linked payments.
	return schedule, nil
}

func (f *Fake) GetInstalmentSchedule(ctx context.Context, id string) (gocardless.InstalmentSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ScheduleFetches++
	if f.ErrGetSchedule != nil {
		return gocardless.InstalmentSchedule{}, f.ErrGetSchedule
	}
	schedule, ok := f.Schedules[id]
	if !ok {
		return gocardless.InstalmentSchedule{}, NotFound("instalment_schedule")
	}
	return schedule, nil
}

func (f *Fake) CreateRedirectFlow(ctx context.Context, params gocardless.CreateRedirectFlowParams) (gocardless.RedirectFlow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flow := gocardless.RedirectFlow{
		ID:                 f.nextID("RE"),
		Description:        params.Description,
		SessionToken:       params.SessionToken,
		Scheme:             params.Scheme,
		SuccessRedirectURL: params.SuccessRedirectURL,
	}
	flow.RedirectURL = "https://pay-sandbox.gocardless.com/flow/" + flow.ID
	f.Flows[flow.ID] = flow
	return flow, nil
}

// CompleteRedirectFlow links a new mandate on first completion and returns invalid_state afterwards.
func (f *Fake) CompleteRedirectFlow(ctx context.Context, id string, sessionToken string) (gocardless.RedirectFlow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CompleteFlowCalls++
	if f.ErrCompleteFlow != nil {
		return gocardless.RedirectFlow{}, f.ErrCompleteFlow
	}
	flow, ok := f.Flows[id]
	if !ok {
		return gocardless.RedirectFlow{}, NotFound("redirect_flow")
	}
	if flow.Links.Mandate != "" {
		return gocardless.RedirectFlow{}, &gocardless.APIError{
			StatusCode: http.StatusUnprocessableEntity,
			Type:       gocardless.ErrorTypeInvalidState,
			Message:    "redirect flow already completed",
		}
	}
	if flow.SessionToken != sessionToken {
		return gocardless.RedirectFlow{}, Rejected("session token mismatch")
	}

	scheme := flow.Scheme
	if scheme == "" {
		scheme = "bacs"
	}
	account := gocardless.CustomerBankAccount{
		ID:                  f.nextID("BA"),
		AccountHolderName:   "Ada Lovelace",
		AccountNumberEnding: "11",
		BankName:            "BARCLAYS BANK PLC",
		CountryCode:         "GB",
		Currency:            gocardless.SchemeCurrency(scheme),
		Enabled:             true,
	}
	f.BankAccounts[account.ID] = account
	mandate := gocardless.Mandate{
		ID:     f.nextID("MD"),
		Status: "pending_submission",
		Scheme: scheme,
		Links:  gocardless.MandateLinks{Customer: f.nextID("CU"), CustomerBankAccount: account.ID},
	}
	f.Mandates[mandate.ID] = mandate
	flow.Links = gocardless.RedirectFlowLinks{
		Customer:            mandate.Links.Customer,
		CustomerBankAccount: account.ID,
		Mandate:             mandate.ID,
	}
	f.Flows[id] = flow
	return flow, nil
}

func (f *Fake) GetRedirectFlow(ctx context.Context, id string) (gocardless.RedirectFlow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flow, ok := f.Flows[id]
	if !ok {
		return gocardless.RedirectFlow{}, NotFound("redirect_flow")
	}
	return flow, nil
}

func (f *Fake) GetCustomerBankAccount(ctx context.Context, id string) (gocardless.CustomerBankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrBankAccount != nil {
		return gocardless.CustomerBankAccount{}, f.ErrBankAccount
	}
	account, ok := f.BankAccounts[id]
	if !ok {
		return gocardless.CustomerBankAccount{}, NotFound("customer_bank_account")
	}
	return account, nil
}

func (f *Fake) LookupBankDetails(ctx context.Context, params gocardless.BankDetailsLookupParams) (gocardless.BankDetailsLookup, error) {
	return gocardless.BankDetailsLookup{
		AvailableDebitSchemes: []string{"bacs"},
		BankName:              "BARCLAYS BANK PLC",
		BIC:                   "BARCGB22",
	}, nil
}

// AddMandate registers an existing remote mandate.
func (f *Fake) AddMandate(mandate gocardless.Mandate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Mandates[mandate.ID] = mandate
}
