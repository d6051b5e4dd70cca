package gocardless

import "time"

// Payment statuses reported by the processor.
const (
	PaymentStatusPendingCustomerApproval = "pending_customer_approval"
	PaymentStatusPendingSubmission       = "pending_submission"
	PaymentStatusSubmitted               = "submitted"
	PaymentStatusConfirmed               = "confirmed"
	PaymentStatusPaidOut                 = "paid_out"
	PaymentStatusCancelled               = "cancelled"
	PaymentStatusCustomerApprovalDenied  = "customer_approval_denied"
	PaymentStatusFailed                  = "failed"
	PaymentStatusChargedBack             = "charged_back"
)

// Instalment schedule statuses.
const (
	ScheduleStatusPending        = "pending"
	ScheduleStatusActive         = "active"
	ScheduleStatusCreationFailed = "creation_failed"
	ScheduleStatusCompleted      = "completed"
	ScheduleStatusCancelled      = "cancelled"
	ScheduleStatusErrored        = "errored"
)

type Payment struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	ChargeDate  string            `json:"charge_date,omitempty"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Status      string            `json:"status"`
	Description string            `json:"description,omitempty"`
	Reference   string            `json:"reference,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Links       PaymentLinks      `json:"links"`
}

type PaymentLinks struct {
	Mandate            string `json:"mandate,omitempty"`
	Creditor           string `json:"creditor,omitempty"`
	InstalmentSchedule string `json:"instalment_schedule,omitempty"`
}

type Mandate struct {
	ID                     string            `json:"id"`
	CreatedAt              time.Time         `json:"created_at"`
	Reference              string            `json:"reference,omitempty"`
	Status                 string            `json:"status"`
	Scheme                 string            `json:"scheme"`
	NextPossibleChargeDate string            `json:"next_possible_charge_date,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	Links                  MandateLinks      `json:"links"`
}

type MandateLinks struct {
	Customer            string `json:"customer,omitempty"`
	CustomerBankAccount string `json:"customer_bank_account,omitempty"`
	Creditor            string `json:"creditor,omitempty"`
}

type InstalmentSchedule struct {
	ID            string                  `json:"id"`
	CreatedAt     time.Time               `json:"created_at"`
	Name          string                  `json:"name"`
	Currency      string                  `json:"currency"`
	TotalAmount   int64                   `json:"total_amount"`
	Status        string                  `json:"status"`
	PaymentErrors map[string][]FieldError `json:"payment_errors,omitempty"`
	Metadata      map[string]string       `json:"metadata,omitempty"`
	Links         InstalmentScheduleLinks `json:"links"`
}

type InstalmentScheduleLinks struct {
	Mandate  string   `json:"mandate,omitempty"`
	Customer string   `json:"customer,omitempty"`
	Payments []string `json:"payments,omitempty"`
}

type RedirectFlow struct {
	ID                 string            `json:"id"`
	CreatedAt          time.Time         `json:"created_at"`
	Description        string            `json:"description,omitempty"`
	SessionToken       string            `json:"session_token"`
	Scheme             string            `json:"scheme,omitempty"`
	SuccessRedirectURL string            `json:"success_redirect_url"`
	RedirectURL        string            `json:"redirect_url,omitempty"`
	ConfirmationURL    string            `json:"confirmation_url,omitempty"`
	Links              RedirectFlowLinks `json:"links"`
}

type RedirectFlowLinks struct {
	Creditor            string `json:"creditor,omitempty"`
	Customer            string `json:"customer,omitempty"`
	CustomerBankAccount string `json:"customer_bank_account,omitempty"`
	Mandate             string `json:"mandate,omitempty"`
}

type CustomerBankAccount struct {
	ID                  string `json:"id"`
	AccountHolderName   string `json:"account_holder_name"`
	AccountNumberEnding string `json:"account_number_ending"`
	BankName            string `json:"bank_name"`
	CountryCode         string `json:"country_code"`
	Currency            string `json:"currency"`
	Enabled             bool   `json:"enabled"`
}

type BankDetailsLookup struct {
	AvailableDebitSchemes []string `json:"available_debit_schemes"`
	BankName              string   `json:"bank_name"`
	BIC                   string   `json:"bic"`
}

type CreatePaymentParams struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	ChargeDate  string            `json:"charge_date,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Links       PaymentLinks      `json:"links"`
}

// Instalments carries either explicit dated amounts or an interval schedule.
type Instalments struct {
	StartDate    string  `json:"start_date,omitempty"`
	IntervalUnit string  `json:"interval_unit,omitempty"`
	Interval     int     `json:"interval,omitempty"`
	DayOfMonth   int     `json:"day_of_month,omitempty"`
	Amounts      []int64 `json:"amounts"`
}

type CreateInstalmentScheduleParams struct {
	Name        string                  `json:"name"`
	TotalAmount int64                   `json:"total_amount"`
	Currency    string                  `json:"currency"`
	Instalments Instalments             `json:"instalments"`
	Metadata    map[string]string       `json:"metadata,omitempty"`
	Links       InstalmentScheduleLinks `json:"links"`
}

type PrefilledCustomer struct {
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	CompanyName  string `json:"company_name,omitempty"`
	Email        string `json:"email,omitempty"`
	AddressLine1 string `json:"address_line1,omitempty"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city,omitempty"`
	Region       string `json:"region,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
}

type CreateRedirectFlowParams struct {
	Description        string             `json:"description,omitempty"`
	SessionToken       string             `json:"session_token"`
	SuccessRedirectURL string             `json:"success_redirect_url"`
	Scheme             string             `json:"scheme,omitempty"`
	PrefilledCustomer  *PrefilledCustomer `json:"prefilled_customer,omitempty"`
}

type BankDetailsLookupParams struct {
	AccountNumber string `json:"account_number,omitempty"`
	BranchCode    string `json:"branch_code,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
	IBAN          string `json:"iban,omitempty"`
}

// SchemeCurrency returns the currency a mandate scheme collects in, or "" when the scheme is unknown.
func SchemeCurrency(scheme string) string {
	switch scheme {
	case "bacs":
		return "GBP"
	case "sepa_core", "sepa_cor1":
		return "EUR"
	case "autogiro":
		return "SEK"
	case "becs":
		return "AUD"
	case "becs_nz":
		return "NZD"
	case "betalingsservice":
		return "DKK"
	case "pad":
		return "CAD"
	case "ach":
		return "USD"
	default:
		return ""
	}
}
