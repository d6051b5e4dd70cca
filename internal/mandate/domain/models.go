package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPendingSubmission       Status = "pending_submission"
	StatusPendingCustomerApproval Status = "pending_customer_approval"
	StatusSubmitted               Status = "submitted"
	StatusActive                  Status = "active"
	StatusFailed                  Status = "failed"
	StatusCancelled               Status = "cancelled"
	StatusExpired                 Status = "expired"
)

func ParseStatus(value string) (Status, bool) {
	switch s := Status(value); s {
	case StatusPendingSubmission, StatusPendingCustomerApproval, StatusSubmitted,
		StatusActive, StatusFailed, StatusCancelled, StatusExpired:
		return s, true
	default:
		return "", false
	}
}

// Terminal statuses can no longer be charged.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusExpired
}

// Mandate is a customer's standing authorization to debit their account.
// RemoteID is written once at creation; only Status and Scheme change afterward.
type Mandate struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	OwnerID             string       `json:"owner_id" gorm:"type:text;not null"`
	InitOrderID         string       `json:"init_order_id,omitempty" gorm:"type:text"`
	GatewayID           string       `json:"gateway_id" gorm:"type:text;not null"`
	RemoteID            string       `json:"remote_id" gorm:"type:text;not null"`
	Scheme              string       `json:"scheme" gorm:"type:text;not null"`
	Status              Status       `json:"status" gorm:"type:text;not null"`
	RemoteCustomerID    string       `json:"remote_customer_id,omitempty" gorm:"type:text"`
	RemoteBankAccountID string       `json:"remote_bank_account_id,omitempty" gorm:"type:text"`
	Sandbox             bool         `json:"sandbox" gorm:"not null"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"not null"`
}

func (Mandate) TableName() string { return "mandates" }

type BeginRedirectRequest struct {
	GatewayID          string
	OrderID            string
	Description        string
	SessionToken       string
	SuccessRedirectURL string
	Scheme             string
	Customer           Customer
}

// Customer prefills the processor's hosted mandate form.
type Customer struct {
	GivenName    string `json:"given_name"`
	FamilyName   string `json:"family_name"`
	CompanyName  string `json:"company_name"`
	Email        string `json:"email"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`
	CountryCode  string `json:"country_code"`
}

type RedirectFlow struct {
	FlowID      string `json:"flow_id"`
	RedirectURL string `json:"redirect_url"`
}

type CompleteRedirectRequest struct {
	GatewayID    string
	FlowID       string
	SessionToken string
	OwnerID      string
	OrderID      string
}
