package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// State is the local payment state owned by the hosting system.
type State string

const (
	StatePendingCapture State = "pending_capture"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
	StateCancelled      State = "cancelled"
)

func (s State) Valid() bool {
	switch s {
	case StatePendingCapture, StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Payment is one attempted or completed charge. MandateRemoteID is copied at
// creation and is not a live reference.
type Payment struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID         string       `json:"order_id" gorm:"type:text;not null;index"`
	GatewayID       string       `json:"gateway_id" gorm:"type:text;not null"`
	Amount          int64        `json:"amount" gorm:"not null"`
	Currency        string       `json:"currency" gorm:"type:text;not null"`
	State           State        `json:"state" gorm:"type:text;not null"`
	RemoteID        string       `json:"remote_id" gorm:"type:text;not null"`
	RemoteState     string       `json:"remote_state" gorm:"type:text;not null"`
	MandateRemoteID string       `json:"mandate_remote_id" gorm:"type:text"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Webhook acknowledgement statuses.
const (
	EventStatusReceived         = "received"
	EventStatusProcessed        = "processed"
	EventStatusUnchanged        = "unchanged"
	EventStatusAlreadyProcessed = "already_processed"
	EventStatusNotFound         = "not_found"
	EventStatusIgnored          = "ignored"
	EventStatusError            = "error"
)

// WebhookEvent is the dedupe log for inbound processor notifications.
type WebhookEvent struct {
	ID           snowflake.ID   `json:"id" gorm:"primaryKey"`
	GatewayID    string         `json:"gateway_id" gorm:"type:text;not null"`
	EventID      string         `json:"event_id" gorm:"type:text;not null"`
	ResourceType string         `json:"resource_type" gorm:"type:text;not null"`
	Action       string         `json:"action" gorm:"type:text;not null"`
	ResourceID   string         `json:"resource_id" gorm:"type:text"`
	Status       string         `json:"status" gorm:"type:text"`
	Payload      datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt   time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt  *time.Time     `json:"processed_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
