package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Task waits for a remote instalment schedule to activate.
type Task struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	GatewayID       string       `json:"gateway_id" gorm:"type:text;not null"`
	OrderID         string       `json:"order_id" gorm:"type:text;not null"`
	ScheduleID      string       `json:"schedule_id" gorm:"type:text;not null"`
	MandateRemoteID string       `json:"mandate_remote_id" gorm:"type:text"`
	Currency        string       `json:"currency" gorm:"type:text;not null"`
	Status          Status       `json:"status" gorm:"type:text;not null"`
	Attempts        int          `json:"attempts" gorm:"not null"`
	NextAttemptAt   time.Time    `json:"next_attempt_at" gorm:"not null"`
	LastError       string       `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (Task) TableName() string { return "instalment_schedule_tasks" }

type EnqueueRequest struct {
	GatewayID       string
	OrderID         string
	ScheduleID      string
	MandateRemoteID string
	Currency        string
}

// Outcome is the result of one poll. OutcomeRetry is a signal, not an error.
type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeRetry  Outcome = "retry"
	OutcomeFailed Outcome = "failed"
)

var (
	ErrScheduleFailed = errors.New("instalment_schedule_failed")
	ErrInvalidTask    = errors.New("invalid_instalment_task")
)
