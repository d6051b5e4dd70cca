package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	// InsertIfAbsent reports false when a payment with the same gateway and remote id exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindByRemoteID(ctx context.Context, db *gorm.DB, gatewayID string, remoteID string) (*Payment, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID string) ([]Payment, error)
	// UpdateState writes state and remote state, reporting false when both already match.
	UpdateState(ctx context.Context, db *gorm.DB, id snowflake.ID, state State, remoteState string, updatedAt time.Time) (bool, error)

	FindEvent(ctx context.Context, db *gorm.DB, gatewayID string, eventID string) (*WebhookEvent, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, processedAt time.Time) error
}
