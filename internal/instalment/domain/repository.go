package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Enqueue reports false when a task for the same schedule exists.
	Enqueue(ctx context.Context, db *gorm.DB, task *Task) (bool, error)
	FindBySchedule(ctx context.Context, db *gorm.DB, gatewayID string, scheduleID string) (*Task, error)
	// ClaimDue leases up to limit due pending tasks until leaseUntil.
	ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, leaseUntil time.Time, limit int) ([]Task, error)
	MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) error
	Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, next time.Time, lastError string, now time.Time) error
	// WakeBySchedule makes a pending task due immediately.
	WakeBySchedule(ctx context.Context, db *gorm.DB, gatewayID string, scheduleID string, now time.Time) (bool, error)
}
