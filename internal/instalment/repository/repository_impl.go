package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/instalment/domain"
	pkgdb "github.com/smallbiznis/directdebit/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, gateway_id, order_id, schedule_id, mandate_remote_id, currency,
	status, attempts, next_attempt_at, last_error, created_at, updated_at
 FROM instalment_schedule_tasks`

func (r *repo) Enqueue(ctx context.Context, db *gorm.DB, task *domain.Task) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_id"}, {Name: "schedule_id"}},
			DoNothing: true,
		}).
		Create(task)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindBySchedule(ctx context.Context, db *gorm.DB, gatewayID string, scheduleID string) (*domain.Task, error) {
	var item domain.Task
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE gateway_id = ? AND schedule_id = ? LIMIT 1`,
		gatewayID,
		scheduleID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, leaseUntil time.Time, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}

	var tasks []domain.Task
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := selectColumns + `
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`
		if pkgdb.SupportsRowLocking(tx) {
			query += ` FOR UPDATE SKIP LOCKED`
		}
		if err := tx.Raw(query, domain.StatusPending, now, limit).Scan(&tasks).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(tasks))
		for _, task := range tasks {
			ids = append(ids, task.ID)
		}
		return tx.Exec(
			`UPDATE instalment_schedule_tasks
			 SET next_attempt_at = ?, updated_at = ?
			 WHERE id IN ?`,
			leaseUntil,
			now,
			ids,
		).Error
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repo) MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE instalment_schedule_tasks
		 SET status = ?, attempts = ?, last_error = '', updated_at = ?
		 WHERE id = ?`,
		domain.StatusDone,
		attempts,
		now,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE instalment_schedule_tasks
		 SET status = ?, attempts = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusFailed,
		attempts,
		lastError,
		now,
		id,
	).Error
}

func (r *repo) Reschedule(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	attempts int,
	next time.Time,
	lastError string,
	now time.Time,
) error {
	return db.WithContext(ctx).Exec(
		`UPDATE instalment_schedule_tasks
		 SET attempts = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		attempts,
		next,
		lastError,
		now,
		id,
		domain.StatusPending,
	).Error
}

func (r *repo) WakeBySchedule(ctx context.Context, db *gorm.DB, gatewayID string, scheduleID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE instalment_schedule_tasks
		 SET next_attempt_at = ?, updated_at = ?
		 WHERE gateway_id = ? AND schedule_id = ? AND status = ?`,
		now,
		now,
		gatewayID,
		scheduleID,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
