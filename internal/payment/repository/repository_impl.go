package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, order_id, gateway_id, amount, currency, state,
			remote_id, remote_state, mandate_remote_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.OrderID,
		payment.GatewayID,
		payment.Amount,
		payment.Currency,
		payment.State,
		payment.RemoteID,
		payment.RemoteState,
		payment.MandateRemoteID,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_id"}, {Name: "remote_id"}},
			DoNothing: true,
		}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByRemoteID(ctx context.Context, db *gorm.DB, gatewayID string, remoteID string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, gateway_id, amount, currency, state,
			remote_id, remote_state, mandate_remote_id, created_at, updated_at
		 FROM payments
		 WHERE gateway_id = ? AND remote_id = ?
		 LIMIT 1`,
		gatewayID,
		remoteID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByOrder(ctx context.Context, db *gorm.DB, orderID string) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, gateway_id, amount, currency, state,
			remote_id, remote_state, mandate_remote_id, created_at, updated_at
		 FROM payments
		 WHERE order_id = ?
		 ORDER BY created_at ASC, id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateState(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	state domain.State,
	remoteState string,
	updatedAt time.Time,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET state = ?, remote_state = ?, updated_at = ?
		 WHERE id = ? AND (state <> ? OR remote_state <> ?)`,
		state,
		remoteState,
		updatedAt,
		id,
		state,
		remoteState,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, gatewayID string, eventID string) (*domain.WebhookEvent, error) {
	var item domain.WebhookEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, gateway_id, event_id, resource_type, action, resource_id,
			status, payload, received_at, processed_at
		 FROM webhook_events
		 WHERE gateway_id = ? AND event_id = ?
		 LIMIT 1`,
		gatewayID,
		eventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_id"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET status = ?, processed_at = ?
		 WHERE id = ?`,
		status,
		processedAt,
		id,
	).Error
}
