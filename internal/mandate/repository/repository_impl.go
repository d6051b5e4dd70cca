package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/mandate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, owner_id, init_order_id, gateway_id, remote_id, scheme, status,
	remote_customer_id, remote_bank_account_id, sandbox, created_at, updated_at
 FROM mandates`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, mandate *domain.Mandate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO mandates (
			id, owner_id, init_order_id, gateway_id, remote_id, scheme, status,
			remote_customer_id, remote_bank_account_id, sandbox, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mandate.ID,
		mandate.OwnerID,
		mandate.InitOrderID,
		mandate.GatewayID,
		mandate.RemoteID,
		mandate.Scheme,
		mandate.Status,
		mandate.RemoteCustomerID,
		mandate.RemoteBankAccountID,
		mandate.Sandbox,
		mandate.CreatedAt,
		mandate.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Mandate, error) {
	var item domain.Mandate
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE id = ? LIMIT 1`, id).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByRemoteID(ctx context.Context, db *gorm.DB, gatewayID string, remoteID string) (*domain.Mandate, error) {
	var item domain.Mandate
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE gateway_id = ? AND remote_id = ? LIMIT 1`,
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

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE mandates
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		status,
		updatedAt,
		id,
		status,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateRemote(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, scheme string, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE mandates
		 SET status = ?, scheme = ?, updated_at = ?
		 WHERE id = ? AND (status <> ? OR scheme <> ?)`,
		status,
		scheme,
		updatedAt,
		id,
		status,
		scheme,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
