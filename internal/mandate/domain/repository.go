package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, mandate *Mandate) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Mandate, error)
	FindByRemoteID(ctx context.Context, db *gorm.DB, gatewayID string, remoteID string) (*Mandate, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, updatedAt time.Time) (bool, error)
	UpdateRemote(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, scheme string, updatedAt time.Time) (bool, error)
}
