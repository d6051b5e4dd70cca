package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/gateway"
)

type Service interface {
	BeginRedirectFlow(ctx context.Context, req BeginRedirectRequest) (RedirectFlow, error)
	CreateFromRedirectFlow(ctx context.Context, req CompleteRedirectRequest) (*Mandate, error)
	Get(ctx context.Context, id snowflake.ID) (*Mandate, error)
	GetByRemoteID(ctx context.Context, gatewayID string, remoteID string) (*Mandate, error)
	Refresh(ctx context.Context, id snowflake.ID) (*Mandate, error)
	// ApplyStatus reports whether the stored status changed. Unknown mandates return ErrNotFound.
	ApplyStatus(ctx context.Context, gatewayID string, remoteID string, status Status) (bool, error)
	Describe(ctx context.Context, id snowflake.ID) (string, error)
	AssertUsable(mandate *Mandate, gw *gateway.Gateway) error
}
