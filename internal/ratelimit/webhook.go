package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/directdebit/internal/config"
)

const keyWebhookGateway = "directdebit:webhook:"

// WebhookLimiter throttles webhook deliveries per gateway. A nil limiter allows everything.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWebhookLimiter(cfg config.Config, client *redis.Client) *WebhookLimiter {
	if client == nil || cfg.WebhookRate <= 0 || cfg.WebhookBurst <= 0 {
		return nil
	}
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.WebhookRate,
		burst:  cfg.WebhookBurst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *WebhookLimiter) Allow(ctx context.Context, gatewayID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyWebhookGateway+strings.ToLower(strings.TrimSpace(gatewayID)), l.rate, l.burst)
}
