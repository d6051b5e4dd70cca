package server

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/directdebit/internal/payment/webhook"
	"github.com/smallbiznis/directdebit/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

const webhookEndpoint = "gocardless_webhook"

type webhookResponse struct {
	Events []webhook.Ack `json:"events"`
}

// HandleGoCardlessWebhook verifies and applies one signed delivery. A delivery
// with any failed event answers 500 so the processor redelivers it; events
// already applied ack as already_processed on the retry.
func (s *Server) HandleGoCardlessWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	gatewayID := strings.TrimSpace(c.Param("gateway"))
	log := ctxlogger.WithContext(ctx, s.log)

	if s.webhookLimiter.Enabled() {
		res, err := s.webhookLimiter.Allow(ctx, gatewayID)
		switch {
		case err != nil:
			log.Warn("webhook rate limit check failed", zap.String("gateway_id", gatewayID), zap.Error(err))
		case !res.Allowed:
			s.instruments.RecordRateLimitDenied(ctx, gatewayID, webhookEndpoint, "limit_exceeded")
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			AbortWithError(c, ErrRateLimited)
			return
		default:
			s.instruments.RecordRateLimitAllowed(ctx, gatewayID, webhookEndpoint)
		}
	}

	if limit := s.cfg.WebhookMaxBodyBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	acks, err := s.webhookSvc.Reconcile(ctx, gatewayID, payload, c.Request.Header)
	if err != nil && acks == nil {
		AbortWithError(c, err)
		return
	}
	if acks == nil {
		acks = []webhook.Ack{}
	}
	if err != nil {
		log.Error("webhook delivery partially failed", zap.String("gateway_id", gatewayID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, webhookResponse{Events: acks})
		return
	}

	c.JSON(http.StatusOK, webhookResponse{Events: acks})
}
