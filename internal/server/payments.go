package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/directdebit/internal/payment/domain"
)

func (s *Server) ListOrderPayments(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order"))
	if orderID == "" {
		AbortWithError(c, newValidationError("order", "required", "order is required"))
		return
	}

	payments, err := s.paymentSvc.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if payments == nil {
		payments = []paymentdomain.Payment{}
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}
