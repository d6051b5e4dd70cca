package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/directdebit/internal/checkout/domain"
	"github.com/smallbiznis/directdebit/internal/checkout/orchestrator"
	checkoutservice "github.com/smallbiznis/directdebit/internal/checkout/service"
	"github.com/smallbiznis/directdebit/internal/gocardless"
	mandatedomain "github.com/smallbiznis/directdebit/internal/mandate/domain"
)

type createPaymentRequest struct {
	Order     checkoutdomain.Order `json:"order"`
	MandateID string               `json:"mandate_id"`
}

type beginRedirectFlowRequest struct {
	Order              checkoutdomain.Order   `json:"order"`
	SessionToken       string                 `json:"session_token"`
	SuccessRedirectURL string                 `json:"success_redirect_url"`
	Scheme             string                 `json:"scheme"`
	Customer           mandatedomain.Customer `json:"customer"`
}

type completeRedirectFlowRequest struct {
	Order        checkoutdomain.Order `json:"order"`
	SessionToken string               `json:"session_token"`
}

type bankDetailsLookupRequest struct {
	AccountNumber string `json:"account_number"`
	BranchCode    string `json:"branch_code"`
	CountryCode   string `json:"country_code"`
	IBAN          string `json:"iban"`
}

// CreatePayment charges an existing mandate through an onsite gateway.
func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var mandateID snowflake.ID
	if raw := strings.TrimSpace(req.MandateID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("mandate_id", "invalid_mandate_id", "invalid mandate id"))
			return
		}
		mandateID = id
	}

	result, err := s.checkoutSvc.CreatePayment(c.Request.Context(), checkoutservice.CreatePaymentRequest{
		GatewayID: c.Param("gateway"),
		Order:     req.Order,
		MandateID: mandateID,
	})
	s.recordCheckout(c, err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) BeginRedirectFlow(c *gin.Context) {
	var req beginRedirectFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.SessionToken) == "" {
		AbortWithError(c, newValidationError("session_token", "required", "session_token is required"))
		return
	}
	if strings.TrimSpace(req.SuccessRedirectURL) == "" {
		AbortWithError(c, newValidationError("success_redirect_url", "required", "success_redirect_url is required"))
		return
	}

	flow, err := s.checkoutSvc.BeginRedirect(c.Request.Context(), checkoutservice.BeginRedirectRequest{
		GatewayID:          c.Param("gateway"),
		Order:              req.Order,
		SessionToken:       req.SessionToken,
		SuccessRedirectURL: req.SuccessRedirectURL,
		Scheme:             req.Scheme,
		Customer:           req.Customer,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, flow)
}

// CompleteRedirectFlow is hit when the customer returns from the hosted mandate form.
func (s *Server) CompleteRedirectFlow(c *gin.Context) {
	var req completeRedirectFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.SessionToken) == "" {
		AbortWithError(c, newValidationError("session_token", "required", "session_token is required"))
		return
	}

	result, err := s.checkoutSvc.CompleteRedirect(c.Request.Context(), checkoutservice.CompleteRedirectRequest{
		GatewayID:    c.Param("gateway"),
		FlowID:       c.Param("flow"),
		SessionToken: req.SessionToken,
		Order:        req.Order,
	})
	s.recordCheckout(c, err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) LookupBankDetails(c *gin.Context) {
	var req bankDetailsLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.IBAN) == "" && strings.TrimSpace(req.AccountNumber) == "" {
		AbortWithError(c, newValidationError("account_number", "required", "account_number or iban is required"))
		return
	}

	gw, err := s.gateways.Resolve(c.Param("gateway"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	lookup, err := gw.Client.LookupBankDetails(c.Request.Context(), gocardless.BankDetailsLookupParams{
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		BranchCode:    strings.TrimSpace(req.BranchCode),
		CountryCode:   strings.ToUpper(strings.TrimSpace(req.CountryCode)),
		IBAN:          strings.TrimSpace(req.IBAN),
	})
	if err != nil {
		AbortWithError(c, orchestrator.Classify(err))
		return
	}

	c.JSON(http.StatusOK, lookup)
}

func (s *Server) recordCheckout(c *gin.Context, err error) {
	outcome := "succeeded"
	var decline *checkoutdomain.DeclineError
	switch {
	case err == nil:
	case errors.As(err, &decline), errors.Is(err, checkoutdomain.ErrHardDecline):
		outcome = "declined"
	default:
		outcome = "failed"
	}
	s.instruments.RecordCheckout(c.Request.Context(), c.Param("gateway"), outcome)
}
