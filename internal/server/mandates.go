package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/directdebit/internal/checkout/orchestrator"
)

type mandateDescriptionResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

func (s *Server) GetMandateByID(c *gin.Context) {
	id, ok := mandateIDParam(c)
	if !ok {
		return
	}

	mandate, err := s.mandateSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": mandate})
}

// DescribeMandate never fails on processor errors; the description degrades instead.
func (s *Server) DescribeMandate(c *gin.Context) {
	id, ok := mandateIDParam(c)
	if !ok {
		return
	}

	description, err := s.mandateSvc.Describe(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, mandateDescriptionResponse{ID: id.String(), Description: description})
}

func (s *Server) RefreshMandate(c *gin.Context) {
	id, ok := mandateIDParam(c)
	if !ok {
		return
	}

	mandate, err := s.mandateSvc.Refresh(c.Request.Context(), id)
	if err != nil {
		if orchestrator.IsRemote(err) {
			err = orchestrator.Classify(err)
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": mandate})
}

func mandateIDParam(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id <= 0 {
		AbortWithError(c, ErrNotFound)
		return 0, false
	}
	return id, true
}
