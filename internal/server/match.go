package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/provia/courtage/internal/service"
)

type MatchHandler struct {
	Matcher *service.Matcher
}

func (h *MatchHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/match")
	group.POST("/auto", h.auto)
	group.POST("/assign", h.assign)
}

type autoMatchRequest struct {
	BatchID string `json:"batch_id,omitempty"`
}

func (h *MatchHandler) auto(c *gin.Context) {
	var req autoMatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	sum, err := h.Matcher.AutoMatch(c.Request.Context(), req.BatchID)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, sum, nil)
}

type assignRequest struct {
	CommissionID string `json:"commission_id"`
	ContractID   string `json:"contract_id"`
	AdvisorID    string `json:"advisor_id"`
}

func (h *MatchHandler) assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if req.CommissionID == "" || req.ContractID == "" || req.AdvisorID == "" {
		Error(c, http.StatusBadRequest, "commission_id, contract_id and advisor_id required", nil)
		return
	}
	if err := h.Matcher.Assign(c.Request.Context(), req.CommissionID, req.ContractID, req.AdvisorID); err != nil {
		fail(c, err)
		return
	}
	Ok(c, nil, nil)
}
