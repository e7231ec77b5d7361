package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/provia/courtage/internal/service"
)

type ImportHandler struct {
	Ingester *service.Ingester
}

func (h *ImportHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/imports", h.ingest)
}

type importRequest struct {
	SourceType    string                    `json:"source_type"`
	Fingerprint   string                    `json:"fingerprint"`
	Force         bool                      `json:"force"`
	Commissions   []service.CommissionRow   `json:"commissions,omitempty"`
	Contracts     []service.ContractRow     `json:"contracts,omitempty"`
	Consultations []service.ConsultationRow `json:"consultations,omitempty"`
}

func (h *ImportHandler) ingest(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	res, err := h.Ingester.Ingest(c.Request.Context(), service.IngestInput{
		SourceType:    req.SourceType,
		Fingerprint:   req.Fingerprint,
		Force:         req.Force,
		Commissions:   req.Commissions,
		Contracts:     req.Contracts,
		Consultations: req.Consultations,
	})
	if err != nil {
		fail(c, err)
		return
	}
	if res.Duplicate {
		Error(c, http.StatusConflict, "batch with this fingerprint was already imported", map[string]any{
			"batch_id": res.BatchID,
		})
		return
	}
	Ok(c, res, nil)
}
