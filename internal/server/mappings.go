package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/provia/courtage/internal/service"
)

type MappingHandler struct {
	Service *service.Mappings
}

func (h *MappingHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/mappings")
	group.POST("", h.create)
	group.GET("", h.list)
	group.DELETE("/:id", h.remove)
}

type createMappingRequest struct {
	BrokerName string `json:"broker_name"`
	AdvisorID  string `json:"advisor_id"`
}

func (h *MappingHandler) create(c *gin.Context) {
	var req createMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	m, err := h.Service.Create(c.Request.Context(), req.BrokerName, req.AdvisorID)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, m, nil)
}

func (h *MappingHandler) list(c *gin.Context) {
	mappings, err := h.Service.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, mappings, map[string]any{"count": len(mappings)})
}

func (h *MappingHandler) remove(c *gin.Context) {
	if err := h.Service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	Ok(c, nil, nil)
}
