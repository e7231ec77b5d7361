package server

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/provia/courtage/internal/database/repository"
	"github.com/provia/courtage/internal/service"
)

type AdvisorHandler struct {
	Service *service.Advisors
	DB      *sql.DB
}

func (h *AdvisorHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/advisors")
	group.POST("", h.create)
	group.GET("", h.list)
	group.GET("/:id", h.get)
	group.PUT("/:id", h.update)
	group.DELETE("/:id", h.deactivate)
	group.GET("/:id/commissions", h.commissions)
}

func (h *AdvisorHandler) create(c *gin.Context) {
	var in service.AdvisorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	advisor, err := h.Service.Create(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, advisor, nil)
}

func (h *AdvisorHandler) list(c *gin.Context) {
	activeOnly := c.Query("all") == ""
	advisors, err := h.Service.List(c.Request.Context(), activeOnly)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, advisors, map[string]any{"count": len(advisors)})
}

func (h *AdvisorHandler) get(c *gin.Context) {
	advisor, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, advisor, nil)
}

func (h *AdvisorHandler) update(c *gin.Context) {
	var in service.AdvisorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	advisor, recomputed, err := h.Service.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, advisor, map[string]any{"splits_recomputed": recomputed})
}

func (h *AdvisorHandler) deactivate(c *gin.Context) {
	if err := h.Service.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	Ok(c, nil, nil)
}

func (h *AdvisorHandler) commissions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := repository.NewCommissionRepo(h.DB).List(c.Request.Context(), repository.CommissionFilters{
		AdvisorID: c.Param("id"),
		Limit:     limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, rows, map[string]any{"count": len(rows)})
}
