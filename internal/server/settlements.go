package server

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/provia/courtage/internal/apperr"
	"github.com/provia/courtage/internal/database/repository"
	"github.com/provia/courtage/internal/service"
)

type SettlementHandler struct {
	Settler *service.Settler
	DB      *sql.DB
}

func (h *SettlementHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/settlements")
	group.POST("/generate", h.generate)
	group.GET("", h.list)
	group.GET("/:id", h.get)
	group.POST("/:id/status", h.transition)
}

type generateRequest struct {
	Month string `json:"month"`
}

func (h *SettlementHandler) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	stmts, err := h.Settler.Generate(c.Request.Context(), req.Month)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, stmts, map[string]any{"count": len(stmts)})
}

func (h *SettlementHandler) list(c *gin.Context) {
	stmts, err := repository.NewSettlementRepo(h.DB).List(c.Request.Context(), repository.SettlementFilters{
		Month:     c.Query("month"),
		AdvisorID: c.Query("advisor_id"),
		Status:    c.Query("status"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, stmts, map[string]any{"count": len(stmts)})
}

func (h *SettlementHandler) get(c *gin.Context) {
	stmt, err := repository.NewSettlementRepo(h.DB).Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if stmt == nil {
		fail(c, apperr.New(apperr.NotFound, "settlement %s not found", c.Param("id")))
		return
	}
	Ok(c, stmt, nil)
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (h *SettlementHandler) transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	stmt, err := h.Settler.Transition(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, stmt, nil)
}
