package server

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	DB *sql.DB
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
}

func (h *HealthHandler) health(c *gin.Context) {
	if err := h.DB.PingContext(c.Request.Context()); err != nil {
		Error(c, http.StatusServiceUnavailable, "database unavailable", nil)
		return
	}
	Ok(c, gin.H{"status": "ok"}, nil)
}
