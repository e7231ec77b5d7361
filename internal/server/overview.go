package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/provia/courtage/internal/service"
)

// OverviewHandler serves the read-only surfaces: clearance buckets,
// suggestions and the dashboard.
type OverviewHandler struct {
	Clearance *service.Clearance
	Dashboard *service.Dashboard
}

func (h *OverviewHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/clearance", h.clearance)
	r.POST("/api/v1/commissions/:id/ignore", h.ignore)
	r.POST("/api/v1/commissions/:id/reopen", h.reopen)
	r.GET("/api/v1/commissions/:id/suggestions", h.suggestions)
	r.GET("/api/v1/dashboard", h.dashboard)
}

func (h *OverviewHandler) clearance(c *gin.Context) {
	counts, err := h.Clearance.Counts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if bucket := c.Query("bucket"); bucket != "" {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		rows, err := h.Clearance.Pending(c.Request.Context(), bucket, limit)
		if err != nil {
			fail(c, err)
			return
		}
		Ok(c, rows, map[string]any{"counts": counts, "bucket": bucket})
		return
	}
	Ok(c, counts, nil)
}

func (h *OverviewHandler) ignore(c *gin.Context) {
	if err := h.Clearance.Ignore(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	Ok(c, nil, nil)
}

func (h *OverviewHandler) reopen(c *gin.Context) {
	if err := h.Clearance.Reopen(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	Ok(c, nil, nil)
}

// suggestions ranks candidates for the row in :id. With
// direction=commissions the id names a contract and unmatched commissions
// are ranked instead.
func (h *OverviewHandler) suggestions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	switch c.DefaultQuery("direction", "contracts") {
	case "contracts":
		got, err := h.Clearance.SuggestContracts(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			fail(c, err)
			return
		}
		Ok(c, got, map[string]any{"count": len(got)})
	case "commissions":
		got, err := h.Clearance.SuggestCommissions(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			fail(c, err)
			return
		}
		Ok(c, got, map[string]any{"count": len(got)})
	default:
		Error(c, http.StatusBadRequest, "direction must be contracts or commissions", nil)
	}
}

func (h *OverviewHandler) dashboard(c *gin.Context) {
	to := time.Now().UTC()
	from := to.AddDate(0, -1, 0)
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			Error(c, http.StatusBadRequest, "from must be YYYY-MM-DD", nil)
			return
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			Error(c, http.StatusBadRequest, "to must be YYYY-MM-DD", nil)
			return
		}
		to = parsed
	}
	sum, err := h.Dashboard.Summary(c.Request.Context(), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, sum, nil)
}
