package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/provia/courtage/internal/apperr"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// fail maps categorized engine errors onto HTTP statuses. Anything
// uncategorized is a 500 with a generic message.
func fail(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case apperr.Conflict:
		Error(c, http.StatusConflict, err.Error(), nil)
	case apperr.NotFound:
		Error(c, http.StatusNotFound, err.Error(), nil)
	default:
		Error(c, http.StatusInternalServerError, "internal error", nil)
	}
}
