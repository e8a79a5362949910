package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/buffrsign/esign-orchestrator/internal/application/workflow"
	"github.com/buffrsign/esign-orchestrator/internal/auth"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details []string    `json:"details,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func badRequest(c *gin.Context, msg string, details ...string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Details: details})
}

// writeError maps application errors onto HTTP status codes
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "validation failed", Details: verr.Errors})
		return
	}

	status, msg := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "error", err)
	}
	c.JSON(status, Response{Success: false, Error: msg})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, workflow.ErrInvalidState):
		return http.StatusConflict, err.Error()
	case errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, auth.ErrAccessDenied):
		return http.StatusForbidden, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
