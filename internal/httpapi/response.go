package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/a3tai/pdf-field-builder/internal/bridge"
	"github.com/a3tai/pdf-field-builder/internal/document"
	"github.com/a3tai/pdf-field-builder/internal/editor"
	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/session"
)

// Response is the envelope of every JSON answer. Code is 0 on success and
// the HTTP status times 100 otherwise.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "success", Data: data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Code: http.StatusBadRequest * 100, Message: message})
}

// statusFor maps domain errors to HTTP statuses
func statusFor(err error) int {
	var apiErr *bridge.APIError
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, fields.ErrFieldNotFound),
		errors.Is(err, bridge.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, editor.ErrGestureActive),
		errors.Is(err, session.ErrSaveInFlight),
		errors.Is(err, session.ErrStaleLoad),
		errors.Is(err, session.ErrNotLoaded),
		errors.Is(err, fields.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, fields.ErrUnknownType),
		errors.Is(err, fields.ErrInvalidGeometry),
		errors.Is(err, fields.ErrInvalidPage),
		errors.Is(err, editor.ErrInvalidPage),
		errors.Is(err, editor.ErrUnknownHandle),
		errors.Is(err, editor.ErrNoSelection):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &apiErr),
		errors.Is(err, bridge.ErrNoDocument),
		errors.Is(err, document.ErrEmptyDocument),
		errors.Is(err, document.ErrNoPages):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, Response{Code: status * 100, Message: err.Error()})
}
