package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/spaceportal/spaceportal/internal/daterange"
	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/logger"
	"github.com/spaceportal/spaceportal/internal/nasa"
)

// ErrorResponse represents a standard error response for the API
type ErrorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	Code           int    `json:"code"`
	CorrelationID  string `json:"correlation_id"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	URL            string `json:"url,omitempty"`
	Body           string `json:"body,omitempty"`
}

// NewErrorResponse creates a new API error response. Upstream failures carry
// the redacted request URL and response body.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	resp := &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}

	var upstream *nasa.UpstreamError
	if errors.As(err, &upstream) {
		resp.UpstreamStatus = upstream.StatusCode
		resp.URL = upstream.URL
		resp.Body = upstream.Body
	}
	return resp
}

// HandleError logs err under a correlation id and writes the JSON error.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields,
			logger.String("category", string(errors.CategoryOf(err))),
			logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("API error", fields...)
	} else {
		c.log.Warn("API error", fields...)
	}

	return ctx.JSON(code, resp)
}

// handleImportError maps an import failure to its response status.
func (c *Controller) handleImportError(ctx echo.Context, err error) error {
	code, message := statusFor(err)
	return c.HandleError(ctx, err, message, code)
}

func statusFor(err error) (int, string) {
	var upstream *nasa.UpstreamError
	switch {
	case errors.Is(err, daterange.ErrInvalidRange):
		return http.StatusBadRequest, "Invalid date range"
	case errors.Is(err, nasa.ErrMissingCredential):
		return http.StatusInternalServerError, "NASA API key is not configured"
	case errors.As(err, &upstream):
		// a 2xx here means the payload was unusable
		if upstream.StatusCode < http.StatusBadRequest {
			return http.StatusBadGateway, "Upstream feed returned an unusable response"
		}
		return upstream.StatusCode, "Upstream feed request failed"
	case errors.IsCategory(err, errors.CategoryCancellation), errors.IsCategory(err, errors.CategoryTimeout):
		return http.StatusServiceUnavailable, "Import was interrupted"
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest, "Invalid request"
	default:
		return http.StatusInternalServerError, "Import failed"
	}
}
