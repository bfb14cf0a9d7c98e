// Package api provides error handling utilities for HTTP APIs
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	vcerrors "github.com/mantonx/vcompress/internal/errors"
	"github.com/mantonx/vcompress/internal/logger"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Error   ErrorDetails `json:"error"`
	Success bool         `json:"success"`
}

// ErrorDetails contains detailed error information
type ErrorDetails struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	JobID     string                 `json:"job_id,omitempty"`
	Retryable bool                   `json:"retryable"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// RespondWithError maps err to a status code and writes the structured
// error body.
func RespondWithError(c *gin.Context, err error) {
	requestID := c.GetString("request_id")
	if requestID == "" {
		requestID = c.GetHeader("X-Request-ID")
	}

	status := vcerrors.HTTPStatus(err)
	details := ErrorDetails{
		Code:      string(vcerrors.GetType(err)),
		Message:   err.Error(),
		Retryable: status == http.StatusServiceUnavailable,
		RequestID: requestID,
	}

	var e *vcerrors.Error
	if errors.As(err, &e) {
		details.JobID = e.JobID
		details.Context = e.Details
	}
	if details.Retryable {
		c.Header("Retry-After", "5")
	}

	logError(loggerFrom(c), err, status, requestID)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: details})
}

// RespondWithValidationError sends a 400 for malformed requests that never
// reached a service call.
func RespondWithValidationError(c *gin.Context, op string, cause error) {
	RespondWithError(c, vcerrors.ValidationError(op, fmt.Errorf("%w: %v", vcerrors.ErrInvalidInput, cause)))
}

func logError(log hclog.Logger, err error, status int, requestID string) {
	fields := []interface{}{"error", err, "status", status, "request_id", requestID}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
		return
	}
	log.Debug("request rejected", fields...)
}

// loggerKey holds the request logger in the gin context.
const loggerKey = "logger"

// SetLogger makes log the logger used for errors of this request.
func SetLogger(c *gin.Context, log hclog.Logger) {
	c.Set(loggerKey, log)
}

func loggerFrom(c *gin.Context) hclog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(hclog.Logger); ok {
			return l
		}
	}
	return logger.Default()
}

// ErrorMiddleware recovers from panics and answers with a 500.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				var err error
				switch v := r.(type) {
				case error:
					err = v
				case string:
					err = errors.New(v)
				default:
					err = fmt.Errorf("unknown panic: %v", v)
				}

				loggerFrom(c).Error("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				RespondWithError(c, vcerrors.InternalError("panic recovered", err))
			}
		}()

		c.Next()
	}
}
