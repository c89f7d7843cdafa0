package restapi

import (
	"errors"
	"net/http"
	"time"

	"wallet_aggregator/internal/domain/entity"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

const (
	ErrorCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrorCodeMalformedJSON       ErrorCode = "MALFORMED_JSON"
	ErrorCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrorCodeNoProviderAvailable ErrorCode = "NO_PROVIDER_AVAILABLE"
	ErrorCodeInternalError       ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatusCode returns the status code sent with the error code.
func (e ErrorCode) HTTPStatusCode() int {
	switch e {
	case ErrorCodeInvalidRequest, ErrorCodeMalformedJSON:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeNoProviderAvailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorDetail is the body of the "error" field.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the envelope of every failed request.
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewErrorResponse(code ErrorCode, message string) ErrorResponse {
	return ErrorResponse{
		Error:     ErrorDetail{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// classify maps a service error to its response code.
func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, entity.ErrInvalidRequest):
		return ErrorCodeInvalidRequest
	case errors.Is(err, entity.ErrNoProviderAvailable):
		return ErrorCodeNoProviderAvailable
	default:
		return ErrorCodeInternalError
	}
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	code := classify(err)
	status := code.HTTPStatusCode()
	fields := []zap.Field{
		zap.String("error_code", string(code)),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", fields...)
	} else {
		logger.Warn("Client error", fields...)
	}

	message := err.Error()
	if code == ErrorCodeInternalError {
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, NewErrorResponse(code, message))
}
