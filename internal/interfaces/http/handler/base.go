package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledgerlink/backend/internal/domain/shared"
	"github.com/ledgerlink/backend/internal/domain/sync"
	"github.com/ledgerlink/backend/internal/interfaces/http/dto"
	"github.com/ledgerlink/backend/internal/interfaces/http/middleware"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "X-Request-ID"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	if id := c.GetHeader(RequestIDKey); id != "" {
		return id
	}
	return ""
}

// getTenantID extracts the tenant ID set by the tenant middleware, falling
// back to the X-Tenant-ID header for direct handler tests.
func getTenantID(c *gin.Context) (uuid.UUID, error) {
	tenantIDStr := middleware.GetTenantID(c)
	if tenantIDStr == "" {
		tenantIDStr = c.GetHeader(middleware.TenantHeaderKey)
	}
	if tenantIDStr == "" {
		return uuid.Nil, errors.New("tenant ID not found in context")
	}
	return uuid.Parse(tenantIDStr)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response for work that continues in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	statusCode := dto.GetHTTPStatus(code)
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	h.Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// UnprocessableEntity sends a 422 unprocessable entity response
func (h *BaseHandler) UnprocessableEntity(c *gin.Context, code, message string) {
	h.Error(c, http.StatusUnprocessableEntity, code, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// TooManyRequests sends a 429 too many requests response
func (h *BaseHandler) TooManyRequests(c *gin.Context, message string) {
	h.Error(c, http.StatusTooManyRequests, dto.ErrCodeRateLimited, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	requestID := getRequestID(c)
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	))
}

// sentinelStatus maps domain sentinel errors to an error code. The HTTP
// status is derived from the code.
var sentinelCodes = []struct {
	err  error
	code string
}{
	{sync.ErrJobNotFound, dto.ErrCodeNotFound},
	{sync.ErrBatchNotFound, dto.ErrCodeNotFound},
	{sync.ErrMappingNotFound, dto.ErrCodeNotFound},
	{sync.ErrLocalRecordNotFound, dto.ErrCodeNotFound},
	{sync.ErrRemoteNotFound, dto.ErrCodeNotFound},
	{sync.ErrMappingConflict, dto.ErrCodeConflict},
	{sync.ErrBatchAlreadyFinished, dto.ErrCodeInvalidState},
	{sync.ErrBatchNotFinished, dto.ErrCodeInvalidState},
	{sync.ErrInvalidTransition, dto.ErrCodeInvalidState},
	{sync.ErrInvalidTenantID, dto.ErrCodeInvalidInput},
	{sync.ErrInvalidEntityType, dto.ErrCodeInvalidInput},
	{sync.ErrInvalidDirection, dto.ErrCodeInvalidInput},
	{sync.ErrInvalidLocalID, dto.ErrCodeInvalidInput},
	{sync.ErrInvalidRemoteID, dto.ErrCodeInvalidInput},
	{sync.ErrRemoteUnavailable, dto.ErrCodeRemoteUnavailable},
	{sync.ErrRemoteRateLimited, dto.ErrCodeRateLimited},
	{sync.ErrRemoteAuthFailed, dto.ErrCodeRemoteAuth},
}

// classCodes maps classified failure classes to error codes
var classCodes = map[sync.ErrorClass]string{
	sync.ErrorClassValidation:         dto.ErrCodeValidation,
	sync.ErrorClassConflict:           dto.ErrCodeConflict,
	sync.ErrorClassDependencyUnmapped: dto.ErrCodeDependencyUnmapped,
	sync.ErrorClassTransientRateLimit: dto.ErrCodeRateLimited,
	sync.ErrorClassTransientNetwork:   dto.ErrCodeRemoteUnavailable,
	sync.ErrorClassAuth:               dto.ErrCodeRemoteAuth,
}

// HandleError converts domain errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	requestID := getRequestID(c)

	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			c.JSON(dto.GetHTTPStatus(s.code), dto.NewErrorResponseWithRequestID(s.code, err.Error(), requestID))
			return
		}
	}

	if cerr, ok := sync.AsClassified(err); ok {
		code, found := classCodes[cerr.Class]
		if !found {
			code = dto.ErrCodeInternal
		}
		if cerr.Class == sync.ErrorClassValidation && len(cerr.Violations) > 0 {
			details := make([]dto.ValidationDetail, len(cerr.Violations))
			for i, v := range cerr.Violations {
				details[i] = dto.ValidationDetail{Field: v.Field, Rule: v.Rule, Message: v.Message}
			}
			c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(cerr.Message, requestID, details))
			return
		}
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, cerr.Message, requestID))
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}
