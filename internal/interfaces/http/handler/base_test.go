package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/backend/internal/domain/shared"
	"github.com/ledgerlink/backend/internal/domain/sync"
	"github.com/ledgerlink/backend/internal/interfaces/http/dto"
	"github.com/ledgerlink/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from context string",
			setup: func(c *gin.Context) {
				c.Set(RequestIDKey, "ctx-request-id")
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set(RequestIDKey, "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(RequestIDKey, "ctx-id")
				c.Request.Header.Set(RequestIDKey, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(t)
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestGetTenantID(t *testing.T) {
	t.Run("from middleware context", func(t *testing.T) {
		tenantID := uuid.New()
		c, _ := newTestContext(t)
		c.Set(middleware.TenantIDKey, tenantID.String())

		got, err := getTenantID(c)

		require.NoError(t, err)
		assert.Equal(t, tenantID, got)
	})

	t.Run("falls back to header", func(t *testing.T) {
		tenantID := uuid.New()
		c, _ := newTestContext(t)
		c.Request.Header.Set(middleware.TenantHeaderKey, tenantID.String())

		got, err := getTenantID(c)

		require.NoError(t, err)
		assert.Equal(t, tenantID, got)
	})

	t.Run("errors when absent", func(t *testing.T) {
		c, _ := newTestContext(t)

		_, err := getTenantID(c)

		assert.Error(t, err)
	})

	t.Run("errors on malformed value", func(t *testing.T) {
		c, _ := newTestContext(t)
		c.Set(middleware.TenantIDKey, "not-a-uuid")

		_, err := getTenantID(c)

		assert.Error(t, err)
	})
}

func TestBaseHandler_Responses(t *testing.T) {
	h := &BaseHandler{}

	t.Run("Success", func(t *testing.T) {
		c, w := newTestContext(t)
		h.Success(c, gin.H{"value": 42})

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)
		assert.NotNil(t, resp.Data)
	})

	t.Run("SuccessWithMeta", func(t *testing.T) {
		c, w := newTestContext(t)
		h.SuccessWithMeta(c, []string{"a", "b"}, 25, 2, 10)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(25), resp.Meta.Total)
		assert.Equal(t, 3, resp.Meta.TotalPages)
	})

	t.Run("Accepted", func(t *testing.T) {
		c, w := newTestContext(t)
		h.Accepted(c, gin.H{"id": uuid.New().String()})

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.True(t, decodeResponse(t, w).Success)
	})

	t.Run("NoContent", func(t *testing.T) {
		c, w := newTestContext(t)
		h.NoContent(c)
		// Flush gin's lazily written status; the engine does this after the
		// handler chain, but a bare CreateTestContext does not.
		c.Writer.WriteHeaderNow()

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("BadRequest", func(t *testing.T) {
		c, w := newTestContext(t)
		h.BadRequest(c, "bad input")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
	})

	t.Run("Error carries request ID", func(t *testing.T) {
		c, w := newTestContext(t)
		c.Set(RequestIDKey, "req-42")
		h.NotFound(c, "missing")

		assert.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, "req-42", resp.Error.RequestID)
	})

	t.Run("ValidationError", func(t *testing.T) {
		c, w := newTestContext(t)
		h.ValidationError(c, []dto.ValidationDetail{
			{Field: "email", Message: "Invalid email format"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "email", resp.Error.Details[0].Field)
	})
}

func TestBaseHandler_HandleError(t *testing.T) {
	h := &BaseHandler{}

	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{"job not found", sync.ErrJobNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"batch not found", sync.ErrBatchNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"mapping not found", sync.ErrMappingNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"mapping conflict", sync.ErrMappingConflict, http.StatusConflict, dto.ErrCodeConflict},
		{"batch already finished", sync.ErrBatchAlreadyFinished, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"batch not finished", sync.ErrBatchNotFinished, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"invalid entity type", sync.ErrInvalidEntityType, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"invalid direction", sync.ErrInvalidDirection, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"remote unavailable", sync.ErrRemoteUnavailable, http.StatusServiceUnavailable, dto.ErrCodeRemoteUnavailable},
		{"remote rate limited", sync.ErrRemoteRateLimited, http.StatusTooManyRequests, dto.ErrCodeRateLimited},
		{"remote auth failed", sync.ErrRemoteAuthFailed, http.StatusBadGateway, dto.ErrCodeRemoteAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(t)
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
		})
	}

	t.Run("classified validation error includes field details", func(t *testing.T) {
		c, w := newTestContext(t)
		h.HandleError(c, sync.NewValidationError([]sync.FieldViolation{
			{Field: "name", Rule: "required", Message: "name is required"},
			{Field: "email", Rule: "format", Message: "malformed email"},
		}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 2)
		assert.Equal(t, "name", resp.Error.Details[0].Field)
		assert.Equal(t, "required", resp.Error.Details[0].Rule)
	})

	t.Run("classified conflict maps to 409", func(t *testing.T) {
		c, w := newTestContext(t)
		h.HandleError(c, sync.NewConflictError("already linked elsewhere"))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeConflict, decodeResponse(t, w).Error.Code)
	})

	t.Run("classified dependency error maps to 422", func(t *testing.T) {
		c, w := newTestContext(t)
		h.HandleError(c, sync.NewDependencyUnmappedError(sync.EntityTypeContact, uuid.New().String()))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeDependencyUnmapped, decodeResponse(t, w).Error.Code)
	})

	t.Run("domain error uses its code", func(t *testing.T) {
		c, w := newTestContext(t)
		h.HandleError(c, shared.NewDomainError("NOT_FOUND", "record gone"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
		assert.Equal(t, "record gone", resp.Error.Message)
	})

	t.Run("unknown error becomes internal", func(t *testing.T) {
		c, w := newTestContext(t)
		h.HandleError(c, assert.AnError)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, dto.ErrCodeInternal, decodeResponse(t, w).Error.Code)
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		c, w := newTestContext(t)
		h.HandleError(c, nil)

		assert.Empty(t, w.Body.String())
	})
}
