package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	syncapp "github.com/ledgerlink/backend/internal/application/sync"
	"github.com/ledgerlink/backend/internal/domain/sync"
)

// SyncHandler handles sync-related API endpoints
type SyncHandler struct {
	BaseHandler
	orchestrator *syncapp.Orchestrator
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(orchestrator *syncapp.Orchestrator) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
	}
}

// SyncRecordRequest represents a request to sync a single record
// @Description Request body for synchronizing one record
type SyncRecordRequest struct {
	EntityType string  `json:"entity_type" binding:"required,oneof=CONTACT PRODUCT SALES_DOCUMENT" example:"CONTACT"`
	Direction  string  `json:"direction" binding:"required,oneof=TO_REMOTE FROM_REMOTE BIDIRECTIONAL" example:"TO_REMOTE"`
	LocalID    *string `json:"local_id" binding:"omitempty,uuid" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	RemoteID   *string `json:"remote_id" binding:"omitempty,min=1,max=100" example:"ACC-CUST-1042"`
}

// SyncBatchRequest represents a request to sync every record of one entity type
// @Description Request body for starting a batch sync
type SyncBatchRequest struct {
	EntityType   string     `json:"entity_type" binding:"required,oneof=CONTACT PRODUCT SALES_DOCUMENT" example:"PRODUCT"`
	Direction    string     `json:"direction" binding:"required,oneof=TO_REMOTE FROM_REMOTE BIDIRECTIONAL" example:"FROM_REMOTE"`
	UpdatedSince *time.Time `json:"updated_since" example:"2026-08-01T00:00:00Z"`
}

// SyncRecord godoc
// @ID           syncRecord
// @Summary      Synchronize a single record
// @Description  Pushes or pulls one record and waits for the outcome. A record
// @Description  with a job already in flight is not re-synced; the existing job
// @Description  is returned with the deduplicated flag set.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        request body SyncRecordRequest true "Sync request"
// @Success      200 {object} APIResponse[syncapp.JobResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /sync [post]
func (h *SyncHandler) SyncRecord(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var req SyncRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	appReq := syncapp.SyncOneRequest{
		EntityType: sync.EntityType(req.EntityType),
		Direction:  sync.Direction(req.Direction),
		RemoteID:   req.RemoteID,
	}
	if req.LocalID != nil {
		localID, err := uuid.Parse(*req.LocalID)
		if err != nil {
			h.BadRequest(c, "Invalid local ID format")
			return
		}
		appReq.LocalID = &localID
	}

	job, err := h.orchestrator.SyncOne(c.Request.Context(), tenantID, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, job)
}

// SyncBatch godoc
// @ID           syncBatch
// @Summary      Start a batch sync
// @Description  Enumerates every record of the entity type and schedules sync
// @Description  jobs for them. The batch runs in the background; poll the
// @Description  status endpoint with the returned batch ID.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        request body SyncBatchRequest true "Batch sync request"
// @Success      202 {object} APIResponse[syncapp.BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /sync/batch [post]
func (h *SyncHandler) SyncBatch(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var req SyncBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	batch, err := h.orchestrator.SyncAll(c.Request.Context(), tenantID, syncapp.SyncAllRequest{
		EntityType:   sync.EntityType(req.EntityType),
		Direction:    sync.Direction(req.Direction),
		UpdatedSince: req.UpdatedSince,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, batch)
}

// GetStatus godoc
// @ID           getSyncStatus
// @Summary      Get sync status
// @Description  Returns the current state and full transition history of a
// @Description  sync job or batch.
// @Tags         sync
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Job or batch ID" format(uuid)
// @Success      200 {object} APIResponse[syncapp.StatusResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /sync/{id}/status [get]
func (h *SyncHandler) GetStatus(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid ID format")
		return
	}

	status, err := h.orchestrator.GetStatus(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, status)
}

// CancelBatch godoc
// @ID           cancelSyncBatch
// @Summary      Cancel a running batch
// @Description  Deschedules the batch's queued jobs. Jobs already in progress
// @Description  run to completion.
// @Tags         sync
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {object} APIResponse[syncapp.BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /sync/batches/{id}/cancel [post]
func (h *SyncHandler) CancelBatch(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	batch, err := h.orchestrator.CancelBatch(c.Request.Context(), tenantID, batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, batch)
}

// RetryFailed godoc
// @ID           retrySyncBatch
// @Summary      Retry a batch's failed jobs
// @Description  Creates a new batch containing fresh jobs for every failed job
// @Description  of a finished batch. The original batch is left untouched.
// @Tags         sync
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Batch ID" format(uuid)
// @Success      202 {object} APIResponse[syncapp.BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /sync/batches/{id}/retry [post]
func (h *SyncHandler) RetryFailed(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	batch, err := h.orchestrator.RetryFailed(c.Request.Context(), tenantID, batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, batch)
}

// ListMappings godoc
// @ID           listSyncMappings
// @Summary      List record mappings
// @Description  Returns the tenant's local-to-remote identity links, newest
// @Description  sync first.
// @Tags         sync
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        entity_type query string false "Filter by entity type" Enums(CONTACT, PRODUCT, SALES_DOCUMENT)
// @Param        synced_since query string false "Only mappings synced at or after this time (RFC 3339)"
// @Param        page query int false "Page number (1-based)"
// @Param        page_size query int false "Page size"
// @Success      200 {object} APIResponse[syncapp.MappingListResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /sync/mappings [get]
func (h *SyncHandler) ListMappings(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var query struct {
		EntityType  string `form:"entity_type" binding:"omitempty,oneof=CONTACT PRODUCT SALES_DOCUMENT"`
		SyncedSince string `form:"synced_since" binding:"omitempty"`
		Page        int    `form:"page" binding:"omitempty,min=1"`
		PageSize    int    `form:"page_size" binding:"omitempty,min=1,max=500"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	req := syncapp.MappingListRequest{
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if query.EntityType != "" {
		entityType := sync.EntityType(query.EntityType)
		req.EntityType = &entityType
	}
	if query.SyncedSince != "" {
		since, err := time.Parse(time.RFC3339, query.SyncedSince)
		if err != nil {
			h.BadRequest(c, "Invalid synced_since format, expected RFC 3339")
			return
		}
		req.SyncedSince = &since
	}

	mappings, err := h.orchestrator.ListMappings(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, mappings.Items, mappings.Total, mappings.Page, mappings.PageSize)
}

// Unlink godoc
// @ID           unlinkSyncMapping
// @Summary      Remove a record mapping
// @Description  Deletes the identity link between a local record and its
// @Description  remote counterpart. The next push creates a fresh remote
// @Description  record; neither side's data is deleted.
// @Tags         sync
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        entity_type path string true "Entity type" Enums(CONTACT, PRODUCT, SALES_DOCUMENT)
// @Param        local_id path string true "Local record ID" format(uuid)
// @Success      204
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /sync/mappings/{entity_type}/{local_id} [delete]
func (h *SyncHandler) Unlink(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	entityType := sync.EntityType(c.Param("entity_type"))
	localID, err := uuid.Parse(c.Param("local_id"))
	if err != nil {
		h.BadRequest(c, "Invalid local ID format")
		return
	}

	if err := h.orchestrator.Unlink(c.Request.Context(), tenantID, entityType, localID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}
