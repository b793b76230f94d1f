package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlink/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

// SyncOneRequest asks for a single record sync
type SyncOneRequest struct {
	EntityType sync.EntityType `json:"entity_type" validate:"required"`
	Direction  sync.Direction  `json:"direction" validate:"required"`
	LocalID    *uuid.UUID      `json:"local_id,omitempty"`
	RemoteID   *string         `json:"remote_id,omitempty"`
}

// SyncAllRequest asks for a batch sync of every record of one entity type
type SyncAllRequest struct {
	EntityType sync.EntityType `json:"entity_type" validate:"required"`
	Direction  sync.Direction  `json:"direction" validate:"required"`
	// UpdatedSince restricts a fromRemote batch to recently changed records
	UpdatedSince *time.Time `json:"updated_since,omitempty"`
}

// MappingListRequest filters the mapping listing
type MappingListRequest struct {
	EntityType  *sync.EntityType `form:"entity_type"`
	SyncedSince *time.Time       `form:"synced_since"`
	Page        int              `form:"page"`
	PageSize    int              `form:"page_size"`
}

// ---------------------------------------------------------------------------
// Response DTOs
// ---------------------------------------------------------------------------

// JobResponse represents a sync job in API responses
type JobResponse struct {
	ID         uuid.UUID             `json:"id"`
	EntityType sync.EntityType       `json:"entity_type"`
	LocalID    *uuid.UUID            `json:"local_id,omitempty"`
	RemoteID   *string               `json:"remote_id,omitempty"`
	Direction  sync.Direction        `json:"direction"`
	Status     sync.Status           `json:"status"`
	Attempt    int                   `json:"attempt"`
	Detail     string                `json:"detail,omitempty"`
	LastError  *sync.ClassifiedError `json:"last_error,omitempty"`
	BatchID    *uuid.UUID            `json:"batch_id,omitempty"`
	// Deduplicated is true when the request matched a job already in flight
	// for the same record; the existing job is returned.
	Deduplicated bool       `json:"deduplicated,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewJobResponse builds a JobResponse from a job
func NewJobResponse(job *sync.SyncJob) *JobResponse {
	return &JobResponse{
		ID:          job.ID,
		EntityType:  job.EntityType,
		LocalID:     job.LocalID,
		RemoteID:    job.RemoteID,
		Direction:   job.Direction,
		Status:      job.Status,
		Attempt:     job.Attempt,
		Detail:      job.Detail,
		LastError:   job.LastError,
		BatchID:     job.BatchID,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
}

// BatchResponse represents a sync batch in API responses
type BatchResponse struct {
	ID             uuid.UUID       `json:"id"`
	EntityType     sync.EntityType `json:"entity_type"`
	Direction      sync.Direction  `json:"direction"`
	Status         sync.Status     `json:"status"`
	TotalCount     int             `json:"total_count"`
	SucceededCount int             `json:"succeeded_count"`
	FailedCount    int             `json:"failed_count"`
	PendingCount   int             `json:"pending_count"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// NewBatchResponse builds a BatchResponse from a batch
func NewBatchResponse(batch *sync.SyncBatch) *BatchResponse {
	return &BatchResponse{
		ID:             batch.ID,
		EntityType:     batch.EntityType,
		Direction:      batch.Direction,
		Status:         batch.Status,
		TotalCount:     batch.TotalCount,
		SucceededCount: batch.SucceededCount,
		FailedCount:    batch.FailedCount,
		PendingCount:   batch.PendingCount(),
		CreatedAt:      batch.CreatedAt,
		CompletedAt:    batch.CompletedAt,
	}
}

// TransitionResponse is one entry of a status history
type TransitionResponse struct {
	FromState  sync.Status           `json:"from_state"`
	ToState    sync.Status           `json:"to_state"`
	Detail     string                `json:"detail,omitempty"`
	Error      *sync.ClassifiedError `json:"error,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// StatusResponse answers a status query for a job or batch id
type StatusResponse struct {
	Job     *JobResponse         `json:"job,omitempty"`
	Batch   *BatchResponse       `json:"batch,omitempty"`
	History []TransitionResponse `json:"history"`
}

// NewTransitionResponses converts a transition log
func NewTransitionResponses(transitions []sync.Transition) []TransitionResponse {
	result := make([]TransitionResponse, len(transitions))
	for i, t := range transitions {
		result[i] = TransitionResponse{
			FromState:  t.FromState,
			ToState:    t.ToState,
			Detail:     t.Detail,
			Error:      t.Error,
			OccurredAt: t.OccurredAt,
		}
	}
	return result
}

// MappingResponse represents a mapping in API responses
type MappingResponse struct {
	ID                uuid.UUID       `json:"id"`
	EntityType        sync.EntityType `json:"entity_type"`
	LocalID           uuid.UUID       `json:"local_id"`
	RemoteID          string          `json:"remote_id"`
	LastLocalHash     string          `json:"last_local_hash,omitempty"`
	LastRemoteVersion string          `json:"last_remote_version,omitempty"`
	LastSyncedAt      time.Time       `json:"last_synced_at"`
	SyncDirection     sync.Direction  `json:"sync_direction"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NewMappingResponse builds a MappingResponse from a mapping
func NewMappingResponse(m *sync.SyncMapping) MappingResponse {
	return MappingResponse{
		ID:                m.ID,
		EntityType:        m.EntityType,
		LocalID:           m.LocalID,
		RemoteID:          m.RemoteID,
		LastLocalHash:     m.LastLocalHash,
		LastRemoteVersion: m.LastRemoteVersion,
		LastSyncedAt:      m.LastSyncedAt,
		SyncDirection:     m.SyncDirection,
		CreatedAt:         m.CreatedAt,
	}
}

// MappingListResponse is a paged mapping listing
type MappingListResponse struct {
	Items    []MappingResponse `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}
