package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlink/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// SyncMappingModel
// ---------------------------------------------------------------------------

// SyncMappingModel is the persistence model for the SyncMapping domain entity.
// Both identity sides carry a unique composite index so the database enforces
// the one-to-one correspondence between local and remote records.
type SyncMappingModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_sync_mapping_local,priority:1;uniqueIndex:idx_sync_mapping_remote,priority:1"`
	EntityType        sync.EntityType `gorm:"type:varchar(30);not null;uniqueIndex:idx_sync_mapping_local,priority:2;uniqueIndex:idx_sync_mapping_remote,priority:2"`
	LocalID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_sync_mapping_local,priority:3"`
	RemoteID          string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_sync_mapping_remote,priority:3"`
	LastLocalHash     string          `gorm:"type:varchar(80)"`
	LastRemoteVersion string          `gorm:"type:varchar(100)"`
	LastSyncedAt      time.Time       `gorm:"not null;index"`
	SyncDirection     sync.Direction  `gorm:"type:varchar(20);not null"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncMappingModel) TableName() string {
	return "sync_mappings"
}

// ToDomain converts the persistence model to a domain SyncMapping entity.
func (m *SyncMappingModel) ToDomain() *sync.SyncMapping {
	return &sync.SyncMapping{
		ID:                m.ID,
		TenantID:          m.TenantID,
		EntityType:        m.EntityType,
		LocalID:           m.LocalID,
		RemoteID:          m.RemoteID,
		LastLocalHash:     m.LastLocalHash,
		LastRemoteVersion: m.LastRemoteVersion,
		LastSyncedAt:      m.LastSyncedAt,
		SyncDirection:     m.SyncDirection,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncMapping entity.
func (m *SyncMappingModel) FromDomain(mapping *sync.SyncMapping) {
	m.ID = mapping.ID
	m.TenantID = mapping.TenantID
	m.EntityType = mapping.EntityType
	m.LocalID = mapping.LocalID
	m.RemoteID = mapping.RemoteID
	m.LastLocalHash = mapping.LastLocalHash
	m.LastRemoteVersion = mapping.LastRemoteVersion
	m.LastSyncedAt = mapping.LastSyncedAt
	m.SyncDirection = mapping.SyncDirection
	m.CreatedAt = mapping.CreatedAt
	m.UpdatedAt = mapping.UpdatedAt
}

// SyncMappingModelFromDomain creates a new persistence model from a domain SyncMapping entity.
func SyncMappingModelFromDomain(mapping *sync.SyncMapping) *SyncMappingModel {
	m := &SyncMappingModel{}
	m.FromDomain(mapping)
	return m
}

// ---------------------------------------------------------------------------
// SyncJobModel
// ---------------------------------------------------------------------------

// SyncJobModel is the persistence model for the SyncJob domain entity.
// The classified error is stored as JSON so violations and remote bodies
// survive round trips without schema churn.
type SyncJobModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_sync_job_tenant,priority:1"`
	EntityType    sync.EntityType `gorm:"type:varchar(30);not null"`
	LocalID       *uuid.UUID      `gorm:"type:uuid;index"`
	RemoteID      *string         `gorm:"type:varchar(100)"`
	Direction     sync.Direction  `gorm:"type:varchar(20);not null"`
	Status        sync.Status     `gorm:"type:varchar(20);not null;index:idx_sync_job_tenant,priority:2"`
	Attempt       int             `gorm:"not null;default:0"`
	LastErrorJSON string          `gorm:"type:jsonb;column:last_error"`
	Detail        string          `gorm:"type:varchar(120)"`
	BatchID       *uuid.UUID      `gorm:"type:uuid;index"`
	CreatedAt     time.Time       `gorm:"not null"`
	CompletedAt   *time.Time
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain SyncJob entity.
func (m *SyncJobModel) ToDomain() *sync.SyncJob {
	job := &sync.SyncJob{
		ID:          m.ID,
		TenantID:    m.TenantID,
		EntityType:  m.EntityType,
		LocalID:     m.LocalID,
		RemoteID:    m.RemoteID,
		Direction:   m.Direction,
		Status:      m.Status,
		Attempt:     m.Attempt,
		Detail:      m.Detail,
		BatchID:     m.BatchID,
		CreatedAt:   m.CreatedAt,
		CompletedAt: m.CompletedAt,
	}
	if m.LastErrorJSON != "" {
		var cerr sync.ClassifiedError
		if err := json.Unmarshal([]byte(m.LastErrorJSON), &cerr); err == nil {
			job.LastError = &cerr
		}
	}
	return job
}

// FromDomain populates the persistence model from a domain SyncJob entity.
func (m *SyncJobModel) FromDomain(job *sync.SyncJob) {
	m.ID = job.ID
	m.TenantID = job.TenantID
	m.EntityType = job.EntityType
	m.LocalID = job.LocalID
	m.RemoteID = job.RemoteID
	m.Direction = job.Direction
	m.Status = job.Status
	m.Attempt = job.Attempt
	m.Detail = job.Detail
	m.BatchID = job.BatchID
	m.CreatedAt = job.CreatedAt
	m.CompletedAt = job.CompletedAt

	m.LastErrorJSON = ""
	if job.LastError != nil {
		if jsonBytes, err := json.Marshal(job.LastError); err == nil {
			m.LastErrorJSON = string(jsonBytes)
		}
	}
}

// SyncJobModelFromDomain creates a new persistence model from a domain SyncJob entity.
func SyncJobModelFromDomain(job *sync.SyncJob) *SyncJobModel {
	m := &SyncJobModel{}
	m.FromDomain(job)
	return m
}

// ---------------------------------------------------------------------------
// SyncBatchModel
// ---------------------------------------------------------------------------

// SyncBatchModel is the persistence model for the SyncBatch domain entity
type SyncBatchModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	EntityType     sync.EntityType `gorm:"type:varchar(30);not null"`
	Direction      sync.Direction  `gorm:"type:varchar(20);not null"`
	JobIDsJSON     string          `gorm:"type:jsonb;column:job_ids"`
	TotalCount     int             `gorm:"not null;default:0"`
	SucceededCount int             `gorm:"not null;default:0"`
	FailedCount    int             `gorm:"not null;default:0"`
	Status         sync.Status     `gorm:"type:varchar(20);not null;index"`
	CreatedAt      time.Time       `gorm:"not null"`
	CompletedAt    *time.Time
}

// TableName returns the table name for GORM
func (SyncBatchModel) TableName() string {
	return "sync_batches"
}

// ToDomain converts the persistence model to a domain SyncBatch entity.
func (m *SyncBatchModel) ToDomain() *sync.SyncBatch {
	batch := &sync.SyncBatch{
		ID:             m.ID,
		TenantID:       m.TenantID,
		EntityType:     m.EntityType,
		Direction:      m.Direction,
		JobIDs:         make([]uuid.UUID, 0),
		TotalCount:     m.TotalCount,
		SucceededCount: m.SucceededCount,
		FailedCount:    m.FailedCount,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
		CompletedAt:    m.CompletedAt,
	}
	if m.JobIDsJSON != "" {
		var ids []uuid.UUID
		if err := json.Unmarshal([]byte(m.JobIDsJSON), &ids); err == nil {
			batch.JobIDs = ids
		}
	}
	return batch
}

// FromDomain populates the persistence model from a domain SyncBatch entity.
func (m *SyncBatchModel) FromDomain(batch *sync.SyncBatch) {
	m.ID = batch.ID
	m.TenantID = batch.TenantID
	m.EntityType = batch.EntityType
	m.Direction = batch.Direction
	m.TotalCount = batch.TotalCount
	m.SucceededCount = batch.SucceededCount
	m.FailedCount = batch.FailedCount
	m.Status = batch.Status
	m.CreatedAt = batch.CreatedAt
	m.CompletedAt = batch.CompletedAt

	if len(batch.JobIDs) > 0 {
		if jsonBytes, err := json.Marshal(batch.JobIDs); err == nil {
			m.JobIDsJSON = string(jsonBytes)
		}
	} else {
		m.JobIDsJSON = "[]"
	}
}

// SyncBatchModelFromDomain creates a new persistence model from a domain SyncBatch entity.
func SyncBatchModelFromDomain(batch *sync.SyncBatch) *SyncBatchModel {
	m := &SyncBatchModel{}
	m.FromDomain(batch)
	return m
}

// ---------------------------------------------------------------------------
// SyncTransitionModel
// ---------------------------------------------------------------------------

// SyncTransitionModel is the append-only persistence model for status
// transitions. The auto-incremented id preserves append order within an owner.
type SyncTransitionModel struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	OwnerID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_sync_transition_owner,priority:2"`
	OwnerKind  sync.OwnerKind  `gorm:"type:varchar(10);not null"`
	TenantID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_sync_transition_owner,priority:1"`
	EntityType sync.EntityType `gorm:"type:varchar(30);not null"`
	FromState  sync.Status     `gorm:"type:varchar(20);not null"`
	ToState    sync.Status     `gorm:"type:varchar(20);not null"`
	Detail     string          `gorm:"type:varchar(200)"`
	ErrorJSON  string          `gorm:"type:jsonb;column:error"`
	OccurredAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncTransitionModel) TableName() string {
	return "sync_transitions"
}

// ToDomain converts the persistence model to a domain Transition.
func (m *SyncTransitionModel) ToDomain() sync.Transition {
	t := sync.Transition{
		ID:         m.ID,
		OwnerID:    m.OwnerID,
		OwnerKind:  m.OwnerKind,
		TenantID:   m.TenantID,
		EntityType: m.EntityType,
		FromState:  m.FromState,
		ToState:    m.ToState,
		Detail:     m.Detail,
		OccurredAt: m.OccurredAt,
	}
	if m.ErrorJSON != "" {
		var cerr sync.ClassifiedError
		if err := json.Unmarshal([]byte(m.ErrorJSON), &cerr); err == nil {
			t.Error = &cerr
		}
	}
	return t
}

// FromDomain populates the persistence model from a domain Transition.
func (m *SyncTransitionModel) FromDomain(t *sync.Transition) {
	m.ID = t.ID
	m.OwnerID = t.OwnerID
	m.OwnerKind = t.OwnerKind
	m.TenantID = t.TenantID
	m.EntityType = t.EntityType
	m.FromState = t.FromState
	m.ToState = t.ToState
	m.Detail = t.Detail
	m.OccurredAt = t.OccurredAt

	m.ErrorJSON = ""
	if t.Error != nil {
		if jsonBytes, err := json.Marshal(t.Error); err == nil {
			m.ErrorJSON = string(jsonBytes)
		}
	}
}

// ---------------------------------------------------------------------------
// LocalRecordModel
// ---------------------------------------------------------------------------

// LocalRecordModel is the persistence model for local business records. The
// record shape (contact, article or document plus the passthrough field bag)
// is stored as one JSONB payload keyed by tenant, type and local id.
type LocalRecordModel struct {
	TenantID    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	EntityType  sync.EntityType `gorm:"type:varchar(30);primaryKey"`
	LocalID     uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PayloadJSON string          `gorm:"type:jsonb;column:payload;not null"`
	UpdatedAt   time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (LocalRecordModel) TableName() string {
	return "local_records"
}

// localRecordPayload is the JSON shape stored in the payload column
type localRecordPayload struct {
	Contact       *sync.Contact       `json:"contact,omitempty"`
	Product       *sync.Product       `json:"product,omitempty"`
	SalesDocument *sync.SalesDocument `json:"sales_document,omitempty"`
	Extra         map[string]any      `json:"extra,omitempty"`
}

// ToDomain converts the persistence model to a domain Record.
func (m *LocalRecordModel) ToDomain() (*sync.Record, error) {
	var payload localRecordPayload
	if err := json.Unmarshal([]byte(m.PayloadJSON), &payload); err != nil {
		return nil, err
	}
	return &sync.Record{
		EntityType:    m.EntityType,
		LocalID:       m.LocalID,
		UpdatedAt:     m.UpdatedAt,
		Contact:       payload.Contact,
		Product:       payload.Product,
		SalesDocument: payload.SalesDocument,
		Extra:         payload.Extra,
	}, nil
}

// FromDomain populates the persistence model from a domain Record.
func (m *LocalRecordModel) FromDomain(tenantID uuid.UUID, record *sync.Record) error {
	jsonBytes, err := json.Marshal(localRecordPayload{
		Contact:       record.Contact,
		Product:       record.Product,
		SalesDocument: record.SalesDocument,
		Extra:         record.Extra,
	})
	if err != nil {
		return err
	}
	m.TenantID = tenantID
	m.EntityType = record.EntityType
	m.LocalID = record.LocalID
	m.PayloadJSON = string(jsonBytes)
	m.UpdatedAt = record.UpdatedAt
	return nil
}
