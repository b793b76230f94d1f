package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// RemoteClient port
// ---------------------------------------------------------------------------

// RemoteListFilter narrows remote list queries
type RemoteListFilter struct {
	// UpdatedSince restricts results to records changed at or after this time
	UpdatedSince *time.Time
	// PageSize bounds one page of results; implementations paginate internally
	PageSize int
}

// RemoteClient is the port for the external accounting API. The engine treats
// it as an opaque system honoring create/update/read-by-id semantics; tenant
// credentials are supplied by the adapter, never by the engine.
//
// Implementations return the sentinel remote errors (ErrRemoteRateLimited,
// ErrRemoteUnavailable, ErrRemoteAuthFailed, ErrRemoteNotFound) or a
// *RemoteAPIError so the classifier can make retry decisions.
type RemoteClient interface {
	// Create creates a remote record and returns its identity
	Create(ctx context.Context, tenantID uuid.UUID, payload *RemotePayload) (*RemoteObject, error)

	// Update updates an existing remote record and returns the new version
	Update(ctx context.Context, tenantID uuid.UUID, remoteID string, payload *RemotePayload) (*RemoteObject, error)

	// GetByID fetches one remote record
	GetByID(ctx context.Context, tenantID uuid.UUID, entityType EntityType, remoteID string) (*RemotePayload, error)

	// List fetches remote records matching the filter
	List(ctx context.Context, tenantID uuid.UUID, entityType EntityType, filter RemoteListFilter) ([]RemotePayload, error)
}

// ---------------------------------------------------------------------------
// LocalStore port
// ---------------------------------------------------------------------------

// LocalStore is the port for CRM record persistence. The engine treats it as
// a simple keyed store owned by the CRM side of the application.
type LocalStore interface {
	// GetByID loads one local record
	GetByID(ctx context.Context, tenantID uuid.UUID, entityType EntityType, localID uuid.UUID) (*Record, error)

	// Save creates or updates a local record and returns the stored version
	Save(ctx context.Context, tenantID uuid.UUID, record *Record) (*Record, error)

	// List returns all local records of one entity type
	List(ctx context.Context, tenantID uuid.UUID, entityType EntityType) ([]Record, error)
}

// ---------------------------------------------------------------------------
// StatusTracker port
// ---------------------------------------------------------------------------

// OwnerKind distinguishes job and batch history owners
type OwnerKind string

const (
	OwnerKindJob   OwnerKind = "JOB"
	OwnerKindBatch OwnerKind = "BATCH"
)

// Transition is one immutable entry of the status history log
type Transition struct {
	ID         int64
	OwnerID    uuid.UUID
	OwnerKind  OwnerKind
	TenantID   uuid.UUID
	EntityType EntityType
	FromState  Status
	ToState    Status
	// Detail carries outcome detail or the classified error code
	Detail     string
	Error      *ClassifiedError
	OccurredAt time.Time
}

// StatusTracker records every job/batch state change into an append-only
// history and answers status queries. It is the sole owner of job/batch
// state persistence.
type StatusTracker interface {
	// RecordTransition validates the edge against the state machine, appends
	// it to the history and emits a status event. It never blocks on event
	// consumers.
	RecordTransition(ctx context.Context, owner *Transition) error

	// History returns the ordered transition log for a job or batch
	History(ctx context.Context, tenantID uuid.UUID, ownerID uuid.UUID) ([]Transition, error)
}

// TransitionRepository persists the append-only history log
type TransitionRepository interface {
	// Append adds one transition; entries are never updated or deleted
	Append(ctx context.Context, t *Transition) error

	// ListByOwner returns transitions for an owner in append order
	ListByOwner(ctx context.Context, tenantID uuid.UUID, ownerID uuid.UUID) ([]Transition, error)
}

// ---------------------------------------------------------------------------
// InFlightRegistry port
// ---------------------------------------------------------------------------

// InFlightRegistry enforces at-most-one in-flight job per record. Acquire is
// atomic: the first caller wins and later callers receive the holder's job id
// so duplicate submissions can return the existing job.
type InFlightRegistry interface {
	// Acquire registers jobID for key. Returns (jobID, true) on success or
	// (holderJobID, false) when another job already holds the key.
	Acquire(ctx context.Context, key string, jobID uuid.UUID, ttl time.Duration) (uuid.UUID, bool, error)

	// Release frees the key if jobID still holds it
	Release(ctx context.Context, key string, jobID uuid.UUID) error
}

// ---------------------------------------------------------------------------
// Execution ports
// ---------------------------------------------------------------------------

// JobExecutor runs one job's direction-specific pipeline. It returns nil on
// success (including recorded skips) and a classifiable error on failure;
// the processor owns retries, the executor must stay retry-agnostic.
type JobExecutor interface {
	Execute(ctx context.Context, job *SyncJob) error
}

// BatchProcessor schedules jobs against the remote system under chunking,
// bounded per-tenant concurrency and rate-limit-aware backoff.
type BatchProcessor interface {
	// RunJob executes a single job synchronously, driving its full retry loop
	RunJob(ctx context.Context, job *SyncJob) error

	// RunBatch executes all jobs of a batch and finalizes its counters
	RunBatch(ctx context.Context, batch *SyncBatch, jobs []*SyncJob) error

	// Cancel stops scheduling of not-yet-started jobs of a batch; in-flight
	// jobs run to completion.
	Cancel(batchID uuid.UUID)
}
