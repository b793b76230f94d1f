package sync

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/sync"
	"github.com/ledgerlink/backend/internal/infrastructure/convert"
)

// Outcome details recorded on completed jobs
const (
	DetailSkippedUnchanged  = "skipped-unchanged"
	DetailSkippedLocalNewer = "skipped-local-newer"
	DetailCreated           = "created"
	DetailUpdated           = "updated"
	DetailPulled            = "pulled"
)

// Executor runs the direction-specific pipeline of one sync job. It is
// retry-agnostic: every failure is returned to the processor, which owns the
// retry loop and the job state machine.
type Executor struct {
	converter sync.Converter
	mappings  sync.MappingRepository
	local     sync.LocalStore
	remote    sync.RemoteClient
	logger    *zap.Logger
}

// NewExecutor creates a job executor
func NewExecutor(
	converter sync.Converter,
	mappings sync.MappingRepository,
	local sync.LocalStore,
	remote sync.RemoteClient,
	logger *zap.Logger,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		converter: converter,
		mappings:  mappings,
		local:     local,
		remote:    remote,
		logger:    logger,
	}
}

// Execute runs the job's pipeline. On success the job's Detail field holds
// the outcome; bidirectional jobs push first, then pull under the conflict
// policy.
func (e *Executor) Execute(ctx context.Context, job *sync.SyncJob) error {
	switch job.Direction {
	case sync.DirectionToRemote:
		return e.push(ctx, job)
	case sync.DirectionFromRemote:
		return e.pull(ctx, job)
	case sync.DirectionBidirectional:
		if err := e.push(ctx, job); err != nil {
			return err
		}
		pushDetail := job.Detail
		if err := e.pull(ctx, job); err != nil {
			return err
		}
		job.Detail = pushDetail + "+" + job.Detail
		return nil
	default:
		return sync.ErrInvalidDirection
	}
}

// ---------------------------------------------------------------------------
// Push pipeline (local -> remote)
// ---------------------------------------------------------------------------

func (e *Executor) push(ctx context.Context, job *sync.SyncJob) error {
	if job.LocalID == nil {
		return &sync.ClassifiedError{
			Class:   sync.ErrorClassValidation,
			Code:    "MISSING_LOCAL_ID",
			Message: "push requires a local record id",
		}
	}

	record, err := e.local.GetByID(ctx, job.TenantID, job.EntityType, *job.LocalID)
	if err != nil {
		if errors.Is(err, sync.ErrLocalRecordNotFound) {
			return &sync.ClassifiedError{
				Class:   sync.ErrorClassValidation,
				Code:    "LOCAL_RECORD_NOT_FOUND",
				Message: "local record does not exist",
			}
		}
		return err
	}

	result := e.converter.ToRemote(record)
	if !result.Valid() {
		return result.Err()
	}
	payload := result.Payload

	// Documents reference other records by local id; resolve every reference
	// to its remote id before any network call. A single unmapped reference
	// fails the job permanently.
	if record.EntityType == sync.EntityTypeSalesDocument {
		resolved, err := e.resolveReferences(ctx, job.TenantID, record, payload.Body)
		if err != nil {
			return err
		}
		payload.Body = resolved
	}

	hash := convert.Fingerprint(payload.Body)

	mapping, err := e.mappings.FindByLocalID(ctx, job.TenantID, job.EntityType, *job.LocalID)
	switch {
	case err == nil:
		return e.pushUpdate(ctx, job, mapping, payload, hash)
	case errors.Is(err, sync.ErrMappingNotFound):
		return e.pushCreate(ctx, job, record, payload, hash)
	default:
		return err
	}
}

// pushUpdate re-syncs an already-mapped record
func (e *Executor) pushUpdate(ctx context.Context, job *sync.SyncJob, mapping *sync.SyncMapping, payload *sync.RemotePayload, hash string) error {
	if mapping.LastLocalHash == hash {
		job.RemoteID = &mapping.RemoteID
		job.Detail = DetailSkippedUnchanged
		return nil
	}

	obj, err := e.remote.Update(ctx, job.TenantID, mapping.RemoteID, payload)
	if errors.Is(err, sync.ErrRemoteNotFound) {
		return e.recreateVanished(ctx, job, mapping, payload, hash)
	}
	if err != nil {
		return err
	}

	mapping.RecordSync(hash, obj.Version)
	if _, err := e.mappings.Upsert(ctx, mapping); err != nil {
		return err
	}
	job.RemoteID = &mapping.RemoteID
	job.Detail = DetailUpdated
	return nil
}

// recreateVanished handles a mapped remote record deleted out of band: the
// record is recreated and the mapping rebound to the new identity. Rebind
// (not Upsert) is required because the mapping's RemoteID changes.
func (e *Executor) recreateVanished(ctx context.Context, job *sync.SyncJob, mapping *sync.SyncMapping, payload *sync.RemotePayload, hash string) error {
	e.logger.Warn("Mapped remote record vanished, recreating",
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("remote_id", mapping.RemoteID),
	)

	obj, err := e.remote.Create(ctx, job.TenantID, payload)
	if err != nil {
		return err
	}

	mapping.RemoteID = obj.RemoteID
	mapping.RecordSync(hash, obj.Version)
	if _, err := e.mappings.Rebind(ctx, mapping); err != nil {
		return err
	}
	job.RemoteID = &mapping.RemoteID
	job.Detail = DetailUpdated
	return nil
}

// pushCreate first-time-syncs a record and binds the mapping
func (e *Executor) pushCreate(ctx context.Context, job *sync.SyncJob, record *sync.Record, payload *sync.RemotePayload, hash string) error {
	obj, err := e.remote.Create(ctx, job.TenantID, payload)
	if err != nil {
		return err
	}

	mapping, err := sync.NewSyncMapping(job.TenantID, job.EntityType, record.LocalID, obj.RemoteID, job.Direction)
	if err != nil {
		return err
	}
	mapping.RecordSync(hash, obj.Version)
	if _, err := e.mappings.Upsert(ctx, mapping); err != nil {
		return err
	}
	job.RemoteID = &obj.RemoteID
	job.Detail = DetailCreated
	return nil
}

// resolveReferences substitutes remote ids for a document's local references
func (e *Executor) resolveReferences(ctx context.Context, tenantID uuid.UUID, record *sync.Record, body []byte) ([]byte, error) {
	doc := record.SalesDocument
	resolved := make(map[uuid.UUID]string)

	lookup := func(entityType sync.EntityType, localID uuid.UUID) (string, error) {
		if remoteID, ok := resolved[localID]; ok {
			return remoteID, nil
		}
		mapping, err := e.mappings.FindByLocalID(ctx, tenantID, entityType, localID)
		if errors.Is(err, sync.ErrMappingNotFound) {
			return "", sync.NewDependencyUnmappedError(entityType, localID.String())
		}
		if err != nil {
			return "", err
		}
		resolved[localID] = mapping.RemoteID
		return mapping.RemoteID, nil
	}

	if doc.ContactLocalID != uuid.Nil {
		remoteID, err := lookup(sync.EntityTypeContact, doc.ContactLocalID)
		if err != nil {
			return nil, err
		}
		body, _ = sjson.SetBytes(body, "customer_id", remoteID)
	}
	for i, line := range doc.Lines {
		if line.ProductLocalID == uuid.Nil {
			continue
		}
		remoteID, err := lookup(sync.EntityTypeProduct, line.ProductLocalID)
		if err != nil {
			return nil, err
		}
		body, _ = sjson.SetBytes(body, "lines."+strconv.Itoa(i)+".article_id", remoteID)
	}
	return body, nil
}

// ---------------------------------------------------------------------------
// Pull pipeline (remote -> local)
// ---------------------------------------------------------------------------

func (e *Executor) pull(ctx context.Context, job *sync.SyncJob) error {
	remoteID, mapping, err := e.resolvePullTarget(ctx, job)
	if err != nil {
		return err
	}

	payload, err := e.remote.GetByID(ctx, job.TenantID, job.EntityType, remoteID)
	if err != nil {
		return err
	}

	// Nothing changed remotely since the last sync
	if mapping != nil && payload.Version != "" && payload.Version == mapping.LastRemoteVersion {
		job.Detail = DetailSkippedUnchanged
		return nil
	}

	result := e.converter.ToLocal(payload)
	if !result.Valid() {
		return result.Err()
	}
	record := result.Record

	if mapping != nil {
		record.LocalID = mapping.LocalID
		// Conflict policy: a local edit newer than the last sync wins; the
		// pull is skipped and surfaces the decision in the job detail.
		local, err := e.local.GetByID(ctx, job.TenantID, job.EntityType, mapping.LocalID)
		if err == nil && local.UpdatedAt.After(mapping.LastSyncedAt) {
			job.Detail = DetailSkippedLocalNewer
			return nil
		}
		if err != nil && !errors.Is(err, sync.ErrLocalRecordNotFound) {
			return err
		}
	} else {
		record.LocalID = uuid.New()
	}

	saved, err := e.local.Save(ctx, job.TenantID, record)
	if err != nil {
		return err
	}

	hash := ""
	if pushed := e.converter.ToRemote(saved); pushed.Valid() {
		hash = convert.Fingerprint(pushed.Payload.Body)
	}

	if mapping == nil {
		mapping, err = sync.NewSyncMapping(job.TenantID, job.EntityType, saved.LocalID, remoteID, job.Direction)
		if err != nil {
			return err
		}
	}
	mapping.RecordSync(hash, payload.Version)
	if _, err := e.mappings.Upsert(ctx, mapping); err != nil {
		return err
	}

	job.LocalID = &saved.LocalID
	job.RemoteID = &remoteID
	job.Detail = DetailPulled
	return nil
}

// resolvePullTarget determines the remote id to fetch and the existing
// mapping, if any.
func (e *Executor) resolvePullTarget(ctx context.Context, job *sync.SyncJob) (string, *sync.SyncMapping, error) {
	if job.RemoteID != nil {
		mapping, err := e.mappings.FindByRemoteID(ctx, job.TenantID, job.EntityType, *job.RemoteID)
		if errors.Is(err, sync.ErrMappingNotFound) {
			return *job.RemoteID, nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		return *job.RemoteID, mapping, nil
	}

	if job.LocalID != nil {
		mapping, err := e.mappings.FindByLocalID(ctx, job.TenantID, job.EntityType, *job.LocalID)
		if errors.Is(err, sync.ErrMappingNotFound) {
			return "", nil, &sync.ClassifiedError{
				Class:   sync.ErrorClassValidation,
				Code:    "NOT_MAPPED",
				Message: "record has never been synced, nothing to pull",
			}
		}
		if err != nil {
			return "", nil, err
		}
		return mapping.RemoteID, mapping, nil
	}

	return "", nil, &sync.ClassifiedError{
		Class:   sync.ErrorClassValidation,
		Code:    "MISSING_RECORD_ID",
		Message: "pull requires a local or remote record id",
	}
}

// Ensure Executor implements sync.JobExecutor
var _ sync.JobExecutor = (*Executor)(nil)
