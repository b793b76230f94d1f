package sync

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/google/uuid"

	"github.com/ledgerlink/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// In-memory test doubles shared by the executor and orchestrator tests
// ---------------------------------------------------------------------------

type fakeMappingRepo struct {
	mu       stdsync.Mutex
	mappings map[string]*sync.SyncMapping
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{mappings: make(map[string]*sync.SyncMapping)}
}

func localKey(tenantID uuid.UUID, entityType sync.EntityType, localID uuid.UUID) string {
	return tenantID.String() + "|" + string(entityType) + "|" + localID.String()
}

func (r *fakeMappingRepo) FindByLocalID(_ context.Context, tenantID uuid.UUID, entityType sync.EntityType, localID uuid.UUID) (*sync.SyncMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.mappings[localKey(tenantID, entityType, localID)]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, sync.ErrMappingNotFound
}

func (r *fakeMappingRepo) FindByRemoteID(_ context.Context, tenantID uuid.UUID, entityType sync.EntityType, remoteID string) (*sync.SyncMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mappings {
		if m.TenantID == tenantID && m.EntityType == entityType && m.RemoteID == remoteID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, sync.ErrMappingNotFound
}

func (r *fakeMappingRepo) Upsert(_ context.Context, mapping *sync.SyncMapping) (*sync.SyncMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := localKey(mapping.TenantID, mapping.EntityType, mapping.LocalID)
	if existing, ok := r.mappings[key]; ok && existing.RemoteID != mapping.RemoteID {
		return nil, sync.ErrMappingConflict
	}
	for k, m := range r.mappings {
		if k != key && m.TenantID == mapping.TenantID && m.EntityType == mapping.EntityType && m.RemoteID == mapping.RemoteID {
			return nil, sync.ErrMappingConflict
		}
	}
	copied := *mapping
	r.mappings[key] = &copied
	out := copied
	return &out, nil
}

func (r *fakeMappingRepo) Rebind(_ context.Context, mapping *sync.SyncMapping) (*sync.SyncMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := localKey(mapping.TenantID, mapping.EntityType, mapping.LocalID)
	if _, ok := r.mappings[key]; !ok {
		return nil, sync.ErrMappingNotFound
	}
	for k, m := range r.mappings {
		if k != key && m.TenantID == mapping.TenantID && m.EntityType == mapping.EntityType && m.RemoteID == mapping.RemoteID {
			return nil, sync.ErrMappingConflict
		}
	}
	copied := *mapping
	r.mappings[key] = &copied
	out := copied
	return &out, nil
}

func (r *fakeMappingRepo) Unlink(_ context.Context, tenantID uuid.UUID, entityType sync.EntityType, localID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := localKey(tenantID, entityType, localID)
	if _, ok := r.mappings[key]; !ok {
		return sync.ErrMappingNotFound
	}
	delete(r.mappings, key)
	return nil
}

func (r *fakeMappingRepo) FindAll(_ context.Context, tenantID uuid.UUID, filter sync.MappingFilter) ([]sync.SyncMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []sync.SyncMapping
	for _, m := range r.mappings {
		if m.TenantID != tenantID {
			continue
		}
		if filter.EntityType != nil && m.EntityType != *filter.EntityType {
			continue
		}
		result = append(result, *m)
	}
	return result, nil
}

func (r *fakeMappingRepo) Count(ctx context.Context, tenantID uuid.UUID, filter sync.MappingFilter) (int64, error) {
	all, err := r.FindAll(ctx, tenantID, filter)
	return int64(len(all)), err
}

type fakeLocalStore struct {
	mu      stdsync.Mutex
	records map[string]*sync.Record
}

func newFakeLocalStore() *fakeLocalStore {
	return &fakeLocalStore{records: make(map[string]*sync.Record)}
}

func (s *fakeLocalStore) put(tenantID uuid.UUID, record *sync.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records[localKey(tenantID, record.EntityType, record.LocalID)] = &copied
}

func (s *fakeLocalStore) GetByID(_ context.Context, tenantID uuid.UUID, entityType sync.EntityType, localID uuid.UUID) (*sync.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[localKey(tenantID, entityType, localID)]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, sync.ErrLocalRecordNotFound
}

func (s *fakeLocalStore) Save(_ context.Context, tenantID uuid.UUID, record *sync.Record) (*sync.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records[localKey(tenantID, record.EntityType, record.LocalID)] = &copied
	out := copied
	return &out, nil
}

func (s *fakeLocalStore) List(_ context.Context, tenantID uuid.UUID, entityType sync.EntityType) ([]sync.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []sync.Record
	for key, r := range s.records {
		if r.EntityType == entityType && key == localKey(tenantID, entityType, r.LocalID) {
			result = append(result, *r)
		}
	}
	return result, nil
}

// fakeRemote is an in-memory stand-in for the accounting API
type fakeRemote struct {
	mu      stdsync.Mutex
	nextID  int
	objects map[string]*sync.RemotePayload

	createCalls int
	updateCalls int
	getCalls    int

	failNext error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{objects: make(map[string]*sync.RemotePayload)}
}

func (f *fakeRemote) seed(entityType sync.EntityType, remoteID, version string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[remoteID] = &sync.RemotePayload{
		EntityType: entityType,
		RemoteID:   remoteID,
		Version:    version,
		Body:       body,
	}
}

func (f *fakeRemote) delete(remoteID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, remoteID)
}

func (f *fakeRemote) takeFailure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeRemote) Create(_ context.Context, _ uuid.UUID, payload *sync.RemotePayload) (*sync.RemoteObject, error) {
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.nextID++
	remoteID := fmt.Sprintf("R-%d", f.nextID)
	f.objects[remoteID] = &sync.RemotePayload{
		EntityType: payload.EntityType,
		RemoteID:   remoteID,
		Version:    "v1",
		Body:       payload.Body,
	}
	return &sync.RemoteObject{RemoteID: remoteID, Version: "v1"}, nil
}

func (f *fakeRemote) Update(_ context.Context, _ uuid.UUID, remoteID string, payload *sync.RemotePayload) (*sync.RemoteObject, error) {
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	existing, ok := f.objects[remoteID]
	if !ok {
		return nil, sync.ErrRemoteNotFound
	}
	existing.Body = payload.Body
	existing.Version = existing.Version + "+"
	return &sync.RemoteObject{RemoteID: remoteID, Version: existing.Version}, nil
}

func (f *fakeRemote) GetByID(_ context.Context, _ uuid.UUID, _ sync.EntityType, remoteID string) (*sync.RemotePayload, error) {
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	payload, ok := f.objects[remoteID]
	if !ok {
		return nil, sync.ErrRemoteNotFound
	}
	copied := *payload
	return &copied, nil
}

func (f *fakeRemote) List(_ context.Context, _ uuid.UUID, entityType sync.EntityType, _ sync.RemoteListFilter) ([]sync.RemotePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []sync.RemotePayload
	for _, p := range f.objects {
		if p.EntityType == entityType {
			result = append(result, *p)
		}
	}
	return result, nil
}

type memJobRepo struct {
	mu   stdsync.Mutex
	jobs map[uuid.UUID]*sync.SyncJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]*sync.SyncJob)}
}

func (r *memJobRepo) Save(_ context.Context, job *sync.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *memJobRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*sync.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.TenantID != tenantID {
		return nil, sync.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *memJobRepo) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]sync.SyncJob, error) {
	result := make([]sync.SyncJob, 0, len(ids))
	for _, id := range ids {
		job, err := r.FindByID(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		result = append(result, *job)
	}
	return result, nil
}

type memBatchRepo struct {
	mu      stdsync.Mutex
	batches map[uuid.UUID]*sync.SyncBatch
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: make(map[uuid.UUID]*sync.SyncBatch)}
}

func (r *memBatchRepo) Save(_ context.Context, batch *sync.SyncBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *batch
	r.batches[batch.ID] = &copied
	return nil
}

func (r *memBatchRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*sync.SyncBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[id]
	if !ok || batch.TenantID != tenantID {
		return nil, sync.ErrBatchNotFound
	}
	copied := *batch
	return &copied, nil
}

type memTransitionRepo struct {
	mu      stdsync.Mutex
	entries []sync.Transition
}

func (r *memTransitionRepo) Append(_ context.Context, t *sync.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := *t
	entry.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memTransitionRepo) ListByOwner(_ context.Context, tenantID, ownerID uuid.UUID) ([]sync.Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []sync.Transition
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.OwnerID == ownerID {
			result = append(result, e)
		}
	}
	return result, nil
}
