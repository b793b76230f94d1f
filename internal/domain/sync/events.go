package sync

import (
	"github.com/ledgerlink/backend/internal/domain/shared"
)

// Event type constants
const (
	EventTypeJobStatusChanged   = "sync.job.status_changed"
	EventTypeBatchStatusChanged = "sync.batch.status_changed"
)

// Aggregate type constants
const (
	AggregateTypeSyncJob   = "SyncJob"
	AggregateTypeSyncBatch = "SyncBatch"
)

// StatusChangedEvent is emitted for every recorded job or batch transition.
// Consumers (webhooks, audit sinks) must tolerate delivery lag; the tracker
// never blocks on them.
type StatusChangedEvent struct {
	shared.BaseDomainEvent
	OwnerKind  OwnerKind  `json:"owner_kind"`
	EntityType EntityType `json:"entity_type"`
	FromState  Status     `json:"from_state"`
	ToState    Status     `json:"to_state"`
	Detail     string     `json:"detail,omitempty"`
	ErrorClass ErrorClass `json:"error_class,omitempty"`
}

// NewStatusChangedEvent creates a status change event from a transition
func NewStatusChangedEvent(t *Transition) *StatusChangedEvent {
	eventType := EventTypeJobStatusChanged
	aggType := AggregateTypeSyncJob
	if t.OwnerKind == OwnerKindBatch {
		eventType = EventTypeBatchStatusChanged
		aggType = AggregateTypeSyncBatch
	}

	event := &StatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, aggType, t.OwnerID, t.TenantID),
		OwnerKind:       t.OwnerKind,
		EntityType:      t.EntityType,
		FromState:       t.FromState,
		ToState:         t.ToState,
		Detail:          t.Detail,
	}
	if t.Error != nil {
		event.ErrorClass = t.Error.Class
	}
	return event
}

var _ shared.DomainEvent = (*StatusChangedEvent)(nil)
