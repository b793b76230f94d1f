package event

import (
	"github.com/ledgerlink/backend/internal/domain/sync"
)

// RegisterAllEvents registers all domain event types with the serializer so
// consumers can deserialize events received off-process.
func RegisterAllEvents(serializer *EventSerializer) {
	serializer.Register(sync.EventTypeJobStatusChanged, &sync.StatusChangedEvent{})
	serializer.Register(sync.EventTypeBatchStatusChanged, &sync.StatusChangedEvent{})
}
