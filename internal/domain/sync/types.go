package sync

// ---------------------------------------------------------------------------
// EntityType
// ---------------------------------------------------------------------------

// EntityType identifies the kind of business record being synchronized
type EntityType string

const (
	// EntityTypeContact represents CRM contacts / accounting customers
	EntityTypeContact EntityType = "CONTACT"
	// EntityTypeProduct represents products / accounting articles
	EntityTypeProduct EntityType = "PRODUCT"
	// EntityTypeSalesDocument represents sales documents (invoices, orders)
	EntityTypeSalesDocument EntityType = "SALES_DOCUMENT"
)

// IsValid returns true if the entity type is valid
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeContact, EntityTypeProduct, EntityTypeSalesDocument:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityType
func (t EntityType) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// Direction
// ---------------------------------------------------------------------------

// Direction indicates which way a sync operation flows
type Direction string

const (
	// DirectionToRemote pushes local changes to the accounting system
	DirectionToRemote Direction = "TO_REMOTE"
	// DirectionFromRemote pulls remote changes into the CRM
	DirectionFromRemote Direction = "FROM_REMOTE"
	// DirectionBidirectional pushes and pulls under the conflict policy
	DirectionBidirectional Direction = "BIDIRECTIONAL"
)

// IsValid returns true if the direction is valid
func (d Direction) IsValid() bool {
	switch d {
	case DirectionToRemote, DirectionFromRemote, DirectionBidirectional:
		return true
	default:
		return false
	}
}

// String returns the string representation of Direction
func (d Direction) String() string {
	return string(d)
}

// ---------------------------------------------------------------------------
// Status state machine
// ---------------------------------------------------------------------------

// Status represents the state of a sync job or batch.
//
// Jobs move idle -> queued -> inProgress -> {completed | failed}; a failed job
// may be re-queued for another attempt. Partial applies to batches only and
// means some constituent jobs completed while others failed.
type Status string

const (
	StatusIdle       Status = "IDLE"
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusPartial    Status = "PARTIAL"
)

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusQueued, StatusInProgress, StatusCompleted, StatusFailed, StatusPartial:
		return true
	default:
		return false
	}
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions are allowed for this attempt.
// A failed job may still be re-queued, so failed is not terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusPartial
}

// allowedTransitions encodes the legal state machine edges. The
// queued -> failed edge covers jobs descheduled by a batch cancellation.
var allowedTransitions = map[Status][]Status{
	StatusIdle:       {StatusQueued},
	StatusQueued:     {StatusInProgress, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusPartial},
	StatusFailed:     {StatusQueued},
}

// CanTransitionTo returns true if the state machine permits moving to next
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range allowedTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
