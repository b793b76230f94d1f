package sync

// ---------------------------------------------------------------------------
// Converter boundary types
// ---------------------------------------------------------------------------

// RemotePayload is a remote-shaped document. Body is the JSON document the
// accounting API accepts or returns; the engine treats its schema as opaque
// outside the converter.
type RemotePayload struct {
	EntityType EntityType
	// RemoteID is empty for records not yet created remotely
	RemoteID string
	// Version is the opaque version/timestamp token from the remote side
	Version string
	// Body is the remote-shaped JSON document
	Body []byte
}

// RemoteObject is the identity a remote create/update returns
type RemoteObject struct {
	RemoteID string
	Version  string
}

// ConversionResult is the converter output: either a valid payload/record or
// the complete list of field violations, never partially valid.
type ConversionResult struct {
	// Payload is set by ToRemote on success
	Payload *RemotePayload
	// Record is set by ToLocal on success
	Record *Record
	// Violations holds every field-level failure found in one pass
	Violations []FieldViolation
}

// Valid returns true if conversion produced a usable result
func (r *ConversionResult) Valid() bool {
	return len(r.Violations) == 0
}

// Err returns the permanent validation error for an invalid result, nil otherwise
func (r *ConversionResult) Err() *ClassifiedError {
	if r.Valid() {
		return nil
	}
	return NewValidationError(r.Violations)
}

// Converter maps records between the local and remote models. Implementations
// must be pure: no I/O, no side effects, deterministic for the same input —
// retries and tests rely on this.
type Converter interface {
	// ToRemote validates and converts a local record to the remote shape,
	// reporting every violation in one pass rather than failing fast.
	ToRemote(record *Record) *ConversionResult

	// ToLocal converts a remote payload to the local shape, preserving unknown
	// remote fields in the record's Extra bag.
	ToLocal(payload *RemotePayload) *ConversionResult
}
