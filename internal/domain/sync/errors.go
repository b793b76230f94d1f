package sync

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// Input validation errors
	ErrInvalidTenantID   = errors.New("sync: invalid tenant ID")
	ErrInvalidEntityType = errors.New("sync: invalid entity type")
	ErrInvalidDirection  = errors.New("sync: invalid direction")
	ErrInvalidLocalID    = errors.New("sync: invalid local ID")
	ErrInvalidRemoteID   = errors.New("sync: invalid remote ID")

	// Mapping errors
	ErrMappingNotFound = errors.New("sync: mapping not found")
	ErrMappingConflict = errors.New("sync: mapping already bound to a different remote record")

	// Job/batch errors
	ErrJobNotFound          = errors.New("sync: job not found")
	ErrBatchNotFound        = errors.New("sync: batch not found")
	ErrInvalidTransition    = errors.New("sync: invalid status transition")
	ErrBatchAlreadyFinished = errors.New("sync: batch already finished")
	ErrBatchNotFinished     = errors.New("sync: batch still has pending jobs")

	// Local record errors
	ErrLocalRecordNotFound = errors.New("sync: local record not found")

	// Remote API errors (returned by RemoteClient implementations)
	ErrRemoteUnavailable = errors.New("sync: remote system temporarily unavailable")
	ErrRemoteRateLimited = errors.New("sync: remote system rate limited")
	ErrRemoteAuthFailed  = errors.New("sync: remote authentication failed")
	ErrRemoteNotFound    = errors.New("sync: remote record not found")
)

// RemoteAPIError carries a remote rejection verbatim so it can be surfaced
// to the caller without loss of detail.
type RemoteAPIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("sync: remote API returned %d: %s", e.StatusCode, e.Body)
}

// ---------------------------------------------------------------------------
// Classified error taxonomy
// ---------------------------------------------------------------------------

// ErrorClass is the classification of a sync failure. It decides whether a
// failure is retried and how it is surfaced to the caller.
type ErrorClass string

const (
	// ErrorClassValidation covers converter violations and remote 4xx rejections
	ErrorClassValidation ErrorClass = "VALIDATION"
	// ErrorClassConflict covers mapping collisions (CAS upsert failure)
	ErrorClassConflict ErrorClass = "CONFLICT"
	// ErrorClassTransientNetwork covers timeouts on the wire and remote 5xx
	ErrorClassTransientNetwork ErrorClass = "TRANSIENT_NETWORK"
	// ErrorClassTransientRateLimit covers remote 429 responses
	ErrorClassTransientRateLimit ErrorClass = "TRANSIENT_RATE_LIMIT"
	// ErrorClassAuth covers remote 401/403; surfaced distinctly for credential refresh
	ErrorClassAuth ErrorClass = "AUTH"
	// ErrorClassDependencyUnmapped covers documents referencing unmapped entities
	ErrorClassDependencyUnmapped ErrorClass = "DEPENDENCY_UNMAPPED"
	// ErrorClassTimeout covers job wall-clock timeouts
	ErrorClassTimeout ErrorClass = "TIMEOUT"
	// ErrorClassCancelled covers jobs descheduled by a batch cancel
	ErrorClassCancelled ErrorClass = "CANCELLED"
)

// IsTransient returns true if failures of this class are retried with backoff
func (c ErrorClass) IsTransient() bool {
	switch c {
	case ErrorClassTransientNetwork, ErrorClassTransientRateLimit, ErrorClassTimeout:
		return true
	default:
		return false
	}
}

// IsRateLimit returns true if the class signals remote throughput exhaustion.
// The batch processor pauses the whole chunk on rate-limit failures.
func (c ErrorClass) IsRateLimit() bool {
	return c == ErrorClassTransientRateLimit
}

// FieldViolation describes one field-level validation failure from the converter
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ClassifiedError is the structured failure attached to jobs and batches.
// Retry decisions are made on the Class, never by inspecting error strings.
type ClassifiedError struct {
	Class      ErrorClass       `json:"class"`
	Code       string           `json:"code"`
	Message    string           `json:"message"`
	Violations []FieldViolation `json:"violations,omitempty"`
	RemoteBody string           `json:"remote_body,omitempty"`
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("sync: [%s] %s", e.Class, e.Message)
	}
	fields := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		fields[i] = v.Field
	}
	return fmt.Sprintf("sync: [%s] %s (fields: %s)", e.Class, e.Message, strings.Join(fields, ", "))
}

// Retryable returns true if the failure should be retried with backoff
func (e *ClassifiedError) Retryable() bool {
	return e.Class.IsTransient()
}

// NewValidationError creates a permanent validation error from converter violations
func NewValidationError(violations []FieldViolation) *ClassifiedError {
	return &ClassifiedError{
		Class:      ErrorClassValidation,
		Code:       "CONVERSION_FAILED",
		Message:    fmt.Sprintf("record failed validation with %d violation(s)", len(violations)),
		Violations: violations,
	}
}

// NewConflictError creates a permanent mapping conflict error
func NewConflictError(message string) *ClassifiedError {
	return &ClassifiedError{
		Class:   ErrorClassConflict,
		Code:    "MAPPING_CONFLICT",
		Message: message,
	}
}

// NewDependencyUnmappedError creates a permanent dependency error for a sales
// document that references an entity without a remote mapping.
func NewDependencyUnmappedError(entityType EntityType, localID string) *ClassifiedError {
	return &ClassifiedError{
		Class:   ErrorClassDependencyUnmapped,
		Code:    "DEPENDENCY_UNMAPPED",
		Message: fmt.Sprintf("referenced %s %s has no remote mapping", strings.ToLower(string(entityType)), localID),
	}
}

// NewCancelledError creates the error attached to jobs descheduled by cancel
func NewCancelledError() *ClassifiedError {
	return &ClassifiedError{
		Class:   ErrorClassCancelled,
		Code:    "BATCH_CANCELLED",
		Message: "job descheduled by batch cancellation",
	}
}

// AsClassified extracts a *ClassifiedError from err if present
func AsClassified(err error) (*ClassifiedError, bool) {
	var cerr *ClassifiedError
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return nil, false
}
