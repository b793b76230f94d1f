package syncengine

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/ledgerlink/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// Classify maps any pipeline error onto the retry taxonomy. Classification is
// structural: sentinel errors, typed remote errors and context errors decide
// the class, never message text.
func Classify(err error) *sync.ClassifiedError {
	if err == nil {
		return nil
	}

	// Already classified (converter violations, conflicts, dependency checks)
	if cerr, ok := sync.AsClassified(err); ok {
		return cerr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &sync.ClassifiedError{
			Class:   sync.ErrorClassTimeout,
			Code:    "JOB_TIMEOUT",
			Message: "job exceeded its execution deadline",
		}
	case errors.Is(err, context.Canceled):
		return sync.NewCancelledError()
	case errors.Is(err, sync.ErrRemoteRateLimited):
		return &sync.ClassifiedError{
			Class:   sync.ErrorClassTransientRateLimit,
			Code:    "REMOTE_RATE_LIMITED",
			Message: "remote system rejected the request due to rate limiting",
		}
	case errors.Is(err, sync.ErrRemoteUnavailable):
		return &sync.ClassifiedError{
			Class:   sync.ErrorClassTransientNetwork,
			Code:    "REMOTE_UNAVAILABLE",
			Message: "remote system is temporarily unavailable",
		}
	case errors.Is(err, sync.ErrRemoteNotFound):
		// A remote 404 cannot be fixed by retrying; the referenced record is
		// gone or never existed.
		return &sync.ClassifiedError{
			Class:   sync.ErrorClassValidation,
			Code:    "REMOTE_NOT_FOUND",
			Message: "remote record does not exist",
		}
	case errors.Is(err, sync.ErrRemoteAuthFailed):
		return &sync.ClassifiedError{
			Class:   sync.ErrorClassAuth,
			Code:    "REMOTE_AUTH_FAILED",
			Message: "remote credentials were rejected",
		}
	case errors.Is(err, sync.ErrMappingConflict):
		return sync.NewConflictError(err.Error())
	}

	var apiErr *sync.RemoteAPIError
	if errors.As(err, &apiErr) {
		return classifyStatusCode(apiErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &sync.ClassifiedError{
			Class:   sync.ErrorClassTransientNetwork,
			Code:    "NETWORK_ERROR",
			Message: err.Error(),
		}
	}

	// Unknown failures are treated as transient so a crash-adjacent blip does
	// not permanently fail a record.
	return &sync.ClassifiedError{
		Class:   sync.ErrorClassTransientNetwork,
		Code:    "UNCLASSIFIED",
		Message: err.Error(),
	}
}

func classifyStatusCode(apiErr *sync.RemoteAPIError) *sync.ClassifiedError {
	switch {
	case apiErr.StatusCode == 429:
		return &sync.ClassifiedError{
			Class:      sync.ErrorClassTransientRateLimit,
			Code:       "REMOTE_RATE_LIMITED",
			Message:    "remote system rejected the request due to rate limiting",
			RemoteBody: apiErr.Body,
		}
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		return &sync.ClassifiedError{
			Class:      sync.ErrorClassAuth,
			Code:       "REMOTE_AUTH_FAILED",
			Message:    "remote credentials were rejected",
			RemoteBody: apiErr.Body,
		}
	case apiErr.StatusCode == 409:
		return &sync.ClassifiedError{
			Class:      sync.ErrorClassConflict,
			Code:       "REMOTE_CONFLICT",
			Message:    "remote system reported a conflicting record",
			RemoteBody: apiErr.Body,
		}
	case apiErr.StatusCode >= 500:
		return &sync.ClassifiedError{
			Class:      sync.ErrorClassTransientNetwork,
			Code:       "REMOTE_SERVER_ERROR",
			Message:    "remote system failed to process the request",
			RemoteBody: apiErr.Body,
		}
	default:
		// Remaining 4xx: the remote rejected the payload. Permanent; the
		// verbatim body is preserved for the caller.
		return &sync.ClassifiedError{
			Class:      sync.ErrorClassValidation,
			Code:       "REMOTE_REJECTED",
			Message:    "remote system rejected the record",
			RemoteBody: apiErr.Body,
		}
	}
}

// ---------------------------------------------------------------------------
// Backoff policy
// ---------------------------------------------------------------------------

// BackoffPolicy computes retry delays for transient failures
type BackoffPolicy struct {
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth
	MaxDelay time.Duration
	// MaxAttempts bounds total executions of one job (first try included)
	MaxAttempts int
	// JitterFraction randomizes delays by +/- this fraction to avoid
	// synchronized retry storms; zero disables jitter.
	JitterFraction float64
}

// DefaultBackoffPolicy returns the standard retry policy
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:      2 * time.Second,
		MaxDelay:       2 * time.Minute,
		MaxAttempts:    4,
		JitterFraction: 0.2,
	}
}

// Delay returns the wait before retry number attempt (1-based: attempt 1 is
// the first retry). Exponential: baseDelay * 2^(attempt-1), capped at MaxDelay.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.JitterFraction > 0 {
		jitter := float64(delay) * p.JitterFraction
		delay += time.Duration((rand.Float64()*2 - 1) * jitter)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// ShouldRetry reports whether a failure on the given attempt number warrants
// another execution.
func (p BackoffPolicy) ShouldRetry(cerr *sync.ClassifiedError, attempt int) bool {
	return cerr.Retryable() && attempt < p.MaxAttempts
}
