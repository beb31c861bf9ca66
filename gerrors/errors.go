// Package gerrors defines the error kinds used across the messaging
// engine: sentinel values wrapped with context via %w so
// callers can classify failures with errors.Is/errors.As without the
// engine exposing concrete exception types.
package gerrors

import "errors"

// Sentinel error kinds. Wrap these with fmt.Errorf("...: %w", KindX)
// at the call site to preserve classification through errors.Is.
var (
	// ErrTransport marks a failure originating in the bulletin
	// transport (publish or fetch). Triggers retry arming on sends and
	// blocks announcement cursor advance on fetch.
	ErrTransport = errors.New("transport error")

	// ErrDecrypt marks a failure from the crypto session primitive
	// that is not caller-visible: the item is parked in a pending
	// buffer for retry once the ratchet catches up.
	ErrDecrypt = errors.New("decrypt error")

	// ErrInvariantViolation marks an internal consistency failure; the
	// operation that detected it must abort without partial state
	// mutation.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrPublicKeyNotFound marks a bulletin lookup miss, distinct from
	// a generic transport failure.
	ErrPublicKeyNotFound = errors.New("public key not found")

	// ErrNotFound marks a Store lookup miss (profile, contact,
	// discussion, or message). Callers distinguish "does not exist"
	// from a storage failure via errors.Is(err, ErrNotFound).
	ErrNotFound = errors.New("not found")
)

// ValidationError is returned as a value (never as a panic or a bare
// error wrapping a sentinel) so callers can inspect Field and Reason
// directly.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Field + ": " + e.Reason
}

// NewValidationError constructs a ValidationError for the named field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
