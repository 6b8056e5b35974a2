package domain

import "errors"

var (
	// ErrRateLimitExceeded is returned when a client exceeds its request quota
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrMissingIdempotencyKey is returned when a submission carries no idempotency token
	ErrMissingIdempotencyKey = errors.New("missing idempotency key")

	// ErrDuplicateClaim is returned when another attempt already claimed the token
	ErrDuplicateClaim = errors.New("idempotency token already claimed")

	// ErrAlreadyFinalized is returned when finalizing a record that is already terminal
	ErrAlreadyFinalized = errors.New("idempotency record already finalized")

	// ErrClaimConflict is returned when a claim race cannot be resolved to a snapshot yet
	ErrClaimConflict = errors.New("duplicate idempotency token in progress")

	// ErrFingerprintMismatch is returned when a token is reused with a different payload
	// and strict fingerprint enforcement is enabled
	ErrFingerprintMismatch = errors.New("idempotency token reused with a different payload")

	// ErrLeadNotFound is returned when a lead does not exist
	ErrLeadNotFound = errors.New("lead not found")
)

// ValidationError carries a caller-facing description of a rejected submission
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

// NewValidationError creates a validation error with the given detail
func NewValidationError(detail string) error {
	return &ValidationError{Detail: detail}
}

// IsValidationError reports whether err is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
