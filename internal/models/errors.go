package models

import (
	"errors"
	"fmt"
)

// ConfigurationError means required configuration is missing or invalid,
// e.g. a tier without a quota mapping or an unset processor price ID. It is
// fatal to the operation that needed the value but must not take down the
// rest of the resolution pipeline.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// CollaboratorUnavailableError means the record store or the billing
// collaborator could not be reached. Callers keep the last-known-good
// entitlement and surface the error alongside it.
type CollaboratorUnavailableError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorUnavailableError) Unwrap() error {
	return e.Err
}

// IsCollaboratorUnavailable reports whether err is (or wraps) a
// CollaboratorUnavailableError.
func IsCollaboratorUnavailable(err error) bool {
	var ce *CollaboratorUnavailableError
	return errors.As(err, &ce)
}

// InconsistentStateError marks malformed input data: a grant referencing an
// unknown tier, a subscription with a status outside the enum. Resolution
// falls through to a lower-precedence branch and logs a warning; it never
// promotes on malformed input.
type InconsistentStateError struct {
	UserID string
	Detail string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent entitlement state for user %s: %s", e.UserID, e.Detail)
}
