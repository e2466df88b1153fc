// Package service implements the operation layer: tenant scoping, permission
// enforcement, the moderation state machine and audit writes sit here, between
// the HTTP surface and the stores.
package service

import (
	"errors"
	"fmt"
)

// ErrNotFound is the generic not-found the operation layer exposes. Cross
// tenant access deliberately collapses into this same error so callers cannot
// distinguish "absent" from "belongs to another organization".
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or semantically invalid input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Msg)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Msg)
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// AuthorizationError reports a denied permission check. Reason carries the
// engine's explanation, safe to show the caller.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "not authorized: " + e.Reason
}

// TenantMismatchError records an attempt to reach a record in another
// organization. It matches ErrNotFound under errors.Is so the surface never
// leaks the record's existence; the detail exists for internal logging only.
type TenantMismatchError struct {
	Kind string
	ID   string
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *TenantMismatchError) Is(target error) bool {
	return target == ErrNotFound
}

// ExternalServiceError wraps a failure of a dependency outside this system
// (the matrix generator). Retryable signals the caller may try again.
type ExternalServiceError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service failure in %s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
