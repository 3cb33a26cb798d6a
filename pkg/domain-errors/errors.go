// Package domainerrors carries the engine's error taxonomy. Services return
// *Error values so transports can render a stable code plus enough structured
// detail (entity, current state, attempted action) for an actionable message.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	// Validation
	CodeValidation   Code = "validation_error"
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"

	// State conflicts: caller must re-read and retry or abandon.
	CodeAlreadyAssigned        Code = "already_assigned"
	CodeNotOwner               Code = "not_owner"
	CodeInvalidState           Code = "invalid_state"
	CodeAlreadyVerified        Code = "already_verified"
	CodeConcurrentModification Code = "concurrent_modification"
	CodeDocumentsIncomplete    Code = "documents_incomplete"
	CodeConflict               Code = "conflict"

	// Authorization failures: not retryable without a different actor.
	CodeUnqualifiedOfficer          Code = "unqualified_officer"
	CodeInsufficientTargetAuthority Code = "insufficient_target_authority"
	CodeForbidden                   Code = "forbidden"
	CodeUnauthorized                Code = "unauthorized"

	// Integrity failures: audit persistence failed and the mutation was rolled back.
	CodeIntegrityFailure Code = "integrity_failure"

	CodeInvariantViolation Code = "invariant_violation"
	CodeNotFound           Code = "not_found"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Category groups codes by how a caller is expected to react.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryStateConflict Category = "state_conflict"
	CategoryAuthorization Category = "authorization_failure"
	CategoryIntegrity     Category = "integrity_failure"
	CategoryNotFound      Category = "not_found"
	CategoryInternal      Category = "internal"
)

var categories = map[Code]Category{
	CodeValidation:                  CategoryValidation,
	CodeBadRequest:                  CategoryValidation,
	CodeInvalidInput:                CategoryValidation,
	CodeInvariantViolation:          CategoryValidation,
	CodeAlreadyAssigned:             CategoryStateConflict,
	CodeNotOwner:                    CategoryStateConflict,
	CodeInvalidState:                CategoryStateConflict,
	CodeAlreadyVerified:             CategoryStateConflict,
	CodeConcurrentModification:      CategoryStateConflict,
	CodeDocumentsIncomplete:         CategoryStateConflict,
	CodeConflict:                    CategoryStateConflict,
	CodeUnqualifiedOfficer:          CategoryAuthorization,
	CodeInsufficientTargetAuthority: CategoryAuthorization,
	CodeForbidden:                   CategoryAuthorization,
	CodeUnauthorized:                CategoryAuthorization,
	CodeIntegrityFailure:            CategoryIntegrity,
	CodeNotFound:                    CategoryNotFound,
}

// Category returns the taxonomy bucket for the code. Unknown codes are internal.
func (c Code) Category() Category {
	if cat, ok := categories[c]; ok {
		return cat
	}
	return CategoryInternal
}

// Error is the domain error type returned by services.
type Error struct {
	Code    Code
	Message string

	// Optional structured detail.
	EntityID string
	State    string
	Action   string

	Err error
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.EntityID != "" {
		msg += fmt.Sprintf(" (entity=%s", e.EntityID)
		if e.State != "" {
			msg += " state=" + e.State
		}
		if e.Action != "" {
			msg += " action=" + e.Action
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches the entity, its current state and the attempted action.
func (e *Error) WithDetails(entityID, state, action string) *Error {
	e.EntityID = entityID
	e.State = state
	e.Action = action
	return e
}

// New creates an Error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that preserves the underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any domain error in the chain carries the code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost domain code, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the failure came from transient contention.
func IsRetryable(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
