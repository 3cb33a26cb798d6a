package storage

import (
	"errors"

	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/sentinel"
)

// ReadError translates a store read failure into a domain error.
func ReadError(err error, what string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}

// WriteError translates a store write failure into a domain error carrying
// the entity and attempted action.
func WriteError(err error, entityID, state, action string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "entity was modified concurrently").
			WithDetails(entityID, state, action)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "entity not found").
			WithDetails(entityID, state, action)
	case errors.Is(err, sentinel.ErrReferenceMissing):
		return dErrors.Wrap(err, dErrors.CodeValidation, "referenced entity does not exist").
			WithDetails(entityID, state, action)
	case errors.Is(err, sentinel.ErrDuplicate):
		return dErrors.Wrap(err, dErrors.CodeConflict, "entity already exists").
			WithDetails(entityID, state, action)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist entity").
		WithDetails(entityID, state, action)
}
