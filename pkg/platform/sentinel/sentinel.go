package sentinel

import "errors"

// Sentinel errors for storage and infrastructure facts. Stores return these
// (optionally wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: entity does not exist
//   - ErrConflict: optimistic version check failed, another writer got there first
//   - ErrDuplicate: unique key already taken
//   - ErrLocked: a per-entity lease is held by someone else
//   - ErrReferenceMissing: referenced parent (application, task) does not exist
//   - ErrUnavailable: backend temporarily unavailable
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("version conflict")
	ErrDuplicate        = errors.New("duplicate")
	ErrLocked           = errors.New("locked")
	ErrReferenceMissing = errors.New("referenced entity missing")
	ErrUnavailable      = errors.New("unavailable")
)
