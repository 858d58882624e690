package sentinel

import "errors"

// Store-level facts. Stores return these (optionally wrapped) and services map
// them to coded errors from pkg/domain-errors.
//
//   - ErrNotFound: row absent, or soft-deleted and therefore invisible
//   - ErrConflict: optimistic version check lost against a concurrent writer
//   - ErrAlreadyUsed: unique key (client id, document id) already present
//   - ErrInvalidState: persisted value cannot be decoded into a known state
//   - ErrUnavailable: backing service (cache, broker) not reachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
