package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: stream, row or offset does not exist
//   - ErrConflict: optimistic concurrency check lost (expected version is stale)
//   - ErrUnavailable: backing service temporarily unavailable
//
// For domain failures (lifecycle violations, schema errors), use pkg/domain-errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
