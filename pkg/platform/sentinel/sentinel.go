package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about stored records, not rule outcomes:
//   - ErrNotFound: record does not exist in the substrate
//   - ErrExpired: record's TTL elapsed before the touch
//   - ErrConflict: write raced a concurrent invocation (should not happen
//     under the single-invocation execution model; surfaced for diagnostics)
//   - ErrUnavailable: substrate temporarily unreachable
//
// For rule outcomes (insufficient balance, compliance failures), use
// pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
