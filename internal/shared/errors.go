package shared

import "errors"

// Caller-facing error kinds. Storage failures are translated into one of
// these before leaving a service; no driver detail crosses that boundary.
var (
	// ErrNotFound indicates an absent entity or tenant.
	ErrNotFound = errors.New("not found")
	// ErrTenantMismatch indicates a cross-tenant access attempt.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrForbidden indicates an insufficient role.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a natural-key collision.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock indicates a mutation that would drive stock
	// negative without authorization.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrDependencyExists indicates a delete blocked by live children.
	ErrDependencyExists = errors.New("dependent records exist")
	// ErrStorageUnavailable indicates a fatal storage failure, surfaced
	// to the caller and never retried here.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
