package megastore

import "errors"

var (
	// ErrNotConfigured means the MEGA credentials are absent or placeholders.
	// Callers treat this as "remote store unavailable", not as a fault.
	ErrNotConfigured = errors.New("mega store is not configured")

	// ErrTimeout means an operation exceeded its time budget and was
	// abandoned. The remote side may still have observed an effect.
	ErrTimeout = errors.New("mega store operation timed out")

	// ErrUnavailable covers session or node-tree failures where the remote
	// account could not be reached or traversed.
	ErrUnavailable = errors.New("mega store unavailable")

	// ErrObjectNotFound means the requested handle is stale or missing.
	ErrObjectNotFound = errors.New("object not found in mega store")

	// ErrDecode means an object was fetched but its content is not the
	// expected structured record.
	ErrDecode = errors.New("object content could not be decoded")
)
