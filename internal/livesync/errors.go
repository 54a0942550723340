package livesync

import "errors"

// Error kinds shared by every guarded mutation in the application. Services
// wrap these with operation-specific context; callers match with errors.Is.
var (
	// ErrUnauthenticated indicates no active session was supplied.
	ErrUnauthenticated = errors.New("livesync: unauthenticated")
	// ErrNotFound indicates the referenced entity is missing.
	ErrNotFound = errors.New("livesync: not found")
	// ErrPermissionDenied indicates the actor does not own the resource.
	ErrPermissionDenied = errors.New("livesync: permission denied")
	// ErrCapacityExceeded indicates a guard denied admission to a full collection.
	ErrCapacityExceeded = errors.New("livesync: capacity exceeded")
	// ErrConflict indicates a uniqueness violation such as a duplicate join.
	ErrConflict = errors.New("livesync: conflict")
	// ErrTransient indicates a backend failure with no domain meaning.
	ErrTransient = errors.New("livesync: transient backend error")
)
