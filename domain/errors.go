package domain

import "errors"

// Error taxonomy for everything the client surfaces. Backend-specific
// failures are opaque; the backend client maps them onto these sentinels and
// callers branch with errors.Is.
var (
	// ErrUnauthenticated is returned when an operation requires a signed-in
	// user and none is present, or the backend rejected the credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound indicates the requested row is absent. During profile
	// fetch it specifically means "profile not provisioned yet".
	ErrNotFound = errors.New("not found")
	// ErrTimeout indicates a lookup exceeded its local time budget.
	ErrTimeout = errors.New("timed out")
	// ErrRemote wraps any backend failure not covered by a more specific
	// sentinel.
	ErrRemote = errors.New("remote backend failure")
	// ErrValidation indicates input rejected locally before any network
	// call, such as an oversized or non-image upload.
	ErrValidation = errors.New("validation failed")
)
