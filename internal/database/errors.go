package database

import "errors"

// Error kinds returned by Store operations. Callers distinguish them with
// errors.Is and translate each kind into its own user-facing message.
var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique key is already taken. The existing
	// record is never overwritten.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnavailable indicates the underlying store connection cannot be
	// used. Callers should show a generic apology rather than crash.
	ErrUnavailable = errors.New("storage unavailable")
)
