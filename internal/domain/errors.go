package domain

import "errors"

// Domain errors
var (
	ErrStorageUnavailable = errors.New("point store unavailable")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidEvent       = errors.New("invalid chat event")
	ErrMissingToken       = errors.New("messaging platform token is required")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// IsStorageError checks if an error originated in the point store
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
