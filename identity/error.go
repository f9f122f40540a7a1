package identity

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotFound is returned by stores and directories when no record
	// exists for the given key.
	ErrNotFound = errors.New("not found")
)
