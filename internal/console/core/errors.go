package core

import "errors"

// Domain errors. Adapters wrap them with context; the HTTP layer maps them to
// status codes with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
)
