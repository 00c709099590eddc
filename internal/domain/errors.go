package domain

import "errors"

var (
	// ErrValidation marks input that can never be processed as given.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a lookup for an entity that does not exist.
	ErrNotFound = errors.New("not found")
)
