package domain

import "errors"

var (
	// ErrNotFound indicates no identifier with the requested ID exists.
	ErrNotFound = errors.New("auth id not found")
	// ErrConflict indicates an identifier with the same ID already exists.
	ErrConflict = errors.New("auth id already exists")
	// ErrUnavailable indicates the storage backend could not be reached or written.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrExhaustedRetries indicates issuance gave up after repeated ID collisions.
	ErrExhaustedRetries = errors.New("could not allocate a unique auth id")
	// ErrInvalidArgument indicates caller input failed validation.
	ErrInvalidArgument = errors.New("invalid argument")
)
