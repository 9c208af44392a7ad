package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrTokenTimeout  = errors.New("credential acquisition timed out")

	// Analysis error taxonomy. Validation errors are dropped with a warning
	// and never abort a batch; compute errors abort only the affected pair or
	// component; stage errors are isolated per agent; persistence errors
	// degrade reads to "no analysis available" and surface writes.
	ErrValidation  = errors.New("validation error")
	ErrCompute     = errors.New("compute error")
	ErrStage       = errors.New("stage error")
	ErrPersistence = errors.New("persistence error")
)
