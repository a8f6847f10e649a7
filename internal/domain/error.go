package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrConflict           = errors.New("state precondition no longer holds")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrQueueFull          = errors.New("worker queue full")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
