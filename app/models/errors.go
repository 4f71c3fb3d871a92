package models

import "errors"

// Domain errors shared by the services, the tool layer and the HTTP API
var (
	// ErrNotFound is returned when a referenced product or warehouse does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for arguments that break a data invariant
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrReadOnly is returned when a write is attempted in read-only mode
	ErrReadOnly = errors.New("read-only mode")
)
