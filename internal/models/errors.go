package models

import "errors"

var (
	// ErrNotFound is returned when no tracked anime matches the given MAL id
	ErrNotFound = errors.New("anime not found")

	// ErrInvalidArgument is returned when an update field is out of range
	ErrInvalidArgument = errors.New("invalid argument")
)
