package models

import "errors"

var (
	ErrAttendeeNotFound = errors.New("attendee not found")
	ErrValidation       = errors.New("validation failed")
	ErrUnknownRole      = errors.New("unknown role")
	ErrUnknownSource    = errors.New("unknown source")
	ErrInvalidDay       = errors.New("invalid check-in day")
	ErrUnknownField     = errors.New("unknown attendee field")
)
