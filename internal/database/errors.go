package database

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrNotAvailable           = errors.New("property is not available for the requested dates")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrStaffBusy              = errors.New("staff member has an overlapping job")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrAlreadyResolved        = errors.New("already resolved")
	ErrValidation             = errors.New("validation failed")
	ErrPastDate               = errors.New("date is in the past")
	ErrDateTooFar             = errors.New("date is too far in the future")
	ErrDuplicate              = errors.New("duplicate record")
)
