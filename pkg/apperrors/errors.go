package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidTransition      = errors.New("invalid scan status transition")
	ErrValidation             = errors.New("validation failed")
	ErrCredentialsKeyMismatch = errors.New("datasource credentials were encrypted with a different key")
)
