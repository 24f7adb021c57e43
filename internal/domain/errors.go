package domain

import "errors"

// Error kinds shared by every layer. Callers match with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrGeneration = errors.New("generation failed")
	ErrStore      = errors.New("store failure")
	ErrConflict   = errors.New("conflict")
)
