package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound   = errors.New("campaign not found")
	ErrConflict   = errors.New("campaign status changed concurrently")
	ErrValidation = errors.New("invalid campaign input")
)
