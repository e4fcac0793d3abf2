package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound     = errors.New("suppression entry not found")
	ErrInvalidEmail = errors.New("email is required")
	ErrOptOut       = errors.New("suppression comes from an opt-out and cannot be removed")
)
