package resolve

import "errors"

// Sentinel errors for engine construction and input checks.
var (
	ErrInvalidConfig = errors.New("invalid resolve config")
	ErrInvalidEntry  = errors.New("invalid entry")
)
