package scoring

import "errors"

// ErrInvalidConfig reports a scoring configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid scoring config")
