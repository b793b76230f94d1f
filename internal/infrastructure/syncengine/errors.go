package syncengine

import "errors"

var (
	// ErrInvalidConfig indicates an invalid processor configuration
	ErrInvalidConfig = errors.New("syncengine: invalid configuration")
)
