package health

import "errors"

var (
	// ErrCheckFailed is returned when one or more health checks fail.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout is returned when a check outlives the probe timeout.
	ErrCheckTimeout = errors.New("health: check timeout")
)
