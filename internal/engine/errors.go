package engine

import "errors"

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid engine configuration")
)
