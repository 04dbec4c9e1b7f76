package service

import "errors"

// Sentinel kinds for service errors. Domain kinds live in the model package.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrInvalidInput = errors.New("invalid input")
	ErrBackpressure = errors.New("settlement queue is full")
)
