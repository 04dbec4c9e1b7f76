package ctl

import "errors"

// Sentinel errors for this package.
var (
	ErrUsage       = errors.New("usage")
	ErrBadBooking  = errors.New("bad booking")
	ErrBadSnapshot = errors.New("bad snapshot")
	ErrSimulation  = errors.New("simulation failed")
)
