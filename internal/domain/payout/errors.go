package payout

import "errors"

// ErrInvalidSchedule reports a tier schedule rejected at construction.
var ErrInvalidSchedule = errors.New("invalid tier schedule")
