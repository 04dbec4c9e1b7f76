package model

import "errors"

// Sentinel kinds shared by the store, the service and the API.
var (
	ErrNotFound         = errors.New("not found")
	ErrMarketClosed     = errors.New("market is closed")
	ErrWindowClosed     = errors.New("betting window has closed")
	ErrHorseResolved    = errors.New("horse has already booked")
	ErrUnknownHorse     = errors.New("horse not found in this market")
	ErrInvalidWager     = errors.New("invalid wager")
	ErrNotEnoughPlayers = errors.New("not enough participants to resolve")
	ErrDuplicateName    = errors.New("market name already exists")
)
