// Package types contains the JSON views shared by the service, the HTTP API
// and the CLI.
package types

import "time"

// Horse is a candidate outcome of a market.
type Horse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ActualDate string `json:"actual_date,omitempty"`
}

// Market is a market with its horses.
type Market struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	OpenedAt       time.Time `json:"opened_at"`
	WindowClosesAt time.Time `json:"window_closes_at"`
	Horses         []Horse   `json:"horses"`
	Predictions    int       `json:"predictions"`
}

// PredictionInput is a wager submission.
type PredictionInput struct {
	MarketID      string  `json:"-"`
	HorseID       string  `json:"horse_id" validate:"required"`
	ParticipantID string  `json:"participant_id" validate:"required,max=64"`
	PredictedDate string  `json:"predicted_date" validate:"required,datetime=2006-01-02"`
	Stake         float64 `json:"stake" validate:"required,gt=0"`
	RequestID     string  `json:"request_id,omitempty" validate:"omitempty,max=128"`
}

// PredictionReceipt acknowledges a submission.
type PredictionReceipt struct {
	ID        string    `json:"id,omitempty"`
	MarketID  string    `json:"market_id"`
	Duplicate bool      `json:"duplicate"`
	Accepted  time.Time `json:"accepted_at,omitempty"`
}

// Booking sets the actual date of one horse, matched by id or by name.
type Booking struct {
	Horse string `json:"horse" validate:"required"`
	Date  string `json:"actual_date" validate:"required,datetime=2006-01-02"`
}

// ResolveOutcome reports what a resolve call changed.
type ResolveOutcome struct {
	MarketID string   `json:"market_id"`
	Updated  []string `json:"updated"`
	Missing  []string `json:"missing,omitempty"`
	Resolved bool     `json:"resolved"`
	Enqueued bool     `json:"settlement_enqueued"`
}

// Standing is one ranked row of a market.
type Standing struct {
	Rank          int     `json:"rank"`
	EntryID       string  `json:"entry_id"`
	ParticipantID string  `json:"participant_id"`
	HorseID       string  `json:"horse_id"`
	Horse         string  `json:"horse"`
	PredictedDate string  `json:"predicted_date"`
	Stake         float64 `json:"stake"`
	Score         float64 `json:"score"`
	Payout        float64 `json:"payout"`
	Net           float64 `json:"net"`
}

// Standings is the ranked view of a market.
type Standings struct {
	MarketID    string     `json:"market_id"`
	Status      string     `json:"status"`
	Mode        string     `json:"mode"`
	Pot         float64    `json:"pot"`
	FrozenPools int        `json:"frozen_pools"`
	Rows        []Standing `json:"standings"`
}

// Settlement is the persisted payout of a resolved market.
type Settlement struct {
	MarketID  string     `json:"market_id"`
	SettledAt time.Time  `json:"settled_at"`
	Pot       float64    `json:"pot"`
	Rows      []Standing `json:"results"`
}
