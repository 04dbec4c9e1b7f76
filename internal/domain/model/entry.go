// Package model contains domain models passed between layers.
package model

import "time"

// DateLayout is the calendar-date format used for predicted and actual dates.
const DateLayout = "2006-01-02"

// Entry is one participant's prediction for a market or one of its submarkets.
type Entry struct {
	ID            string     // stable across recomputation
	ParticipantID string     // owner of the prediction
	SubmarketKey  string     // pool the entry competes in; empty in single-pool mode
	Predicted     time.Time  // predicted booking date
	Actual        *time.Time // resolved booking date, nil until resolved
	Stake         float64    // wager contributed to the pot
	SubmittedAt   time.Time
	MarketOpenAt  time.Time
}

// Resolved reports whether the entry's submarket has a known outcome.
func (e *Entry) Resolved() bool {
	return e.Actual != nil
}

// ScoredEntry pairs an entry with its computed score.
type ScoredEntry struct {
	Entry
	Score float64
}

// PayoutResult is the engine output for a single entry.
type PayoutResult struct {
	EntryID string
	Pool    string // submarket key of the pool, empty in single-pool mode
	Score   float64
	Stake   float64
	Payout  float64
	Net     float64 // Payout - Stake; 0 in a frozen pool
	Rank    int     // 1-based within the pool; equal scores share a rank
}
