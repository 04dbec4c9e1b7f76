package model

import "time"

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

// Market statuses.
const (
	StatusOpen     MarketStatus = "open"
	StatusResolved MarketStatus = "resolved"
)

// Market is one resolvable prediction pool.
type Market struct {
	ID         string
	Name       string
	Status     MarketStatus
	OpenedAt   time.Time
	WindowDays int
}

// WindowClosesAt returns the instant after which predictions are refused.
func (m *Market) WindowClosesAt() time.Time {
	return m.OpenedAt.Add(time.Duration(m.WindowDays) * 24 * time.Hour)
}

// Horse is a candidate outcome within a market. Each horse is a submarket.
type Horse struct {
	ID         string
	MarketID   string
	Name       string
	ActualDate *time.Time
}

// Prediction is a stored wager on a horse's booking date.
type Prediction struct {
	ID            string
	MarketID      string
	HorseID       string
	ParticipantID string
	PredictedDate time.Time
	Stake         float64
	SubmittedAt   time.Time
}

// Settlement is the persisted engine output for a resolved market.
type Settlement struct {
	MarketID  string
	SettledAt time.Time
	Pot       float64
	Results   []PayoutResult
}

// SettlementJob asks the worker pool to settle a resolved market.
type SettlementJob struct {
	MarketID    string
	RequestedAt time.Time
}
