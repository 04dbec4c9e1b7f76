// Package scoring turns a single prediction into a scalar score.
//
// A score rewards accuracy (distance in whole days between the predicted and
// actual date), early submission within the betting window, and stake size.
// Scores never depend on other entries.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/lastcall/internal/domain/model"
)

// Default scoring configuration constants.
const (
	DefaultWindowDays = 28
	DefaultAlpha      = 2.0
	hoursPerDay       = 24
)

// StakeWeight selects how the raw stake feeds the score numerator.
type StakeWeight int

// Supported stake weightings.
const (
	Linear StakeWeight = iota
	SquareRoot
)

// String returns the configuration name of the weighting.
func (w StakeWeight) String() string {
	switch w {
	case Linear:
		return "linear"
	case SquareRoot:
		return "sqrt"
	default:
		return fmt.Sprintf("stake_weight(%d)", int(w))
	}
}

// ParseStakeWeight parses "linear" or "sqrt" (alias "square_root").
func ParseStakeWeight(s string) (StakeWeight, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return Linear, nil
	case "sqrt", "square_root", "squareroot":
		return SquareRoot, nil
	default:
		return Linear, fmt.Errorf("%w: unknown stake weight %q", ErrInvalidConfig, s)
	}
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithWindowDays sets the betting-window length used for time decay.
func WithWindowDays(days int) Option {
	return func(c *Calculator) {
		c.windowDays = days
	}
}

// WithAlpha sets the weight of the early-submission bonus.
func WithAlpha(alpha float64) Option {
	return func(c *Calculator) {
		c.alpha = alpha
	}
}

// WithStakeWeight selects the stake weighting.
func WithStakeWeight(w StakeWeight) Option {
	return func(c *Calculator) {
		c.stakeWeight = w
	}
}

// Calculator computes entry scores. It is immutable after construction and
// safe for concurrent use.
type Calculator struct {
	windowDays  int
	alpha       float64
	stakeWeight StakeWeight
}

// NewCalculator builds a Calculator, rejecting a non-positive window, a
// negative or non-finite alpha and unknown stake weightings.
func NewCalculator(opts ...Option) (*Calculator, error) {
	c := &Calculator{
		windowDays:  DefaultWindowDays,
		alpha:       DefaultAlpha,
		stakeWeight: Linear,
	}

	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.windowDays <= 0:
		return nil, fmt.Errorf("%w: window_days must be positive, got %d", ErrInvalidConfig, c.windowDays)
	case c.alpha < 0 || math.IsNaN(c.alpha) || math.IsInf(c.alpha, 0):
		return nil, fmt.Errorf("%w: alpha must be a finite non-negative number, got %v", ErrInvalidConfig, c.alpha)
	case c.stakeWeight != Linear && c.stakeWeight != SquareRoot:
		return nil, fmt.Errorf("%w: unknown stake weight %d", ErrInvalidConfig, int(c.stakeWeight))
	}
	return c, nil
}

// WindowDays returns the configured betting-window length.
func (c *Calculator) WindowDays() int { return c.windowDays }

// Score computes the score for e. marketOpenAt falls back to e.MarketOpenAt
// when zero; when both are zero no timing bonus is applied.
func (c *Calculator) Score(e *model.Entry, marketOpenAt time.Time) float64 {
	errDays, ok := ErrorDays(e)
	if !ok {
		return 0
	}

	timing := c.TimingMultiplier(e.SubmittedAt, openTime(e, marketOpenAt))
	return c.weight(e.Stake) / float64(1+errDays) * timing
}

// TimingMultiplier decays linearly from 1+alpha at market open to 1 at
// window close.
func (c *Calculator) TimingMultiplier(submittedAt, openAt time.Time) float64 {
	window := float64(c.windowDays)
	elapsed := window
	if !openAt.IsZero() {
		elapsed = submittedAt.Sub(openAt).Hours() / hoursPerDay
		elapsed = math.Min(math.Max(elapsed, 0), window)
	}
	return 1 + c.alpha*(1-elapsed/window)
}

// ScoreAll scores every entry, preserving input order.
func (c *Calculator) ScoreAll(entries []model.Entry, marketOpenAt time.Time) []model.ScoredEntry {
	scored := make([]model.ScoredEntry, len(entries))
	for i := range entries {
		scored[i] = model.ScoredEntry{
			Entry: entries[i],
			Score: c.Score(&entries[i], marketOpenAt),
		}
	}
	return scored
}

func (c *Calculator) weight(stake float64) float64 {
	if stake <= 0 || math.IsNaN(stake) {
		return 0
	}
	if c.stakeWeight == SquareRoot {
		return math.Sqrt(stake)
	}
	return stake
}

// ErrorDays returns the absolute distance between the predicted and actual
// dates rounded to whole days. ok is false for unresolved entries.
func ErrorDays(e *model.Entry) (days int, ok bool) {
	if e.Actual == nil {
		return 0, false
	}
	return DaysBetween(e.Predicted, *e.Actual), true
}

// DaysBetween returns |a-b| in days, rounded to the nearest whole day.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(math.Abs(a.Sub(b).Hours()) / hoursPerDay))
}

func openTime(e *model.Entry, marketOpenAt time.Time) time.Time {
	if marketOpenAt.IsZero() {
		return e.MarketOpenAt
	}
	return marketOpenAt
}
