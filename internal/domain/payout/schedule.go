// Package payout splits a pot among ranked entries using a fixed fractional
// tier schedule, pooling the fractions of every tier a score tie occupies.
package payout

import (
	"fmt"
	"math"
)

// sumTolerance absorbs float rounding in schedules such as 0.7+0.2+0.1.
const sumTolerance = 1e-9

// DefaultFractions is the two-tier 75/25 split.
var DefaultFractions = []float64{0.75, 0.25} //nolint:gochecknoglobals // read-only default

// Schedule is an immutable, validated sequence of pot fractions where index i
// is the share awarded to rank position i.
type Schedule struct {
	fractions []float64
}

// NewSchedule validates fractions: at least one tier, each finite and
// non-negative, summing to at most 1.
func NewSchedule(fractions ...float64) (Schedule, error) {
	if len(fractions) == 0 {
		return Schedule{}, fmt.Errorf("%w: at least one tier is required", ErrInvalidSchedule)
	}

	var sum float64
	for i, f := range fractions {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return Schedule{}, fmt.Errorf("%w: tier %d has invalid fraction %v", ErrInvalidSchedule, i, f)
		}
		sum += f
	}
	if sum > 1+sumTolerance {
		return Schedule{}, fmt.Errorf("%w: fractions sum to %v, more than 1", ErrInvalidSchedule, sum)
	}

	own := make([]float64, len(fractions))
	copy(own, fractions)
	return Schedule{fractions: own}, nil
}

// MustSchedule is NewSchedule for static schedules; it panics on error.
func MustSchedule(fractions ...float64) Schedule {
	s, err := NewSchedule(fractions...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of tiers.
func (s Schedule) Len() int { return len(s.fractions) }

// Fractions returns a copy of the tier fractions.
func (s Schedule) Fractions() []float64 {
	out := make([]float64, len(s.fractions))
	copy(out, s.fractions)
	return out
}

// Total returns the sum of all fractions.
func (s Schedule) Total() float64 {
	return s.span(0, len(s.fractions))
}

// span sums the fractions of tiers [from, to).
func (s Schedule) span(from, to int) float64 {
	var sum float64
	for _, f := range s.fractions[from:to] {
		sum += f
	}
	return sum
}
