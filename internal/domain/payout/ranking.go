package payout

import (
	"cmp"
	"math"
	"slices"

	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/scoring"
)

// Comparator orders two scored entries; negative means a ranks first.
type Comparator func(a, b *model.ScoredEntry) int

// ByScore ranks higher scores first.
func ByScore(a, b *model.ScoredEntry) int {
	return cmp.Compare(b.Score, a.Score)
}

// ByStake ranks larger stakes first.
func ByStake(a, b *model.ScoredEntry) int {
	return cmp.Compare(b.Stake, a.Stake)
}

// ByError ranks smaller prediction errors first. Unresolved entries carry an
// infinite error and sort last.
func ByError(a, b *model.ScoredEntry) int {
	return cmp.Compare(errorOf(a), errorOf(b))
}

// Chain composes comparators; later ones only break ties left by earlier ones.
func Chain(cmps ...Comparator) Comparator {
	return func(a, b *model.ScoredEntry) int {
		for _, c := range cmps {
			if r := c(a, b); r != 0 {
				return r
			}
		}
		return 0
	}
}

// Standard is the ranking order: score desc, stake desc, error asc.
var Standard = Chain(ByScore, ByStake, ByError) //nolint:gochecknoglobals // stateless comparator

// Order returns the indices of scored sorted by Standard. Residual ties keep
// input order so the result is deterministic.
func Order(scored []model.ScoredEntry) []int {
	idx := make([]int, len(scored))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(i, j int) int {
		return Standard(&scored[i], &scored[j])
	})
	return idx
}

func errorOf(e *model.ScoredEntry) float64 {
	days, ok := scoring.ErrorDays(&e.Entry)
	if !ok {
		return math.Inf(1)
	}
	return float64(days)
}
