package payout

import (
	"math"

	"github.com/okian/lastcall/internal/domain/model"
)

// Group is the set of entries competing in one submarket pool.
type Group struct {
	Key     string
	Indices []int // positions in the partitioned slice, in input order
}

// Partition groups scored by SubmarketKey. Groups appear in first-seen order.
func Partition(scored []model.ScoredEntry) []Group {
	var groups []Group
	pos := make(map[string]int)
	for i := range scored {
		key := scored[i].SubmarketKey
		g, ok := pos[key]
		if !ok {
			g = len(groups)
			pos[key] = g
			groups = append(groups, Group{Key: key})
		}
		groups[g].Indices = append(groups[g].Indices, i)
	}
	return groups
}

// Members returns the group's entries in input order.
func (g Group) Members(scored []model.ScoredEntry) []model.ScoredEntry {
	out := make([]model.ScoredEntry, len(g.Indices))
	for k, i := range g.Indices {
		out[k] = scored[i]
	}
	return out
}

// Pot sums the stakes of the group's entries.
func (g Group) Pot(scored []model.ScoredEntry) float64 {
	var pot float64
	for _, i := range g.Indices {
		pot += potStake(scored[i].Stake)
	}
	return pot
}

// TotalStake sums every entry's stake.
func TotalStake(scored []model.ScoredEntry) float64 {
	var pot float64
	for i := range scored {
		pot += potStake(scored[i].Stake)
	}
	return pot
}

// potStake is the amount a stake adds to a pot. Non-positive and non-finite
// stakes add nothing, matching their zero scoring weight.
func potStake(stake float64) float64 {
	if stake <= 0 || math.IsNaN(stake) || math.IsInf(stake, 0) {
		return 0
	}
	return stake
}

// AllocateGrouped runs Allocate independently per submarket, each group's pot
// being the sum of its own stakes. Results are concatenated group by group in
// first-seen order.
func AllocateGrouped(scored []model.ScoredEntry, schedule Schedule) []model.PayoutResult {
	results := make([]model.PayoutResult, 0, len(scored))
	for _, g := range Partition(scored) {
		results = append(results, Allocate(g.Members(scored), g.Pot(scored), schedule)...)
	}
	return results
}
