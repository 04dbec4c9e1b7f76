package payout

import "github.com/okian/lastcall/internal/domain/model"

// Allocate distributes pot over scored using schedule and returns one result
// per entry in input order.
//
// Entries are ranked with Standard. Walking the ranking, each run of entries
// with an identical score consumes as many tiers as it has members (bounded by
// the tiers left); the fractions of those tiers are pooled and split evenly
// across the run. Entries reached after the schedule is exhausted receive 0.
// A non-positive pot pays nothing but still ranks.
func Allocate(scored []model.ScoredEntry, pot float64, schedule Schedule) []model.PayoutResult {
	results := make([]model.PayoutResult, len(scored))
	if len(scored) == 0 {
		return results
	}

	for i := range scored {
		results[i] = model.PayoutResult{
			EntryID: scored[i].ID,
			Pool:    scored[i].SubmarketKey,
			Score:   scored[i].Score,
			Stake:   scored[i].Stake,
			Net:     -scored[i].Stake,
		}
	}

	order := Order(scored)
	tier := 0
	for start := 0; start < len(order); {
		end := tiedRunEnd(scored, order, start)
		size := end - start

		var each float64
		if pot > 0 && tier < schedule.Len() {
			consume := min(size, schedule.Len()-tier)
			each = schedule.span(tier, tier+consume) * pot / float64(size)
			tier += consume
		}

		for _, i := range order[start:end] {
			results[i].Rank = start + 1
			results[i].Payout = each
			results[i].Net = each - scored[i].Stake
		}
		start = end
	}
	return results
}

// tiedRunEnd returns the end (exclusive) of the run of entries starting at
// order[start] that share exactly the same score.
func tiedRunEnd(scored []model.ScoredEntry, order []int, start int) int {
	score := scored[order[start]].Score
	end := start + 1
	for end < len(order) && scored[order[end]].Score == score {
		end++
	}
	return end
}
