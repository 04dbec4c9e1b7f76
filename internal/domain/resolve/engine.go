// Package resolve turns a market snapshot into payouts.
//
// The Engine scores every entry, applies the minimum-participant gate and
// allocates the pot either as one pool or per submarket. It holds no state
// between calls and is safe for concurrent use.
package resolve

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/payout"
	"github.com/okian/lastcall/internal/domain/scoring"
)

// Engine resolves markets under a fixed configuration.
type Engine struct {
	cfg      Config
	calc     *scoring.Calculator
	schedule payout.Schedule
}

// Outcome summarises one resolution run.
type Outcome struct {
	Results     []model.PayoutResult // input order
	Pot         float64
	FrozenPools int
	Pools       int
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	calc, schedule, err := cfg.build()
	if err != nil {
		return nil, err
	}
	cfg.Tiers = schedule.Fractions()
	return &Engine{cfg: cfg, calc: calc, schedule: schedule}, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Tiers = e.schedule.Fractions()
	return cfg
}

// ResolveMarket scores entries and distributes their stakes. It returns one
// result per entry in input order. Markets or pools below the participant
// minimum are frozen: entries keep their scores and ranks but are paid 0
// and their net is 0.
func (e *Engine) ResolveMarket(entries []model.Entry, marketOpenAt time.Time) []model.PayoutResult {
	return e.Resolve(entries, marketOpenAt).Results
}

// Resolve is ResolveMarket with run statistics.
func (e *Engine) Resolve(entries []model.Entry, marketOpenAt time.Time) Outcome {
	scored := e.calc.ScoreAll(entries, marketOpenAt)
	out := Outcome{
		Results: make([]model.PayoutResult, len(scored)),
		Pot:     payout.TotalStake(scored),
	}
	if len(scored) == 0 {
		return out
	}

	globalFrozen := e.cfg.GateScope == GateGlobal && len(scored) < e.cfg.MinParticipants

	if e.cfg.Mode == SinglePool {
		pot := out.Pot
		if len(scored) < e.cfg.MinParticipants {
			pot = 0
			out.FrozenPools = 1
		}
		out.Pools = 1
		results := payout.Allocate(scored, pot, e.schedule)
		if out.FrozenPools > 0 {
			freeze(results)
		}
		copy(out.Results, results)
		return out
	}

	for _, g := range payout.Partition(scored) {
		pot := g.Pot(scored)
		frozen := globalFrozen || len(g.Indices) < e.cfg.MinParticipants && e.cfg.GateScope == GatePerSubmarket
		if frozen {
			pot = 0
			out.FrozenPools++
		}
		out.Pools++
		results := payout.Allocate(g.Members(scored), pot, e.schedule)
		if frozen {
			freeze(results)
		}
		for k, r := range results {
			out.Results[g.Indices[k]] = r
		}
	}
	return out
}

// freeze marks results of a pool that never ran: nobody is paid and nobody
// loses a stake.
func freeze(results []model.PayoutResult) {
	for i := range results {
		results[i].Payout = 0
		results[i].Net = 0
	}
}

// Standings returns results ordered for display: rank ascending, then payout
// descending, ties keeping their input order.
func Standings(results []model.PayoutResult) []model.PayoutResult {
	out := slices.Clone(results)
	slices.SortStableFunc(out, func(a, b model.PayoutResult) int {
		if a.Rank != b.Rank {
			return a.Rank - b.Rank
		}
		switch {
		case a.Payout > b.Payout:
			return -1
		case a.Payout < b.Payout:
			return 1
		}
		return 0
	})
	return out
}

// Standings resolves entries and returns the results in display order.
func (e *Engine) Standings(entries []model.Entry, marketOpenAt time.Time) []model.PayoutResult {
	return Standings(e.ResolveMarket(entries, marketOpenAt))
}

// ValidateEntries reports entries the engine would treat as data gaps rather
// than reject: duplicate ids, non-positive or non-finite stakes.
func ValidateEntries(entries []model.Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for i := range entries {
		en := &entries[i]
		if _, dup := seen[en.ID]; dup {
			return fmt.Errorf("%w: duplicate entry id %q", ErrInvalidEntry, en.ID)
		}
		seen[en.ID] = struct{}{}
		if en.Stake <= 0 || math.IsNaN(en.Stake) || math.IsInf(en.Stake, 0) {
			return fmt.Errorf("%w: entry %q has stake %v", ErrInvalidEntry, en.ID, en.Stake)
		}
	}
	return nil
}
