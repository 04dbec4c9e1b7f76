package resolve_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/resolve"
	"github.com/okian/lastcall/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

var openAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return time.Date(2026, 4, n, 0, 0, 0, 0, time.UTC)
}

func entry(id, pool string, predicted int, actual *time.Time, stake float64) model.Entry {
	return model.Entry{
		ID:           id,
		SubmarketKey: pool,
		Predicted:    day(predicted),
		Actual:       actual,
		Stake:        stake,
		SubmittedAt:  openAt,
		MarketOpenAt: openAt,
	}
}

func newEngine(mutate func(*resolve.Config)) *resolve.Engine {
	cfg := resolve.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := resolve.New(cfg)
	So(err, ShouldBeNil)
	return e
}

func total(results []model.PayoutResult) float64 {
	var sum float64
	for _, r := range results {
		sum += r.Payout
	}
	return sum
}

func TestNew(t *testing.T) {
	Convey("Given engine configurations", t, func() {
		Convey("When the default configuration is used", func() {
			e, err := resolve.New(resolve.DefaultConfig())

			Convey("Then the engine is built", func() {
				So(err, ShouldBeNil)
				So(e.Config().Tiers, ShouldResemble, []float64{0.75, 0.25})
				So(e.Config().MinParticipants, ShouldEqual, 3)
			})
		})

		Convey("When a field is invalid", func() {
			cases := []func(*resolve.Config){
				func(c *resolve.Config) { c.Tiers = nil },
				func(c *resolve.Config) { c.Tiers = []float64{0.9, 0.2} },
				func(c *resolve.Config) { c.WindowDays = 0 },
				func(c *resolve.Config) { c.Alpha = -1 },
				func(c *resolve.Config) { c.MinParticipants = -1 },
				func(c *resolve.Config) { c.Mode = resolve.Mode(9) },
				func(c *resolve.Config) { c.GateScope = resolve.GateScope(9) },
				func(c *resolve.Config) { c.StakeWeight = scoring.StakeWeight(9) },
			}

			Convey("Then construction fails with ErrInvalidConfig", func() {
				for _, mutate := range cases {
					cfg := resolve.DefaultConfig()
					mutate(&cfg)
					_, err := resolve.New(cfg)
					So(errors.Is(err, resolve.ErrInvalidConfig), ShouldBeTrue)
					So(cfg.Validate(), ShouldNotBeNil)
				}
			})
		})
	})
}

func TestParse(t *testing.T) {
	Convey("Given configuration names", t, func() {
		m, err := resolve.ParseMode("per_submarket")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, resolve.PerSubmarket)

		m, err = resolve.ParseMode("")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, resolve.SinglePool)
		So(m.String(), ShouldEqual, "single_pool")

		g, err := resolve.ParseGateScope("Per-Submarket")
		So(err, ShouldBeNil)
		So(g, ShouldEqual, resolve.GatePerSubmarket)
		So(resolve.GateGlobal.String(), ShouldEqual, "global")

		_, err = resolve.ParseMode("pyramid")
		So(errors.Is(err, resolve.ErrInvalidConfig), ShouldBeTrue)
		_, err = resolve.ParseGateScope("nowhere")
		So(errors.Is(err, resolve.ErrInvalidConfig), ShouldBeTrue)
	})
}

func TestResolveMarket(t *testing.T) {
	actual := day(10)

	Convey("Given a single-pool engine with a minimum of three participants", t, func() {
		e := newEngine(nil)

		Convey("When only two entries are submitted", func() {
			entries := []model.Entry{
				entry("a", "", 10, &actual, 50),
				entry("b", "", 12, &actual, 50),
			}
			results := e.ResolveMarket(entries, openAt)

			Convey("Then every payout is zero but scores are kept", func() {
				So(len(results), ShouldEqual, 2)
				So(total(results), ShouldEqual, 0)
				So(results[0].Score, ShouldBeGreaterThan, 0)
				So(results[0].Rank, ShouldEqual, 1)
				So(results[0].Net, ShouldEqual, 0)
				So(results[1].Net, ShouldEqual, 0)
			})

			Convey("And the outcome reports a frozen pool", func() {
				out := e.Resolve(entries, openAt)
				So(out.FrozenPools, ShouldEqual, 1)
				So(out.Pot, ShouldEqual, 100)
			})
		})

		Convey("When enough entries are submitted", func() {
			entries := []model.Entry{
				entry("far", "", 20, &actual, 30),
				entry("exact", "", 10, &actual, 30),
				entry("near", "", 11, &actual, 30),
				entry("open", "", 10, nil, 30),
			}
			results := e.ResolveMarket(entries, openAt)

			Convey("Then results keep input order", func() {
				for i := range entries {
					So(results[i].EntryID, ShouldEqual, entries[i].ID)
				}
			})

			Convey("Then the whole pot is paid to the two best", func() {
				So(results[1].Payout, ShouldAlmostEqual, 90.0, 1e-9)
				So(results[2].Payout, ShouldAlmostEqual, 30.0, 1e-9)
				So(results[0].Payout, ShouldEqual, 0)
				So(total(results), ShouldAlmostEqual, 120.0, 1e-9)
			})

			Convey("Then the unresolved entry scores zero and ranks last", func() {
				So(results[3].Score, ShouldEqual, 0)
				So(results[3].Rank, ShouldEqual, 4)
			})

			Convey("Then repeated runs are identical", func() {
				for range 5 {
					So(e.ResolveMarket(entries, openAt), ShouldResemble, results)
				}
			})
		})

		Convey("When there are no entries", func() {
			Convey("Then the result is empty", func() {
				So(e.ResolveMarket(nil, openAt), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a per-submarket engine", t, func() {
		entries := []model.Entry{
			entry("a1", "alex", 10, &actual, 20),
			entry("b1", "bryan", 10, &actual, 20),
			entry("a2", "alex", 12, &actual, 20),
			entry("a3", "alex", 14, &actual, 20),
			entry("b2", "bryan", 13, &actual, 20),
		}

		Convey("When the gate is global", func() {
			e := newEngine(func(c *resolve.Config) { c.Mode = resolve.PerSubmarket })
			out := e.Resolve(entries, openAt)

			Convey("Then each pool pays out its own stakes", func() {
				So(out.Pools, ShouldEqual, 2)
				So(out.FrozenPools, ShouldEqual, 0)
				So(out.Results[0].Payout, ShouldAlmostEqual, 45.0, 1e-9)
				So(out.Results[2].Payout, ShouldAlmostEqual, 15.0, 1e-9)
				So(out.Results[1].Payout, ShouldAlmostEqual, 30.0, 1e-9)
				So(out.Results[4].Payout, ShouldAlmostEqual, 10.0, 1e-9)
				So(out.Results[1].Pool, ShouldEqual, "bryan")
			})
		})

		Convey("When the gate is global and the market is too small", func() {
			e := newEngine(func(c *resolve.Config) {
				c.Mode = resolve.PerSubmarket
				c.MinParticipants = 6
			})
			out := e.Resolve(entries, openAt)

			Convey("Then every pool is frozen", func() {
				So(out.FrozenPools, ShouldEqual, 2)
				So(total(out.Results), ShouldEqual, 0)
				for _, r := range out.Results {
					So(r.Net, ShouldEqual, 0)
				}
			})
		})

		Convey("When the gate is per submarket", func() {
			e := newEngine(func(c *resolve.Config) {
				c.Mode = resolve.PerSubmarket
				c.GateScope = resolve.GatePerSubmarket
			})
			out := e.Resolve(entries, openAt)

			Convey("Then only the undersized pool is frozen", func() {
				So(out.FrozenPools, ShouldEqual, 1)
				So(out.Results[1].Payout, ShouldEqual, 0)
				So(out.Results[4].Payout, ShouldEqual, 0)
				So(out.Results[0].Payout, ShouldAlmostEqual, 45.0, 1e-9)
			})

			Convey("Then only the frozen pool keeps stakes out of the net", func() {
				So(out.Results[1].Net, ShouldEqual, 0)
				So(out.Results[4].Net, ShouldEqual, 0)
				So(out.Results[0].Net, ShouldAlmostEqual, 25.0, 1e-9)
				So(out.Results[3].Net, ShouldEqual, -20)
			})
		})
	})

	Convey("Given entries with invalid stakes", t, func() {
		e := newEngine(nil)
		entries := []model.Entry{
			entry("good1", "", 10, &actual, 40),
			entry("good2", "", 11, &actual, 40),
			entry("good3", "", 12, &actual, 40),
			entry("negative", "", 10, &actual, -30),
			entry("nan", "", 10, &actual, math.NaN()),
		}

		Convey("When they are validated", func() {
			err := resolve.ValidateEntries(entries)

			Convey("Then they are rejected", func() {
				So(errors.Is(err, resolve.ErrInvalidEntry), ShouldBeTrue)
				So(resolve.ValidateEntries(entries[:3]), ShouldBeNil)
			})
		})

		Convey("When they reach the engine anyway", func() {
			out := e.Resolve(entries, openAt)

			Convey("Then they neither score nor change the pot", func() {
				So(out.Pot, ShouldEqual, 120)
				So(out.Results[3].Score, ShouldEqual, 0)
				So(out.Results[4].Score, ShouldEqual, 0)
				So(out.Results[3].Payout, ShouldEqual, 0)
				So(out.Results[4].Payout, ShouldEqual, 0)
				So(total(out.Results), ShouldAlmostEqual, 120.0, 1e-9)
				So(out.Results[0].Payout, ShouldAlmostEqual, 90.0, 1e-9)
			})
		})
	})
}

func TestStandings(t *testing.T) {
	Convey("Given unordered results", t, func() {
		results := []model.PayoutResult{
			{EntryID: "c", Rank: 3},
			{EntryID: "a", Rank: 1, Payout: 10},
			{EntryID: "b", Rank: 1, Payout: 20},
			{EntryID: "d", Rank: 3},
		}
		got := resolve.Standings(results)

		Convey("Then they are sorted by rank then payout, ties stable", func() {
			ids := make([]string, len(got))
			for i := range got {
				ids[i] = got[i].EntryID
			}
			So(ids, ShouldResemble, []string{"b", "a", "c", "d"})
		})

		Convey("And the input is not modified", func() {
			So(results[0].EntryID, ShouldEqual, "c")
		})
	})
}

func TestValidateEntries(t *testing.T) {
	Convey("Given entries to check", t, func() {
		So(resolve.ValidateEntries([]model.Entry{{ID: "a", Stake: 10}, {ID: "b", Stake: 20}}), ShouldBeNil)

		err := resolve.ValidateEntries([]model.Entry{{ID: "a", Stake: 10}, {ID: "a", Stake: 20}})
		So(errors.Is(err, resolve.ErrInvalidEntry), ShouldBeTrue)

		err = resolve.ValidateEntries([]model.Entry{{ID: "a", Stake: -5}})
		So(errors.Is(err, resolve.ErrInvalidEntry), ShouldBeTrue)
	})
}
