package ctl_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/lastcall/internal/adapters/http/api"
	"github.com/okian/lastcall/internal/adapters/repository"
	service "github.com/okian/lastcall/internal/app"
	"github.com/okian/lastcall/internal/config"
	"github.com/okian/lastcall/internal/ctl"
	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/resolve"
	"github.com/okian/lastcall/internal/domain/types"
	"github.com/okian/lastcall/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseBookings(t *testing.T) {
	Convey("Given booking arguments", t, func() {
		Convey("When they are well formed", func() {
			b, err := ctl.ParseBookings([]string{"Alex=2026-04-10", " Bryan = 2026-05-01 "})

			Convey("Then each becomes a booking", func() {
				So(err, ShouldBeNil)
				So(b, ShouldResemble, []types.Booking{
					{Horse: "Alex", Date: "2026-04-10"},
					{Horse: "Bryan", Date: "2026-05-01"},
				})
			})
		})

		Convey("When they are malformed", func() {
			for _, args := range [][]string{
				nil,
				{"Alex"},
				{"=2026-04-10"},
				{"Alex=10/04/2026"},
				{"Alex=2026-04-10", "alex=2026-04-11"},
			} {
				_, err := ctl.ParseBookings(args)
				So(errors.Is(err, ctl.ErrBadBooking), ShouldBeTrue)
			}
		})
	})
}

const yamlSnapshot = `
market_open_at: 2026-03-01T00:00:00Z
entries:
  - id: a
    participant_id: sam
    predicted_date: 2026-04-10
    actual_date: 2026-04-10
    stake: 50
    submitted_at: 2026-03-01T00:00:00Z
  - id: b
    participant_id: kim
    predicted_date: 2026-04-12
    actual_date: 2026-04-10
    stake: 20
    submitted_at: 2026-03-01T00:00:00Z
  - id: c
    participant_id: lee
    predicted_date: 2026-05-01
    stake: 30
`

const jsonSnapshot = `{
  "market_open_at": "2026-03-01",
  "entries": [
    {"id": "a", "participant_id": "sam", "predicted_date": "2026-04-10", "actual_date": "2026-04-10", "stake": 50}
  ]
}`

func TestSnapshot(t *testing.T) {
	Convey("Given a YAML snapshot", t, func() {
		snap, err := ctl.ParseSnapshot([]byte(yamlSnapshot), ".yaml")
		So(err, ShouldBeNil)

		Convey("When converting to entries", func() {
			entries, openAt, err := snap.ToEntries()

			Convey("Then dates and stakes carry over", func() {
				So(err, ShouldBeNil)
				So(openAt.Format(model.DateLayout), ShouldEqual, "2026-03-01")
				So(entries, ShouldHaveLength, 3)
				So(entries[0].Resolved(), ShouldBeTrue)
				So(entries[2].Resolved(), ShouldBeFalse)
				So(entries[1].Stake, ShouldEqual, 20)
				So(entries[2].SubmittedAt.IsZero(), ShouldBeTrue)
			})
		})
	})

	Convey("Given a JSON snapshot with a bare open date", t, func() {
		snap, err := ctl.ParseSnapshot([]byte(jsonSnapshot), ".json")
		So(err, ShouldBeNil)
		entries, openAt, err := snap.ToEntries()

		Convey("Then it parses", func() {
			So(err, ShouldBeNil)
			So(openAt.IsZero(), ShouldBeFalse)
			So(entries[0].ParticipantID, ShouldEqual, "sam")
		})
	})

	Convey("Given broken snapshots", t, func() {
		_, err := ctl.ParseSnapshot([]byte("{"), ".json")
		So(errors.Is(err, ctl.ErrBadSnapshot), ShouldBeTrue)

		snap, err := ctl.ParseSnapshot([]byte(`{"entries":[{"predicted_date":"soon"}]}`), ".json")
		So(err, ShouldBeNil)
		_, _, err = snap.ToEntries()
		So(errors.Is(err, ctl.ErrBadSnapshot), ShouldBeTrue)
	})
}

func TestPrintStandings(t *testing.T) {
	Convey("Given standings", t, func() {
		var buf bytes.Buffer
		err := ctl.PrintStandings(&buf, types.Standings{
			MarketID: "m-1", Status: "resolved", Mode: "single_pool", Pot: 100,
			Rows: []types.Standing{
				{Rank: 1, ParticipantID: "sam", Horse: "Alex", Stake: 50, Payout: 75, Net: 25},
				{Rank: 2, ParticipantID: "kim", Horse: "Alex", Stake: 50, Payout: 25, Net: -25},
			},
		})

		Convey("Then the table lists every row", func() {
			So(err, ShouldBeNil)
			out := buf.String()
			So(out, ShouldContainSubstring, "pot 100.00")
			So(out, ShouldContainSubstring, "sam")
			So(out, ShouldContainSubstring, "75.00")
			So(out, ShouldContainSubstring, "-25.00")
		})
	})
}

func newEnv(t *testing.T, out *bytes.Buffer) ctl.Env {
	cfg := config.New(context.Background())
	cfg.DSN = filepath.Join(t.TempDir(), "ctl.db")
	return ctl.Env{Config: cfg, Out: out, Logger: logger.Nop()}
}

func TestCommands(t *testing.T) {
	Convey("Given a fresh database", t, func() {
		ctx := context.Background()
		var out bytes.Buffer
		env := newEnv(t, &out)

		So(ctl.Run(ctx, env, []string{"seed", "-name", "Stag", "-horses", "Alex, Bryan"}), ShouldBeNil)
		So(out.String(), ShouldContainSubstring, `created market "Stag"`)

		Convey("When seeding the same name again", func() {
			out.Reset()
			err := ctl.Run(ctx, env, []string{"seed", "-name", "Stag", "-horses", "Chris"})

			Convey("Then it is skipped", func() {
				So(err, ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "already exists")
			})
		})

		Convey("When dating one horse", func() {
			out.Reset()
			err := ctl.Run(ctx, env, []string{"resolve", "alex=2026-04-10"})

			Convey("Then the market stays open and names the rest", func() {
				So(err, ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "dated Alex")
				So(out.String(), ShouldContainSubstring, "Bryan")
				So(out.String(), ShouldContainSubstring, "still open")
			})
		})

		Convey("When dating every horse", func() {
			out.Reset()
			err := ctl.Run(ctx, env, []string{"resolve", "Alex=2026-04-10", "Bryan=2026-05-01"})

			Convey("Then the market resolves without a quorum", func() {
				So(err, ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "resolved")

				out.Reset()
				So(ctl.Run(ctx, env, []string{"standings"}), ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "resolved")
			})
		})

		Convey("When resetting", func() {
			out.Reset()
			err := ctl.Run(ctx, env, []string{"reset"})

			Convey("Then every market is gone", func() {
				So(err, ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "deleted 1 market(s)")
				So(errors.Is(ctl.Run(ctx, env, []string{"standings"}), model.ErrNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given bad invocations", t, func() {
		ctx := context.Background()
		var out bytes.Buffer
		env := newEnv(t, &out)

		So(errors.Is(ctl.Run(ctx, env, nil), ctl.ErrUsage), ShouldBeTrue)
		So(errors.Is(ctl.Run(ctx, env, []string{"launch"}), ctl.ErrUsage), ShouldBeTrue)
		So(errors.Is(ctl.Run(ctx, env, []string{"seed", "-name", "x"}), ctl.ErrUsage), ShouldBeTrue)
		So(errors.Is(ctl.Run(ctx, env, []string{"score"}), ctl.ErrUsage), ShouldBeTrue)
		So(errors.Is(ctl.Run(ctx, env, []string{"resolve", "Alex"}), ctl.ErrBadBooking), ShouldBeTrue)
		So(ctl.Run(ctx, env, []string{"help"}), ShouldBeNil)
	})
}

func TestScoreCommand(t *testing.T) {
	Convey("Given a snapshot file", t, func() {
		path := filepath.Join(t.TempDir(), "snap.yaml")
		So(os.WriteFile(path, []byte(yamlSnapshot), 0o600), ShouldBeNil)
		var out bytes.Buffer
		env := newEnv(t, &out)

		Convey("When scoring it offline", func() {
			err := ctl.Run(context.Background(), env, []string{"score", "-file", path})

			Convey("Then the exact guess takes the top tier", func() {
				So(err, ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "pot 100.00")
				So(out.String(), ShouldContainSubstring, "75.00")
				So(out.String(), ShouldContainSubstring, "25.00")
			})
		})

		Convey("When the engine minimum is raised", func() {
			env.Config.MinParticipants = 5
			err := ctl.Run(context.Background(), env, []string{"score", "-file", path})

			Convey("Then the pool is frozen", func() {
				So(err, ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "1 frozen")
			})
		})
	})
}

func TestSimulate(t *testing.T) {
	Convey("Given a running server", t, func() {
		ctx := context.Background()
		store, err := repository.NewSQLiteStore(":memory:")
		So(err, ShouldBeNil)
		defer store.Close()

		svc, err := service.New(service.WithStore(store), service.WithWorkerCount(2))
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx) //nolint:errcheck

		mux := http.NewServeMux()
		api.NewServer(svc, svc, api.WithAdminSecret("correct-horse")).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When simulating a market", func() {
			cfg := config.New(ctx)
			report, err := ctl.Simulate(ctx, ctl.SimConfig{
				BaseURL:     srv.URL,
				AdminSecret: "correct-horse",
				Players:     20,
				Horses:      []string{"Alex", "Bryan"},
				Workers:     4,
				Replays:     3,
				Timeout:     5e9,
				Seed:        7,
				MinWager:    cfg.MinWager,
				MaxWager:    cfg.MaxWager,
				WindowDays:  cfg.WindowDays,
			}, logger.Nop())

			Convey("Then every prediction settles and the pot is paid out", func() {
				So(err, ShouldBeNil)
				So(report.Accepted, ShouldEqual, 20)
				So(report.Duplicates, ShouldEqual, 3)
				So(report.Failed, ShouldEqual, 0)
				So(report.Settlement.Rows, ShouldHaveLength, 20)
				So(report.Paid, ShouldAlmostEqual, report.Pot, 0.2)
			})
		})
	})
}

// The engine default must keep the minimum the CLI relies on.
func TestDefaultMinimum(t *testing.T) {
	Convey("Then the default minimum is three", t, func() {
		So(resolve.DefaultConfig().MinParticipants, ShouldEqual, 3)
	})
}
