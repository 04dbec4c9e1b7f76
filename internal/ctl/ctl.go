// Package ctl implements the lastcallctl administrative subcommands.
package ctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	service "github.com/okian/lastcall/internal/app"
	"github.com/okian/lastcall/internal/config"
	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/internal/domain/resolve"
	"github.com/okian/lastcall/internal/domain/types"
	"github.com/okian/lastcall/pkg/logger"
)

const usage = `lastcallctl manages prediction markets in the configured database.

Usage:
  lastcallctl <command> [flags] [args]

Commands:
  seed      -name NAME -horses A,B,C   create a market unless the name exists
  reset                                 delete every market
  resolve   Name=YYYY-MM-DD ...         date horses of the earliest market
  standings [-market ID]                print ranked standings
  score     -file snapshot.{json,yaml}  score a snapshot offline
  simulate  [-url URL] [-players N]     drive a running server end to end

Configuration comes from LASTCALL_* variables, .env and LASTCALL_CONFIG.
`

// Env carries what every command needs.
type Env struct {
	Config *config.Config
	Out    io.Writer
	Logger logger.Logger
}

// Run dispatches args to a subcommand.
func Run(ctx context.Context, env Env, args []string) error {
	if env.Logger == nil {
		env.Logger = logger.Nop()
	}
	if env.Config == nil {
		env.Config = config.New(ctx)
	}
	if len(args) == 0 {
		fmt.Fprint(env.Out, usage)
		return fmt.Errorf("%w: missing command", ErrUsage)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "seed":
		return runSeed(ctx, env, rest)
	case "reset":
		return runReset(ctx, env, rest)
	case "resolve":
		return runResolve(ctx, env, rest)
	case "standings":
		return runStandings(ctx, env, rest)
	case "score":
		return runScore(ctx, env, rest)
	case "simulate":
		return runSimulate(ctx, env, rest)
	case "help", "-h", "--help":
		fmt.Fprint(env.Out, usage)
		return nil
	default:
		fmt.Fprint(env.Out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func newFlagSet(env Env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.Out)
	return fs
}

// withService opens the configured store, runs fn, and drains pending
// settlements before returning.
func withService(ctx context.Context, env Env, fn func(*service.Service) error) (err error) {
	engineCfg, err := env.Config.Engine()
	if err != nil {
		return err
	}
	svc, err := service.New(
		service.WithLogger(env.Logger.Named("service")),
		service.WithDSN(env.Config.DSN),
		service.WithWorkerCount(1),
		service.WithQueueSize(env.Config.QueueSize),
		service.WithEngineConfig(engineCfg),
		service.WithWagerRange(env.Config.MinWager, env.Config.MaxWager),
	)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if serr := svc.Stop(stopCtx); serr != nil && err == nil {
			err = serr
		}
	}()
	return fn(svc)
}

func runSeed(ctx context.Context, env Env, args []string) error {
	fs := newFlagSet(env, "seed")
	name := fs.String("name", "", "market name")
	horses := fs.String("horses", "", "comma separated horse names")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	names := splitList(*horses)
	if *name == "" || len(names) == 0 {
		return fmt.Errorf("%w: seed needs -name and -horses", ErrUsage)
	}

	return withService(ctx, env, func(svc *service.Service) error {
		m, err := svc.CreateMarket(ctx, *name, names)
		if errors.Is(err, model.ErrDuplicateName) {
			fmt.Fprintf(env.Out, "market %q already exists, skipping\n", *name)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "created market %q (%s) with %d horses, window closes %s\n",
			m.Name, m.ID, len(m.Horses), m.WindowClosesAt.Format(model.DateLayout))
		return nil
	})
}

func runReset(ctx context.Context, env Env, args []string) error {
	fs := newFlagSet(env, "reset")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return withService(ctx, env, func(svc *service.Service) error {
		n, err := svc.Reset(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "deleted %d market(s)\n", n)
		return nil
	})
}

func runResolve(ctx context.Context, env Env, args []string) error {
	fs := newFlagSet(env, "resolve")
	marketID := fs.String("market", "", "market id (default: earliest market)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	bookings, err := ParseBookings(fs.Args())
	if err != nil {
		return err
	}

	return withService(ctx, env, func(svc *service.Service) error {
		id := *marketID
		if id == "" {
			m, err := svc.EarliestMarket(ctx)
			if err != nil {
				return err
			}
			id = m.ID
		}
		out, err := svc.Resolve(ctx, id, bookings, false)
		if err != nil {
			return err
		}
		for _, name := range out.Updated {
			fmt.Fprintf(env.Out, "dated %s\n", name)
		}
		if !out.Resolved {
			fmt.Fprintf(env.Out, "market %s still open; missing: %v\n", out.MarketID, out.Missing)
			return nil
		}
		fmt.Fprintf(env.Out, "market %s resolved\n", out.MarketID)
		return nil
	})
}

func runStandings(ctx context.Context, env Env, args []string) error {
	fs := newFlagSet(env, "standings")
	marketID := fs.String("market", "", "market id (default: earliest market)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	return withService(ctx, env, func(svc *service.Service) error {
		id := *marketID
		if id == "" {
			m, err := svc.EarliestMarket(ctx)
			if err != nil {
				return err
			}
			id = m.ID
		}
		st, err := svc.Standings(ctx, id)
		if err != nil {
			return err
		}
		return PrintStandings(env.Out, st)
	})
}

func runScore(ctx context.Context, env Env, args []string) error {
	fs := newFlagSet(env, "score")
	file := fs.String("file", "", "snapshot file (.json, .yaml or .yml)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if *file == "" {
		return fmt.Errorf("%w: score needs -file", ErrUsage)
	}

	snap, err := LoadSnapshot(*file)
	if err != nil {
		return err
	}
	entries, openAt, err := snap.ToEntries()
	if err != nil {
		return err
	}
	if err := resolve.ValidateEntries(entries); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}

	engineCfg, err := env.Config.Engine()
	if err != nil {
		return err
	}
	engine, err := resolve.New(engineCfg)
	if err != nil {
		return err
	}

	out := engine.Resolve(entries, openAt)
	env.Logger.Debug(ctx, "snapshot scored",
		logger.String("file", *file),
		logger.Int("entries", len(entries)),
		logger.Float64("pot", out.Pot),
	)

	participants := make(map[string]string, len(entries))
	for _, e := range entries {
		participants[e.ID] = e.ParticipantID
	}
	return PrintOutcome(env.Out, out, participants)
}

func runSimulate(ctx context.Context, env Env, args []string) error {
	fs := newFlagSet(env, "simulate")
	url := fs.String("url", "http://localhost"+env.Config.Addr, "base URL of a running server")
	secret := fs.String("secret", env.Config.AdminSecret, "admin secret of the server")
	players := fs.Int("players", 50, "predictions to submit")
	horses := fs.String("horses", "Alex,Bryan,Chris", "comma separated horse names")
	workers := fs.Int("workers", 8, "concurrent submitters")
	replays := fs.Int("replays", 5, "request ids to resubmit")
	timeout := fs.Duration("timeout", 30*time.Second, "request and settlement timeout")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	names := splitList(*horses)
	if *players < 1 || *workers < 1 || len(names) == 0 {
		return fmt.Errorf("%w: simulate needs -players, -workers and -horses", ErrUsage)
	}

	report, err := Simulate(ctx, SimConfig{
		BaseURL:     *url,
		AdminSecret: *secret,
		Players:     *players,
		Horses:      names,
		Workers:     *workers,
		Replays:     *replays,
		Timeout:     *timeout,
		Seed:        *seed,
		MinWager:    env.Config.MinWager,
		MaxWager:    env.Config.MaxWager,
		WindowDays:  env.Config.WindowDays,
	}, env.Logger)
	if report.MarketID != "" {
		fmt.Fprintf(env.Out, "market %s: %d submitted, %d accepted, %d duplicate, %d failed in %s\n",
			report.MarketID, report.Submitted, report.Accepted, report.Duplicates, report.Failed,
			report.Duration.Round(time.Millisecond))
	}
	if err != nil {
		return err
	}
	return PrintStandings(env.Out, types.Standings{
		MarketID: report.MarketID,
		Status:   string(model.StatusResolved),
		Mode:     env.Config.Mode,
		Pot:      report.Pot,
		Rows:     report.Settlement.Rows,
	})
}
