// Command lastcallctl administers lastcall markets from the shell.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/lastcall/internal/config"
	"github.com/okian/lastcall/internal/ctl"
	"github.com/okian/lastcall/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// logs go to stderr so tables on stdout stay clean
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	_ = logger.SetLevelString(cfg.LogLevel)

	err = ctl.Run(ctx, ctl.Env{Config: cfg, Out: os.Stdout, Logger: logger.Get()}, os.Args[1:])
	if err == nil {
		return
	}
	os.Stderr.WriteString("lastcallctl: " + err.Error() + "\n")
	if errors.Is(err, ctl.ErrUsage) {
		os.Exit(2)
	}
	os.Exit(1)
}
