package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantbay/stratexec/internal/config"
	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/runner"
	"github.com/quantbay/stratexec/pkg/errors"
	"github.com/urfave/cli/v3"
)

// runAction loads the configuration, checks it against the invoked
// command, and drives the run to a terminal state.
func runAction(mode config.Mode) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := config.Load(cmd.String("config"))
		if err != nil {
			return err
		}

		if cfg.Mode != mode {
			return errors.Newf(errors.ErrCodeInvalidConfiguration,
				"config declares mode %q but the %q command was invoked", cfg.Mode, mode)
		}

		appLogger, err := logger.NewLogger(cmd.String("log-level"))
		if err != nil {
			return err
		}

		defer func() {
			_ = appLogger.Sync()
		}()

		// SIGINT and SIGTERM interrupt the run; the runner then performs
		// its orderly shutdown before exiting.
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runner.New(cfg, appLogger).Run(ctx)
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "Path to the YAML run configuration",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "info",
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "stratexec",
		Usage: "Run one trading strategy against a backtest engine or a live broker terminal",
		Commands: []*cli.Command{
			{
				Name:   "backtest",
				Usage:  "Replay a historical dataset through the configured strategy",
				Flags:  runFlags(),
				Action: runAction(config.ModeBacktest),
			},
			{
				Name:   "live",
				Usage:  "Trade the configured strategy through a broker terminal session",
				Flags:  runFlags(),
				Action: runAction(config.ModeLive),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
