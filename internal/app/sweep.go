package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/crosslink/internal/cli"
	"horse.fit/crosslink/internal/logging"
)

func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "sweep does not accept positional arguments")
		return 2
	}

	ctx, cancel, pool, cfg, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	reclaimed, err := buildFairnessManager(pool, cfg, logger).Sweep(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("reservation sweep failed")
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		return 1
	}

	fmt.Printf("reclaimed %d stale reservations\n", reclaimed)
	return 0
}
