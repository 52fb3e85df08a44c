package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/crosslink/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	top := fs.Int("top", 10, "Number of top inbound targets to show")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}
	if *top <= 0 {
		fmt.Fprintln(os.Stderr, "--top must be >= 1")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, _, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	stats, err := pool.QueryLinkStats(ctx, *top)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query link stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	totalsRows := [][]string{
		{"total_published", fmt.Sprintf("%d", stats.TotalPublished)},
		{"total_links", fmt.Sprintf("%d", stats.TotalLinks)},
		{"open_reservations", fmt.Sprintf("%d", stats.OpenReservations)},
	}
	if err := writeTable([]string{"metric", "value"}, totalsRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render totals table: %v\n", err)
		return 1
	}

	fmt.Println()
	targetRows := make([][]string, 0, len(stats.TopInboundTargets))
	for _, target := range stats.TopInboundTargets {
		targetRows = append(targetRows, []string{
			truncateForTable(target.TargetSlug, 40),
			target.TargetUUID,
			fmt.Sprintf("%d", target.InboundLinks),
			fmt.Sprintf("%d", target.Reserved),
			fmt.Sprintf("%.4f", target.Share),
		})
	}
	if err := writeTable([]string{"target_slug", "target_uuid", "inbound", "reserved", "share"}, targetRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render targets table: %v\n", err)
		return 1
	}

	return 0
}
