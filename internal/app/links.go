package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"horse.fit/crosslink/internal/cli"
	"horse.fit/crosslink/internal/db"
)

func runLinks(args []string) int {
	fs := flag.NewFlagSet("links", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	direction := fs.String("direction", "outbound", "Link direction: outbound or inbound")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "links requires exactly one article UUID argument")
		return 2
	}
	articleUUID := fs.Arg(0)
	if _, err := uuid.Parse(articleUUID); err != nil {
		fmt.Fprintf(os.Stderr, "invalid article UUID %q\n", articleUUID)
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	dir := strings.TrimSpace(strings.ToLower(*direction))
	if dir != "outbound" && dir != "inbound" {
		fmt.Fprintln(os.Stderr, "--direction must be outbound or inbound")
		return 2
	}

	ctx, cancel, pool, _, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	var records []db.LinkRecord
	if dir == "outbound" {
		records, err = pool.ListLinksBySource(ctx, articleUUID)
	} else {
		records, err = pool.ListLinksByTarget(ctx, articleUUID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list links: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(records); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		counterpart := rec.TargetUUID
		if dir == "inbound" {
			counterpart = rec.SourceUUID
		}
		rows = append(rows, []string{
			rec.LinkUUID,
			counterpart,
			truncateForTable(rec.AnchorText, 48),
			fmt.Sprintf("%d-%d", rec.TextStart, rec.TextEnd),
			formatUTCTimestamp(rec.CreatedAt),
		})
	}
	counterpartHeader := "target_uuid"
	if dir == "inbound" {
		counterpartHeader = "source_uuid"
	}
	if err := writeTable([]string{"link_uuid", counterpartHeader, "anchor", "text_span", "created_at"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
