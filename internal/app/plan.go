package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"horse.fit/crosslink/internal/cli"
	"horse.fit/crosslink/internal/index"
	"horse.fit/crosslink/internal/logging"
)

func runPlan(args []string) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	dryRun := fs.Bool("dry-run", false, "Plan without persisting links or HTML")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "plan requires exactly one article UUID argument")
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

	svc, err := buildPlanService(pool, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	planFn := svc.PlanAndApply
	if *dryRun {
		planFn = svc.Preview
	}
	plan, err := planFn(ctx, articleUUID)
	if err != nil {
		logger.Error().Err(err).Str("article_uuid", articleUUID).Msg("plan failed")
		if index.IsBackendError(err) {
			fmt.Fprintf(os.Stderr, "Index backend unavailable: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Plan failed: %v\n", err)
		}
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(plan); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if len(plan.Applied) == 0 {
		reason := plan.Reason
		if reason == "" {
			reason = "no links applied"
		}
		fmt.Printf("no links applied for %s: %s\n", plan.SourceUUID, reason)
		return 0
	}

	rows := make([][]string, 0, len(plan.Applied))
	for _, link := range plan.Applied {
		state := "inserted"
		switch {
		case *dryRun:
			state = "planned"
		case link.Replayed:
			state = "replayed"
		}
		rows = append(rows, []string{
			link.TargetSlug,
			truncateForTable(link.AnchorText, 48),
			fmt.Sprintf("%d-%d", link.TextStart, link.TextEnd),
			fmt.Sprintf("%d-%d", link.HTMLStart, link.HTMLEnd),
			state,
		})
	}
	if err := writeTable([]string{"target", "anchor", "text_span", "html_span", "state"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
