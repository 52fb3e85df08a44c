package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/crosslink/internal/cli"
	"horse.fit/crosslink/internal/logging"
	"horse.fit/crosslink/internal/workers"
)

func runBatch(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	limit := fs.Int("limit", 50, "Maximum number of published articles to plan")
	workerCount := fs.Int("workers", 0, "Concurrent planners (0 uses XL_PUBLISH_WORKERS)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "run does not accept positional arguments")
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 1")
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

	articles, err := pool.ListPublishedArticles(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list published articles: %v\n", err)
		return 1
	}
	if len(articles) == 0 {
		fmt.Println("no published articles to plan")
		return 0
	}

	uuids := make([]string, 0, len(articles))
	for _, article := range articles {
		uuids = append(uuids, article.ArticleUUID)
	}

	size := *workerCount
	if size <= 0 {
		size = cfg.PublishWorkers
	}

	results := workers.NewPool(svc, size, logger).Run(ctx, uuids)

	applied := 0
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		if res.Plan != nil {
			applied += len(res.Plan.Applied)
		}
	}
	logger.Info().
		Int("articles", len(results)).
		Int("links_applied", applied).
		Int("failed", failed).
		Msg("batch planning complete")

	if outputFormat == outputFormatJSON {
		type batchRow struct {
			ArticleUUID string `json:"article_uuid"`
			Applied     int    `json:"applied"`
			Reason      string `json:"reason,omitempty"`
			Error       string `json:"error,omitempty"`
		}
		out := make([]batchRow, 0, len(results))
		for _, res := range results {
			row := batchRow{ArticleUUID: res.ArticleUUID}
			if res.Err != nil {
				row.Error = res.Err.Error()
			} else if res.Plan != nil {
				row.Applied = len(res.Plan.Applied)
				row.Reason = res.Plan.Reason
			}
			out = append(out, row)
		}
		if err := printJSON(out); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		rows := make([][]string, 0, len(results))
		for _, res := range results {
			status := "ok"
			appliedCount := 0
			detail := ""
			if res.Err != nil {
				status = "error"
				detail = truncateForTable(res.Err.Error(), 64)
			} else if res.Plan != nil {
				appliedCount = len(res.Plan.Applied)
				detail = res.Plan.Reason
			}
			rows = append(rows, []string{
				res.ArticleUUID,
				status,
				fmt.Sprintf("%d", appliedCount),
				detail,
			})
		}
		if err := writeTable([]string{"article_uuid", "status", "applied", "detail"}, rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
			return 1
		}
	}

	if failed > 0 {
		return 1
	}
	return 0
}
