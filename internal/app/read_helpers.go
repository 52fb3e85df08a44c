package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/crosslink/internal/cli"
	"horse.fit/crosslink/internal/config"
	"horse.fit/crosslink/internal/db"
	"horse.fit/crosslink/internal/fairness"
	"horse.fit/crosslink/internal/index"
	"horse.fit/crosslink/internal/linkplan"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func truncateForTable(value string, maxLen int) string {
	trimmed := strings.TrimSpace(value)
	if maxLen <= 0 {
		return trimmed
	}
	if utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}

	runes := []rune(trimmed)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func formatUTCTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func formatUTCTimestampPtr(value *time.Time) string {
	if value == nil || value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}

func connectReadPool(timeout time.Duration, envLoader *cli.EnvLoader) (context.Context, context.CancelFunc, *db.Pool, *config.Config, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return ctx, cancel, pool, cfg, nil
}

func buildFairnessManager(pool *db.Pool, cfg *config.Config, logger zerolog.Logger) *fairness.Manager {
	return fairness.NewManager(fairness.NewStore(pool), fairness.Config{
		Share:                 cfg.FairnessShare,
		BootstrapMinPublished: cfg.BootstrapMinPublished,
		ReservationTTL:        time.Duration(cfg.ReservationTTLMinutes) * time.Minute,
	}, logger)
}

func buildPlanService(pool *db.Pool, cfg *config.Config, logger zerolog.Logger) (*linkplan.Service, error) {
	client, err := index.NewClient(index.ClientOptions{
		BaseURL:       cfg.IndexBaseURL,
		RatePerSecond: cfg.IndexRatePerSecond,
		RateBurst:     cfg.IndexRateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build index client: %w", err)
	}

	fair := buildFairnessManager(pool, cfg, logger)
	return linkplan.NewService(linkplan.NewStore(pool), client, fair, linkplan.FromAppConfig(cfg), logger), nil
}
