package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "plan":
		return runPlan(args[1:])
	case "links":
		return runLinks(args[1:])
	case "run", "run-once":
		return runBatch(args[1:])
	case "sweep":
		return runSweep(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "crosslink CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  crosslink <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health   Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  plan     Plan and apply internal links for one article")
	fmt.Fprintln(os.Stderr, "  links    List stored links for an article")
	fmt.Fprintln(os.Stderr, "  run      Plan links for recently published articles")
	fmt.Fprintln(os.Stderr, "  run-once Alias for run")
	fmt.Fprintln(os.Stderr, "  sweep    Reclaim stale link reservations")
	fmt.Fprintln(os.Stderr, "  stats    Show link graph and fairness stats")
	fmt.Fprintln(os.Stderr, "  serve    Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"crosslink <command> -h\" for command-specific flags.")
}
