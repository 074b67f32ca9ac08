// Command risk_calculator sizes, tracks and stress tests leveraged futures positions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"risk_calculator/internal/bootstrap"
	apperrors "risk_calculator/pkg/errors"
)

var version = "dev"

type command struct {
	summary string
	run     func(env *cmdEnv, args []string) error
}

var commands = map[string]command{
	"quote":    {"size a hypothetical trade without touching the account", runQuote},
	"open":     {"open a position", runOpen},
	"close":    {"close a position at an exit price", runClose},
	"summary":  {"value the account at current prices", runSummary},
	"prices":   {"show prices and 24h change", runPrices},
	"deposit":  {"add funds", runDeposit},
	"withdraw": {"remove uncommitted funds", runWithdraw},
	"reset":    {"start over with a new balance", runReset},
	"journal":  {"list account events", runJournal},
	"stress":   {"value the account under uniform price shocks", runStress},
	"watch":    {"revalue on an interval and serve /metrics", runWatch},
	"version":  {"print the version", nil},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("risk_calculator", flag.ContinueOnError)
	global.SetOutput(stderr)
	configFile := global.String("config", "", "Path to configuration file (defaults apply when empty)")
	global.Usage = func() { usage(stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" && *configFile == "" {
		*configFile = envConfig
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 2
	}

	name := rest[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr)
		return 2
	}
	if name == "version" {
		fmt.Fprintln(stdout, "risk_calculator", version)
		return 0
	}

	app, err := bootstrap.NewApp(*configFile)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	env := &cmdEnv{app: app, stdout: stdout, stderr: stderr, ctx: context.Background()}
	defer env.close()

	if err := cmd.run(env, rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, errUsage):
		return 2
	case errors.Is(err, apperrors.ErrInsufficientMargin):
		return 3
	case errors.Is(err, apperrors.ErrNotFound):
		return 4
	case errors.Is(err, apperrors.ErrPriceUnavailable):
		return 5
	default:
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: risk_calculator [-config path] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "run '<command> -h' for command flags")
}
