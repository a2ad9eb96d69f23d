package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/kousskous/menu-extractor/internal/common"
)

// Exit statuses. A fatal error (bad configuration, lost checkpoint) is told
// apart from a run that merely stopped.
const (
	exitFailure = 1
	exitFatal   = 2
)

// logOutput receives the JSON log stream; stdout carries only command summaries.
var logOutput io.Writer = os.Stderr

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	app := &cli.App{
		Name:  "kousskous",
		Usage: "extract the Kouss Kouss festival program into a restaurant dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: "directory for every artifact (env OUTPUT_DIR)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (env LOG_LEVEL)"},
		},
		Commands: []*cli.Command{
			extractCommand(),
			geocodeCommand(),
			exportCommand(),
			statusCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		printError("Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// setup loads configuration, applies global flag overrides and installs the
// JSON logger as the default.
func setup(c *cli.Context) (*common.Config, *slog.Logger) {
	cfg := common.LoadConfig()
	if dir := c.String("output-dir"); dir != "" {
		cfg.Paths.OutputDir = dir
		if os.Getenv("PROGRESS_FILE") == "" {
			cfg.Paths.ProgressFile = filepath.Join(dir, "progress.json")
		}
		if _, set := os.LookupEnv("TRACKING_DB"); !set {
			cfg.Tracking.DSN = filepath.Join(dir, "tracking.db")
		}
	}
	if lvl := c.String("log-level"); lvl != "" {
		_ = cfg.LogLevel.UnmarshalText([]byte(lvl))
	}

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)
	return cfg, logger
}

func exitCode(err error) int {
	if common.IsFatal(err) {
		return exitFatal
	}
	return exitFailure
}
