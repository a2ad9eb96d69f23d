package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/kousskous/menu-extractor/internal/common"
	"github.com/kousskous/menu-extractor/internal/llm"
	"github.com/kousskous/menu-extractor/internal/llm/openai"
	"github.com/kousskous/menu-extractor/internal/pipeline"
	"github.com/kousskous/menu-extractor/internal/progress"
	"github.com/kousskous/menu-extractor/internal/tracking"
)

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "run the oracle over every page image, resuming from the progress file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "images", Aliases: []string{"i"}, Usage: "directory of page images (env IMAGES_DIR)"},
			&cli.StringFlag{Name: "context-file", Usage: "replace the built-in festival context with this file"},
			&cli.StringFlag{Name: "model", Usage: "model identifier (env LLM_MODEL)"},
			&cli.IntFlag{Name: "max-attempts", Usage: "oracle attempts per page (env LLM_MAX_ATTEMPTS)"},
			&cli.BoolFlag{Name: "include-hidden", Usage: "also process dot-files and dot-directories"},
		},
		Action: runExtract,
	}
}

func runExtract(c *cli.Context) error {
	cfg, logger := setup(c)
	if v := c.String("images"); v != "" {
		cfg.Paths.ImagesDir = v
	}
	if v := c.String("context-file"); v != "" {
		cfg.LLM.ContextFile = v
	}
	if v := c.String("model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := c.Int("max-attempts"); v > 0 {
		cfg.LLM.MaxAttempts = v
	}
	if err := cfg.ValidateExtract(); err != nil {
		return err
	}

	bizContext := llm.DefaultBusinessContext
	if cfg.LLM.ContextFile != "" {
		b, err := os.ReadFile(cfg.LLM.ContextFile)
		if err != nil {
			return common.NewAppError(common.CodeConfig, "read context file", errors.Join(common.ErrConfig, err))
		}
		bizContext = strings.TrimSpace(string(b))
	}

	ctx := c.Context
	runID := uuid.New().String()
	ctx = common.WithRunID(ctx, runID)

	store, err := progress.Open(cfg.Paths.ProgressFile, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	history := llm.NewCallHistory()
	calls := llm.MultiCallLogger{llm.SlogCallLogger{Logger: logger}, history}
	var tracker pipeline.RunTracker = pipeline.NopTracker{}
	run, closeTracking := startTracking(ctx, cfg, "extraction", logger)
	defer closeTracking()
	if run != nil {
		tracker = run
		calls = append(calls, run)
		run.LogParams(ctx, map[string]string{
			"model":        cfg.LLM.Model,
			"temperature":  fmt.Sprintf("%.2f", cfg.LLM.Temperature),
			"max_attempts": fmt.Sprint(cfg.LLM.MaxAttempts),
			"progress":     cfg.Paths.ProgressFile,
			"schema":       fmt.Sprint(cfg.LLM.SchemaEnforce),
		})
	}

	client := openai.NewClient(openai.Config{
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		Timeout:       cfg.LLM.Timeout,
		DisableSchema: !cfg.LLM.SchemaEnforce,
	}, logger)
	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = cfg.LLM.MaxAttempts
	retry.InitialBackoff = cfg.LLM.RetryBackoff
	adapter, err := llm.NewAdapter(client, calls, llm.AdapterConfig{Model: client.Model(), Retry: retry}, logger)
	if err != nil {
		return fmt.Errorf("compile schemas: %w", err)
	}

	salvager, err := llm.NewSalvager()
	if err != nil {
		return fmt.Errorf("compile schemas: %w", err)
	}

	orch := pipeline.NewOrchestrator(pipeline.Config{
		RestaurantsPath: cfg.OutputPath(common.RestaurantsFile),
		FailuresPath:    cfg.OutputPath(common.FailuresFile),
		BusinessContext: bizContext,
		SkipHidden:      !c.Bool("include-hidden"),
	}, store, adapter, salvager, tracker, logger)

	report, runErr := orch.Run(ctx, cfg.Paths.ImagesDir)

	callLogPath := cfg.OutputPath(common.CallLogFile)
	if err := history.Save(callLogPath); err != nil {
		logger.Warn("llm.calls.save_error", "path", callLogPath, "error", err)
	} else if run != nil {
		run.LogArtifact(ctx, "llm_calls", callLogPath)
	}
	if run != nil {
		run.LogMetric(ctx, "total_tokens", float64(history.TotalTokens()), report.Processed)
		run.End(context.WithoutCancel(ctx), runStatus(runErr))
	}

	printExtractSummary(report, store, history, callLogPath)
	if runErr != nil {
		return fmt.Errorf("extraction stopped: %w", runErr)
	}
	return nil
}

// startTracking opens the tracking store and a run. Tracking is optional: any
// failure is logged and the command carries on without it.
func startTracking(ctx context.Context, cfg *common.Config, name string, logger *slog.Logger) (*tracking.Run, func()) {
	if cfg.Tracking.DSN == "" {
		return nil, func() {}
	}
	ts, err := tracking.Open(ctx, cfg.Tracking.DSN, logger)
	if err != nil {
		logger.Warn("tracking.open.error", "dsn", cfg.Tracking.DSN, "error", err)
		return nil, func() {}
	}
	run, err := ts.StartRun(ctx, name)
	if err != nil {
		logger.Warn("tracking.run.error", "error", err)
		_ = ts.Close()
		return nil, func() {}
	}
	return run, func() { _ = ts.Close() }
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return "FINISHED"
	case errors.Is(err, context.Canceled):
		return "KILLED"
	default:
		return "FAILED"
	}
}

func printExtractSummary(r pipeline.RunReport, store *progress.Store, history *llm.CallHistory, callLogPath string) {
	st := store.Stats()
	fmt.Println()
	fmt.Println("Extraction summary")
	fmt.Printf("  run id:               %s\n", r.RunID)
	fmt.Printf("  files processed:      %d\n", r.Processed)
	fmt.Printf("    from cache:         %d\n", r.CacheHits)
	fmt.Printf("    extracted:          %d\n", r.Extracted)
	fmt.Printf("    failed:             %d\n", r.Failed)
	fmt.Printf("  restaurants:          %d\n", r.Restaurants)
	fmt.Printf("  dishes:               %d\n", r.Dishes)
	fmt.Printf("  oracle calls:         %d (%d tokens)\n", len(history.Records()), history.TotalTokens())
	fmt.Printf("  committed in store:   %d\n", st.Committed)
	fmt.Printf("  elapsed:              %s\n", r.Elapsed.Round(1e6))
	fmt.Println("Artifacts")
	fmt.Printf("  dataset:              %s\n", r.RestaurantsPath)
	fmt.Printf("  failures:             %s\n", r.FailuresPath)
	fmt.Printf("  progress:             %s\n", store.Path())
	if len(history.Records()) > 0 {
		fmt.Printf("  oracle call log:      %s\n", callLogPath)
	}
	for _, f := range r.Files {
		if f.Reason != "" {
			fmt.Printf("  FAILED %s: %s\n", f.Filename, f.Reason)
		}
	}
}
