package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/kousskous/menu-extractor/constants"
	"github.com/kousskous/menu-extractor/internal/progress"
	"github.com/kousskous/menu-extractor/internal/tracking"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show what the progress file holds and the latest tracked runs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "runs", Value: 5, Usage: "number of tracked runs to list"},
		},
		Action: runStatusCmd,
	}
}

func runStatusCmd(c *cli.Context) error {
	cfg, logger := setup(c)

	store, err := progress.Open(cfg.Paths.ProgressFile, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	st := store.Stats()
	fmt.Println("Progress")
	fmt.Printf("  file:         %s\n", store.Path())
	fmt.Printf("  committed:    %d\n", st.Committed)
	fmt.Printf("  failed:       %d\n", st.Failed)
	fmt.Printf("  restaurants:  %d\n", st.Restaurants)
	fmt.Printf("  dishes:       %d\n", st.Dishes)
	for _, name := range store.Filenames() {
		e, _ := store.Get(name)
		if e.Status == constants.FileStatusFailed {
			fmt.Printf("  FAILED %s (%d attempt(s)): %s\n", name, e.Attempts, e.Reason)
		}
	}

	if cfg.Tracking.DSN == "" {
		return nil
	}
	ts, err := tracking.Open(c.Context, cfg.Tracking.DSN, logger)
	if err != nil {
		logger.Warn("tracking.open.error", "error", err)
		return nil
	}
	defer func() { _ = ts.Close() }()
	runs, err := ts.RecentRuns(c.Context, c.Int("runs"))
	if err != nil {
		return err
	}
	fmt.Println("Recent runs")
	for _, r := range runs {
		fmt.Printf("  %s  %-10s %-8s %s  calls=%d\n", r.StartedAt.Format("2006-01-02 15:04:05"), r.Name, r.Status, r.ID, r.Calls)
	}
	return nil
}
