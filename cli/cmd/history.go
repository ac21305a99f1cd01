package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/velocitylabs/vcollect/history"
	"github.com/velocitylabs/vcollect/iox"
)

// HistoryCommand returns the history command group.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect past runs and their captures",
		Subcommands: []*cli.Command{
			{
				Name:  "runs",
				Usage: "List recent runs",
				Flags: append(SharedFlags(),
					&cli.StringFlag{
						Name:  "job",
						Usage: "Limit to one job slug",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum rows",
						Value: 20,
					},
				),
				Action: historyRunsAction,
			},
			{
				Name:      "captures",
				Usage:     "List capture files recorded for a run",
				ArgsUsage: "<run-row-id>",
				Flags:     SharedFlags(),
				Action:    historyCapturesAction,
			},
		},
	}
}

func openHistory(c *cli.Context) (*history.Store, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("history: %v", err), exitUsage)
	}
	return store, nil
}

func historyRunsAction(c *cli.Context) error {
	store, err := openHistory(c)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(store)

	runs, err := store.RecentRuns(context.Background(), c.String("job"), c.Int("limit"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("history: %v", err), exitUsage)
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}

	fmt.Printf("%-6s %-24s %-20s %-9s %s\n", "ID", "JOB", "STARTED", "STATUS", "DEVICES")
	for _, run := range runs {
		devices := fmt.Sprintf("%d/%d ok", run.Success, run.Total)
		if run.Failed > 0 || run.Skipped > 0 {
			devices += fmt.Sprintf(" (%d failed, %d skipped)", run.Failed, run.Skipped)
		}
		fmt.Printf("%-6d %-24s %-20s %-9s %s\n",
			run.ID, run.JobSlug,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Status, devices)
	}
	return nil
}

func historyCapturesAction(c *cli.Context) error {
	arg := c.Args().First()
	if arg == "" {
		return cli.Exit("a run row id is required", exitUsage)
	}
	runID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return cli.Exit(fmt.Sprintf("bad run id %q", arg), exitUsage)
	}

	store, err := openHistory(c)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(store)

	ctx := context.Background()
	run, err := store.RunByID(ctx, runID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("run %d: %v", runID, err), exitUsage)
	}
	captures, err := store.Captures(ctx, runID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("captures: %v", err), exitUsage)
	}

	fmt.Printf("run %d: job=%s status=%s started=%s\n",
		run.ID, run.JobSlug, run.Status,
		run.StartedAt.Local().Format(time.RFC3339))
	if len(captures) == 0 {
		fmt.Println("no captures")
		return nil
	}
	for _, capture := range captures {
		fmt.Printf("  %-20s %8d bytes  score %5.1f  %s\n",
			capture.DeviceName, capture.Bytes, capture.Score, capture.Path)
	}
	return nil
}
