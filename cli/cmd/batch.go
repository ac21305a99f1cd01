package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/velocitylabs/vcollect/cli/config"
	"github.com/velocitylabs/vcollect/history"
	"github.com/velocitylabs/vcollect/inventory"
	"github.com/velocitylabs/vcollect/iox"
	"github.com/velocitylabs/vcollect/log"
	"github.com/velocitylabs/vcollect/runtime"
	"github.com/velocitylabs/vcollect/sshx"
	"github.com/velocitylabs/vcollect/types"
	"github.com/velocitylabs/vcollect/validate"
	"github.com/velocitylabs/vcollect/vault"
)

// BatchCommand returns the batch command group.
func BatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Run and inspect job batches",
		Subcommands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Execute a batch by name or file path",
				ArgsUsage: "<batch-name|path>",
				Flags: append(SharedFlags(),
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Suppress per-device progress output",
					},
				),
				Action: batchRunAction,
			},
			{
				Name:   "list",
				Usage:  "List available batch descriptors",
				Flags:  SharedFlags(),
				Action: batchListAction,
			},
		},
	}
}

func batchRunAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	name := c.Args().First()
	if name == "" {
		return cli.Exit("a batch name or path is required", exitUsage)
	}

	batch, err := config.FindBatch(cfg.BatchDir, name)
	if err != nil {
		return cli.Exit(fmt.Sprintf("batch: %v", err), exitUsage)
	}

	inv, err := inventory.Open(cfg.InventoryDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("inventory: %v", err), exitUsage)
	}
	defer iox.DiscardClose(inv)

	ctx, cancel := signalContext()
	defer cancel()

	v, err := unlockVault(ctx, cfg.VaultDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	defer iox.DiscardClose(v)

	hist, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("history: %v", err), exitUsage)
	}
	defer iox.DiscardClose(hist)

	templates, err := validate.OpenStore(cfg.TemplatesDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("templates: %v", err), exitUsage)
	}
	defer iox.DiscardClose(templates)

	logger := newLogger(&log.RunMeta{BatchName: batch.Name})
	jobRunner := &runtime.JobRunner{
		Inventory:      inv,
		Credentials:    vault.NewResolver(v, 0),
		Executor:       sshx.NewExecutor(sshx.NewClient()),
		Validator:      validate.NewEngine(templates, nil),
		History:        hist,
		Logger:         logger,
		CollectionRoot: cfg.CollectionRoot,
		BatchName:      batch.Name,
	}
	if !c.Bool("quiet") {
		jobRunner.Progress = printProgress
	}

	runner := &runtime.BatchRunner{
		LoadJob: func(ctx context.Context, slug string) (*types.Job, error) {
			job, err := inv.JobBySlug(ctx, slug)
			if err != nil {
				return nil, err
			}
			if job.Execution.MaxWorkers == 0 {
				job.Execution.MaxWorkers = cfg.Execution.MaxWorkers
			}
			if job.Execution.Timeout == 0 {
				job.Execution.Timeout = cfg.Execution.Timeout.Duration
			}
			return job, nil
		},
		RunJob: func(ctx context.Context, job *types.Job) (*types.RunResult, error) {
			if !c.Bool("quiet") {
				fmt.Printf("\n--- job %s ---\n", job.Slug)
			}
			return jobRunner.Run(ctx, job)
		},
		Logger: logger,
	}

	result, err := runner.Run(ctx, batch)
	if err != nil {
		return cli.Exit(fmt.Sprintf("batch: %v", err), exitUsage)
	}

	printBatchSummary(result)
	if !result.AllSucceeded() {
		return cli.Exit("", exitRunFailure)
	}
	return nil
}

func batchListAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	names, err := config.ListBatches(cfg.BatchDir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("batches: %v", err), exitUsage)
	}
	if len(names) == 0 {
		fmt.Printf("no batches in %s\n", cfg.BatchDir)
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func printBatchSummary(result *types.BatchResult) {
	fmt.Printf("\n=== Batch Summary ===\n")
	fmt.Printf("Batch:    %s\n", result.Name)
	fmt.Printf("Jobs:     %d attempted, %d ok, %d partial, %d failed, %d cancelled\n",
		result.JobsAttempted, result.JobsSucceeded, result.JobsPartial,
		result.JobsFailed, result.JobsCancelled)
	fmt.Printf("Devices:  %d total, %d ok, %d failed, %d skipped\n",
		result.DevicesTotal, result.DevicesSuccess, result.DevicesFailed, result.DevicesSkipped)
	fmt.Printf("Duration: %s\n", result.Duration().Round(time.Millisecond))
}
