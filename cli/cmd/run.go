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

// RunCommand returns the run command, the primary execution entrypoint.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a collection job against its device set",
		ArgsUsage: "<job-slug>",
		Flags: append(SharedFlags(),
			&cli.StringFlag{
				Name:  "job-file",
				Usage: "Run an ad-hoc job from a YAML descriptor instead of the jobs table",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Override the job's device concurrency",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Override the per-device wall clock",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Cap the number of devices collected",
			},
			&cli.StringFlag{
				Name:  "name-regex",
				Usage: "Narrow the device filter by name pattern",
			},
			&cli.Int64Flag{
				Name:  "credential-id",
				Usage: "Force a specific vault credential for every device",
			},
			&cli.BoolFlag{
				Name:  "no-validate",
				Usage: "Skip template validation for this run",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress per-device progress output",
			},
		),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	inv, err := inventory.Open(cfg.InventoryDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("inventory: %v", err), exitUsage)
	}
	defer iox.DiscardClose(inv)

	job, err := resolveJob(c, cfg, inv)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	applyRunOverrides(c, job)

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

	var engine *validate.Engine
	if job.Validation.Enabled {
		templates, err := validate.OpenStore(cfg.TemplatesDB)
		if err != nil {
			return cli.Exit(fmt.Sprintf("templates: %v", err), exitUsage)
		}
		defer iox.DiscardClose(templates)
		engine = validate.NewEngine(templates, nil)
	}

	logger := newLogger(&log.RunMeta{JobSlug: job.Slug})
	runner := &runtime.JobRunner{
		Inventory:      inv,
		Credentials:    vault.NewResolver(v, c.Int64("credential-id")),
		Executor:       sshx.NewExecutor(sshx.NewClient()),
		Validator:      engine,
		History:        hist,
		Logger:         logger,
		CollectionRoot: cfg.CollectionRoot,
	}
	if !c.Bool("quiet") {
		runner.Progress = printProgress
	}

	result, err := runner.Run(ctx, job)
	if err != nil {
		return cli.Exit(fmt.Sprintf("run: %v", err), exitUsage)
	}

	printRunSummary(result)
	if result.Status != types.StatusSuccess {
		return cli.Exit("", exitRunFailure)
	}
	return nil
}

// resolveJob loads the job from a descriptor file or the jobs table.
func resolveJob(c *cli.Context, cfg *config.Config, inv *inventory.Store) (*types.Job, error) {
	if path := c.String("job-file"); path != "" {
		return config.LoadJobFile(path, cfg.Execution)
	}

	slug := c.Args().First()
	if slug == "" {
		return nil, fmt.Errorf("a job slug or --job-file is required")
	}
	job, err := inv.JobBySlug(context.Background(), slug)
	if err != nil {
		return nil, err
	}

	// Table jobs may predate the config defaults; fill the gaps.
	if job.Execution.MaxWorkers == 0 {
		job.Execution.MaxWorkers = cfg.Execution.MaxWorkers
	}
	if job.Execution.Timeout == 0 {
		job.Execution.Timeout = cfg.Execution.Timeout.Duration
	}
	return job, nil
}

func applyRunOverrides(c *cli.Context, job *types.Job) {
	if w := c.Int("workers"); w > 0 {
		job.Execution.MaxWorkers = w
	}
	if t := c.Duration("timeout"); t > 0 {
		job.Execution.Timeout = t
	}
	if n := c.Int("limit"); n > 0 {
		job.Filter.Limit = n
	}
	if re := c.String("name-regex"); re != "" {
		job.Filter.NameRegex = re
	}
	if c.Bool("no-validate") {
		job.Validation.Enabled = false
	}
}

func printProgress(event types.ProgressEvent) {
	outcome := event.Outcome
	state := "ok"
	detail := outcome.Duration.Round(time.Millisecond).String()
	switch {
	case outcome.Skipped:
		state = "skipped"
		detail = outcome.ErrMessage
	case !outcome.Success:
		state = string(outcome.ErrKind)
		detail = outcome.ErrMessage
	}
	fmt.Printf("  [%d/%d] %-20s %s (%s)\n", event.Seq, event.Total, outcome.DeviceName, state, detail)
}

func printRunSummary(result *types.RunResult) {
	fmt.Printf("\n=== Run Summary ===\n")
	fmt.Printf("Job:      %s\n", result.JobSlug)
	fmt.Printf("Status:   %s\n", result.Status)
	fmt.Printf("Devices:  %d total, %d ok, %d failed, %d skipped\n",
		result.Total, result.Success, result.Failed, result.Skipped)
	fmt.Printf("Duration: %s\n", result.Duration().Round(time.Millisecond))
	if result.Err != "" {
		fmt.Printf("Error:    %s\n", result.Err)
	}
}
