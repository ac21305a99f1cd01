package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/velocitylabs/vcollect/inventory"
	"github.com/velocitylabs/vcollect/iox"
)

// JobsCommand returns the jobs command group.
func JobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect the collection jobs table",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List jobs",
				Flags: append(SharedFlags(),
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include disabled jobs",
					},
				),
				Action: jobsListAction,
			},
			{
				Name:      "show",
				Usage:     "Show one job in detail",
				ArgsUsage: "<job-slug>",
				Flags:     SharedFlags(),
				Action:    jobsShowAction,
			},
		},
	}
}

func jobsListAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	inv, err := inventory.Open(cfg.InventoryDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("inventory: %v", err), exitUsage)
	}
	defer iox.DiscardClose(inv)

	jobs, err := inv.ListJobs(context.Background(), !c.Bool("all"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("jobs: %v", err), exitUsage)
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}

	fmt.Printf("%-24s %-12s %-8s %s\n", "SLUG", "KIND", "ENABLED", "COMMAND")
	for _, job := range jobs {
		fmt.Printf("%-24s %-12s %-8v %s\n", job.Slug, job.CaptureKind, job.Enabled, job.Command)
	}
	return nil
}

func jobsShowAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	slug := c.Args().First()
	if slug == "" {
		return cli.Exit("a job slug is required", exitUsage)
	}

	inv, err := inventory.Open(cfg.InventoryDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("inventory: %v", err), exitUsage)
	}
	defer iox.DiscardClose(inv)

	job, err := inv.JobBySlug(context.Background(), slug)
	if err != nil {
		return cli.Exit(fmt.Sprintf("job: %v", err), exitUsage)
	}

	fmt.Printf("Slug:         %s\n", job.Slug)
	fmt.Printf("Kind:         %s\n", job.CaptureKind)
	fmt.Printf("Enabled:      %v\n", job.Enabled)
	fmt.Printf("Command:      %s\n", job.Command)
	if len(job.ExtraCommands) > 0 {
		fmt.Printf("Extra:        %s\n", strings.Join(job.ExtraCommands, "; "))
	}
	if job.Description != "" {
		fmt.Printf("Description:  %s\n", job.Description)
	}
	fmt.Printf("Workers:      %d\n", job.Execution.MaxWorkers)
	fmt.Printf("Timeout:      %s\n", job.Execution.Timeout)
	if job.Execution.CommandPause > 0 {
		fmt.Printf("Pause:        %s\n", job.Execution.CommandPause)
	}
	if job.Validation.Enabled {
		fmt.Printf("Validation:   filter=%s min_score=%.0f save_on_fail=%v\n",
			job.Validation.TemplateFilter, job.Validation.MinScore, job.Validation.SaveOnFail)
	} else {
		fmt.Printf("Validation:   disabled\n")
	}
	if !job.Filter.IsZero() {
		fmt.Printf("Filter:       vendor=%q site=%d role=%d platform=%d name=%q limit=%d\n",
			job.Filter.Vendor, job.Filter.SiteID, job.Filter.RoleID,
			job.Filter.PlatformID, job.Filter.NameRegex, job.Filter.Limit)
	}
	return nil
}
