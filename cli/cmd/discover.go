package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/velocitylabs/vcollect/discovery"
	"github.com/velocitylabs/vcollect/inventory"
	"github.com/velocitylabs/vcollect/iox"
	"github.com/velocitylabs/vcollect/log"
	"github.com/velocitylabs/vcollect/sshx"
	"github.com/velocitylabs/vcollect/types"
)

// DiscoverCommand returns the credential discovery command.
func DiscoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "Probe devices for a working credential and pin the winner",
		Flags: append(SharedFlags(),
			&cli.StringFlag{
				Name:  "name-regex",
				Usage: "Limit the sweep by device name pattern",
			},
			&cli.Int64Flag{
				Name:  "site-id",
				Usage: "Limit the sweep to one site",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Cap the number of devices probed",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Probe devices even when recently tested",
			},
		),
		Action: discoverAction,
	}
}

func discoverAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
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

	devices, err := inv.Resolve(ctx, types.DeviceFilter{
		NameRegex: c.String("name-regex"),
		SiteID:    c.Int64("site-id"),
		Limit:     c.Int("limit"),
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("inventory: %v", err), exitUsage)
	}
	if len(devices) == 0 {
		return cli.Exit("no devices match the filter", exitRunFailure)
	}

	engine := discovery.NewEngine(inv, v, sshx.NewClient(), newLogger(&log.RunMeta{}))
	engine.MaxInFlight = cfg.Discovery.MaxInFlight
	if !c.Bool("all") {
		engine.SkipWindow = cfg.Discovery.SkipRecentlyTested.Duration
	}

	summary, err := engine.Run(ctx, devices)
	if err != nil {
		return cli.Exit(fmt.Sprintf("discovery: %v", err), exitUsage)
	}

	for _, result := range summary.Results {
		switch {
		case result.Skipped:
			fmt.Printf("  %-20s skipped (recently tested)\n", result.Device.Name)
		case result.Success():
			fmt.Printf("  %-20s pinned %q after %d attempt(s)\n",
				result.Device.Name, result.CredentialName, result.Attempts)
		default:
			fmt.Printf("  %-20s failed: %v\n", result.Device.Name, result.Err)
		}
	}
	fmt.Printf("\n%d probed, %d pinned, %d failed, %d skipped\n",
		summary.Tested, summary.Pinned, summary.Failed, summary.Skipped)

	if summary.Failed > 0 {
		return cli.Exit("", exitRunFailure)
	}
	return nil
}
