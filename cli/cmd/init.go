package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/velocitylabs/vcollect/inventory"
	"github.com/velocitylabs/vcollect/iox"
)

// InitCommand returns the workspace init command.
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Create the data directory and seed the inventory schema",
		Flags:  SharedFlags(),
		Action: initAction,
	}
}

func initAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	for _, dir := range []string{cfg.DataDir, cfg.CollectionRoot, cfg.BatchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cli.Exit(fmt.Sprintf("create %s: %v", dir, err), exitUsage)
		}
	}

	inv, err := inventory.Open(cfg.InventoryDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("inventory: %v", err), exitUsage)
	}
	defer iox.DiscardClose(inv)

	if err := inv.Init(context.Background()); err != nil {
		return cli.Exit(fmt.Sprintf("inventory: %v", err), exitUsage)
	}

	fmt.Printf("data directory:  %s\n", cfg.DataDir)
	fmt.Printf("inventory:       %s\n", cfg.InventoryDB)
	fmt.Printf("collections:     %s\n", cfg.CollectionRoot)
	fmt.Printf("batches:         %s\n", cfg.BatchDir)
	fmt.Println("\nnext: `vcollect vault init` to create the credential store")
	return nil
}
