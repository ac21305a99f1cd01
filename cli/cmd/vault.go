package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/velocitylabs/vcollect/iox"
	"github.com/velocitylabs/vcollect/vault"
)

// VaultCommand returns the vault command group.
func VaultCommand() *cli.Command {
	return &cli.Command{
		Name:  "vault",
		Usage: "Manage the encrypted credential store",
		Subcommands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Initialize a new vault with a master password",
				Flags:  SharedFlags(),
				Action: vaultInitAction,
			},
			{
				Name:   "status",
				Usage:  "Show vault state and credential count",
				Flags:  SharedFlags(),
				Action: vaultStatusAction,
			},
			{
				Name:  "add",
				Usage: "Add a credential",
				Flags: append(SharedFlags(),
					&cli.StringFlag{Name: "name", Usage: "Credential name", Required: true},
					&cli.StringFlag{Name: "username", Usage: "Login username", Required: true},
					&cli.StringFlag{Name: "key-file", Usage: "Path to an SSH private key"},
					&cli.BoolFlag{Name: "default", Usage: "Mark as the store default"},
				),
				Action: vaultAddAction,
			},
			{
				Name:   "list",
				Usage:  "List credential names (never secrets)",
				Flags:  SharedFlags(),
				Action: vaultListAction,
			},
		},
	}
}

func vaultInitAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := context.Background()

	v, err := vault.Open(cfg.VaultDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	defer iox.DiscardClose(v)

	initialized, err := v.IsInitialized(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	if initialized {
		return cli.Exit("vault is already initialized", exitUsage)
	}

	password, err := promptPassword("New vault password: ")
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if password != confirm {
		return cli.Exit("passwords do not match", exitUsage)
	}
	if password == "" {
		return cli.Exit("password must not be empty", exitUsage)
	}

	if err := v.Initialize(ctx, password); err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	fmt.Printf("vault initialized at %s\n", cfg.VaultDB)
	return nil
}

func vaultStatusAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := context.Background()

	v, err := vault.Open(cfg.VaultDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	defer iox.DiscardClose(v)

	initialized, err := v.IsInitialized(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	fmt.Printf("Path:         %s\n", cfg.VaultDB)
	fmt.Printf("Initialized:  %v\n", initialized)
	if !initialized {
		return nil
	}

	infos, err := v.List(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	fmt.Printf("Credentials:  %d\n", len(infos))
	return nil
}

func vaultAddAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := context.Background()

	v, err := unlockVault(ctx, cfg.VaultDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	defer iox.DiscardClose(v)

	cred := &vault.Credential{
		Name:      c.String("name"),
		Username:  c.String("username"),
		IsDefault: c.Bool("default"),
	}

	if keyFile := c.String("key-file"); keyFile != "" {
		keyData, err := os.ReadFile(keyFile)
		if err != nil {
			return cli.Exit(fmt.Sprintf("key file: %v", err), exitUsage)
		}
		cred.PrivateKey = string(keyData)
		passphrase, err := promptPassword("Key passphrase (empty for none): ")
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		cred.Passphrase = passphrase
	} else {
		password, err := promptPassword("Device password: ")
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		cred.Password = password
	}

	id, err := v.Add(ctx, cred)
	if err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	fmt.Printf("credential %q added (id %d)\n", cred.Name, id)
	return nil
}

func vaultListAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := context.Background()

	v, err := vault.Open(cfg.VaultDB)
	if err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	defer iox.DiscardClose(v)

	infos, err := v.List(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("vault: %v", err), exitUsage)
	}
	if len(infos) == 0 {
		fmt.Println("no credentials")
		return nil
	}

	fmt.Printf("%-4s %-20s %-16s %-8s %s\n", "ID", "NAME", "USERNAME", "DEFAULT", "KEY")
	for _, info := range infos {
		fmt.Printf("%-4d %-20s %-16s %-8v %v\n",
			info.ID, info.Name, info.Username, info.IsDefault, info.HasKey)
	}
	return nil
}
