// Package cmd provides the CLI commands for the vcollect binary.
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/velocitylabs/vcollect/cli/config"
	"github.com/velocitylabs/vcollect/log"
	"github.com/velocitylabs/vcollect/vault"
)

// Exit codes shared by every command: 0 on success, 1 when a run
// finished with failures, 2 for configuration and usage errors.
const (
	exitSuccess    = 0
	exitRunFailure = 1
	exitUsage      = 2
)

// ConfigFlag points at the vcollect.yaml configuration file.
var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to vcollect.yaml (optional)",
	EnvVars: []string{"VCOLLECT_CONFIG"},
}

// VerboseFlag raises log verbosity on stderr.
var VerboseFlag = &cli.BoolFlag{
	Name:    "verbose",
	Aliases: []string{"v"},
	Usage:   "Verbose logging",
}

// SharedFlags returns the flags every command accepts.
func SharedFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, VerboseFlag}
}

// loadConfig resolves the effective configuration for a command.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("config: %v", err), exitUsage)
	}
	return cfg, nil
}

// newLogger builds the command logger with run metadata.
func newLogger(meta *log.RunMeta) *log.Logger {
	return log.NewLogger(meta)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

// unlockVault opens and unlocks the credential vault, preferring the
// environment variable and falling back to an interactive prompt.
func unlockVault(ctx context.Context, path string) (*vault.Vault, error) {
	v, err := vault.Open(path)
	if err != nil {
		return nil, err
	}

	initialized, err := v.IsInitialized(ctx)
	if err != nil {
		v.Close()
		return nil, err
	}
	if !initialized {
		v.Close()
		return nil, fmt.Errorf("vault is not initialized; run `vcollect vault init` first")
	}

	if os.Getenv(config.EnvVaultPassword) != "" {
		if err := v.UnlockFromEnv(ctx, config.EnvVaultPassword); err != nil {
			v.Close()
			return nil, err
		}
		return v, nil
	}

	password, err := promptPassword("Vault password: ")
	if err != nil {
		v.Close()
		return nil, err
	}
	if err := v.Unlock(ctx, password); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

// promptPassword reads a line from stdin. The prompt goes to stderr so
// piped stdout stays clean.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
