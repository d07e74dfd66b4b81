package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/prn-tf/showcase-portal/internal/app"
	"github.com/prn-tf/showcase-portal/internal/config"
)

type rootOptions struct {
	configPath string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "showcase-admin",
		Short:         "Maintenance commands for the Showcase portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = Version
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to the configuration file")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newSweepCmd(opts),
		newReclaimCmd(opts),
		newStatsCmd(opts),
		newTokenCmd(),
		newVersionCmd(),
	)

	return cmd
}

// withApp loads configuration and runs fn against a fully wired portal.
// Logs go to stderr so stdout carries only command output.
func withApp(ctx context.Context, opts *rootOptions, fn func(*app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	cfg.Logging.Output = "stderr"

	logger, closer, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(ctx, cfg, logger, app.OneShot())
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writePlain(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
