// Package cli implements orcadoctl, the command line front end of the
// importer. Commands that touch the warehouse load the same environment
// configuration as the server.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/orcado/internal/application"
	"github.com/JonMunkholm/orcado/internal/config"
	"github.com/JonMunkholm/orcado/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	EnvFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for orcadoctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "orcadoctl",
		Short: "Validate and synchronize budget spreadsheets",
		Long: `orcadoctl validates budget CSV exports and synchronizes them into the
warehouse, one VERSAO partition at a time. It also replays local snapshots
and runs the administrative deletes.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			// stdout carries command output
			logging.SetupWriter(cmd.ErrOrStderr(), level, "text")
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "environment file loaded before the configuration")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewSnapshotsCommand(opts))
	cmd.AddCommand(NewDeleteVersionCommand(opts))
	cmd.AddCommand(NewDeleteFilialCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

// openApp loads the configuration and prepares the warehouse.
func openApp(ctx context.Context, opts *RootOptions) (*application.App, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Overload(opts.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, WrapExitError(ExitCommandError, "load env file", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}

	app, err := application.Open(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open application", err)
	}
	if err := app.Bootstrap(ctx); err != nil {
		// Imports still land in the local snapshot store.
		slog.Warn("warehouse not ready", "error", err)
	}
	return app, nil
}
